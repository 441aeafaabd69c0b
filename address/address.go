// Package address defines the value that identifies one running channel service
// and its compact text token.
//
// Token format:
//
//	_freecad_channels._tcp.local.:<name>@<host>:<port>
//
// The same token is the payload of discovery datagrams and the "service" field
// of the status probe reply.
package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ServiceType is the tag every token starts with. It keeps channel
// announcements apart from unrelated traffic on the discovery port.
const ServiceType = "_freecad_channels._tcp.local."

// Address identifies one service instance. Two addresses are equal iff host,
// name and port all match, so Address can be used directly as a map key.
type Address struct {
	Host string
	Name string
	Port int
}

// New builds an Address from explicit fields.
func New(host, name string, port int) Address {
	return Address{Host: host, Name: name, Port: port}
}

// String formats the address token.
func (a Address) String() string {
	return ServiceType + ":" + a.Display()
}

// Display is the token without the service type tag, for humans.
func (a Address) Display() string {
	return a.Name + "@" + a.Host + ":" + strconv.Itoa(a.Port)
}

// HostPort returns "host:port" suitable for net.Dial and URLs.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Validate reports whether the address survives a format/parse round trip.
func (a Address) Validate() error {
	switch {
	case a.Name == "":
		return fmt.Errorf("address: empty name")
	case a.Host == "":
		return fmt.Errorf("address: empty host")
	case strings.Contains(a.Host, "@"):
		return fmt.Errorf("address: host %q contains '@'", a.Host)
	case a.Port < 0 || a.Port > 65535:
		return fmt.Errorf("address: port %d out of range", a.Port)
	}
	return nil
}

// ParseError is returned for every token Parse cannot accept.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid service address %q: %s", e.Token, e.Reason)
}

// Parse decodes a token produced by Address.String.
//
// The port is split at the last ':' and the name at the last '@', so IPv6
// hosts and names containing ':' round-trip.
func Parse(token string) (Address, error) {
	rest, ok := strings.CutPrefix(token, ServiceType+":")
	if !ok {
		return Address{}, &ParseError{Token: token, Reason: "service type tag mismatch"}
	}

	i := strings.LastIndexByte(rest, ':')
	if i < 0 {
		return Address{}, &ParseError{Token: token, Reason: "missing port"}
	}
	port, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return Address{}, &ParseError{Token: token, Reason: "port is not a number"}
	}
	if port < 0 || port > 65535 {
		return Address{}, &ParseError{Token: token, Reason: "port out of range"}
	}

	nameHost := rest[:i]
	j := strings.LastIndexByte(nameHost, '@')
	if j < 0 {
		return Address{}, &ParseError{Token: token, Reason: "missing '@' between name and host"}
	}
	name, host := nameHost[:j], nameHost[j+1:]
	if name == "" {
		return Address{}, &ParseError{Token: token, Reason: "empty name"}
	}
	if host == "" {
		return Address{}, &ParseError{Token: token, Reason: "empty host"}
	}

	return Address{Host: host, Name: name, Port: port}, nil
}
