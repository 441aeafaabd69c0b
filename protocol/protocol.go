// Package protocol holds the wire-level constants shared by every channel
// process and the codec for discovery datagrams.
//
// Discovery datagram (UDP, UTF-8, at most MaxDatagramSize bytes):
//
//	┌──────────────────────────────────┬─┬──────┬─┬──────┬─┬──────┐
//	│ _freecad_channels._tcp.local.    │:│ name │@│ host │:│ port │
//	└──────────────────────────────────┴─┴──────┴─┴──────┴─┴──────┘
//
// The leading tag plays the role of a magic number: datagrams that do not
// start with it are foreign traffic and are skipped before any parsing.
//
// Requests travel as plain HTTP on the service's ephemeral loopback port:
//
//	GET  /  → {"status": "ok"|"full", "service": <token>}
//	POST /  → {"status": "ok"|"rejected"}
package protocol

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"channels/address"
)

const (
	LocalHost            = "127.0.0.1"
	DefaultDiscoveryHost = LocalHost
	DefaultDiscoveryPort = 58987
	MaxDatagramSize      = 1024 // Receive buffer; longer announcements are truncated and fail to parse
	RequestPath          = "/"
	ContentTypeJSON      = "application/json"
)

var tag = []byte(address.ServiceType)

// EncodeAnnouncement builds the datagram payload announcing addr.
func EncodeAnnouncement(addr address.Address) []byte {
	return []byte(addr.String())
}

// IsAnnouncement reports whether data starts with the service type tag.
func IsAnnouncement(data []byte) bool {
	return bytes.HasPrefix(data, tag)
}

// DecodeAnnouncement validates and parses one datagram payload.
func DecodeAnnouncement(data []byte) (address.Address, error) {
	if !IsAnnouncement(data) {
		return address.Address{}, fmt.Errorf("protocol: not an announcement")
	}
	if len(data) > MaxDatagramSize {
		return address.Address{}, fmt.Errorf("protocol: announcement exceeds %d bytes", MaxDatagramSize)
	}
	if !utf8.Valid(data) {
		return address.Address{}, fmt.Errorf("protocol: announcement is not valid UTF-8")
	}
	return address.Parse(string(data))
}
