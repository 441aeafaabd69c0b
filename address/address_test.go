package address

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	a := New("127.0.0.1", "Blender", 50123)

	assert.Equal(t, "_freecad_channels._tcp.local.:Blender@127.0.0.1:50123", a.String())
	assert.Equal(t, "Blender@127.0.0.1:50123", a.Display())
	assert.Equal(t, "127.0.0.1:50123", a.HostPort())
}

func TestRoundTrip(t *testing.T) {
	cases := []Address{
		New("127.0.0.1", "Echo", 8080),
		New("localhost", "FreeCAD", 0),
		New("::1", "v6", 65535),
		New("10.0.0.7", "name:with:colons", 1),
		New("host", "a@b", 42),
		New("192.168.1.20", "Blender Scene", 58987),
	}

	for _, a := range cases {
		require.NoError(t, a.Validate())
		got, err := Parse(a.String())
		require.NoError(t, err, a.String())
		assert.Equal(t, a, got)
	}
}

func TestParseRejectsForeignTag(t *testing.T) {
	tokens := []string{
		"",
		"Echo@127.0.0.1:80",
		"_other._tcp.local.:Echo@127.0.0.1:80",
		"_freecad_channels._tcp.local.Echo@127.0.0.1:80",
		"_FREECAD_CHANNELS._tcp.local.:Echo@127.0.0.1:80",
		" _freecad_channels._tcp.local.:Echo@127.0.0.1:80",
	}

	for _, tok := range tokens {
		_, err := Parse(tok)
		require.Error(t, err, tok)

		var pe *ParseError
		require.True(t, errors.As(err, &pe), tok)
		assert.Equal(t, tok, pe.Token)
	}
}

func TestParseMalformedBody(t *testing.T) {
	tokens := map[string]string{
		ServiceType + ":Echo@127.0.0.1":       "missing port",
		ServiceType + ":Echo127.0.0.1:80":     "missing '@' between name and host",
		ServiceType + ":Echo@127.0.0.1:x":     "port is not a number",
		ServiceType + ":Echo@127.0.0.1:70000": "port out of range",
		ServiceType + ":@127.0.0.1:80":        "empty name",
		ServiceType + ":Echo@:80":             "empty host",
		ServiceType + ":Echo":                 "missing port",
	}

	for tok, reason := range tokens {
		_, err := Parse(tok)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, tok)
		assert.Equal(t, reason, pe.Reason, tok)
	}
}

func TestEquality(t *testing.T) {
	a := New("127.0.0.1", "Echo", 1)
	b := New("127.0.0.1", "Echo", 1)
	c := New("127.0.0.1", "Echo", 2)

	assert.True(t, a == b)
	assert.False(t, a == c)

	set := map[Address]struct{}{a: {}, b: {}, c: {}}
	assert.Len(t, set, 2)
}

func TestValidate(t *testing.T) {
	assert.Error(t, New("", "x", 1).Validate())
	assert.Error(t, New("h", "", 1).Validate())
	assert.Error(t, New("h@x", "n", 1).Validate())
	assert.Error(t, New("h", "n", -1).Validate())
	assert.NoError(t, New("h", "n", 1).Validate())
}
