// Package codec encodes request and reply bodies.
//
// Only JSON travels on the wire today; the interface keeps the server and
// client independent from the concrete encoding.
package codec

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}

// Default is the codec used by server and client when none is configured.
var Default Codec = &JSONCodec{}
