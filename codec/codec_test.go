package codec

import (
	"testing"

	"channels/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec(t *testing.T) {
	c := &JSONCodec{}

	original := message.NewRequest("FreeCAD", map[string]any{"action": "import_file", "path": "/tmp/x.gltf"})

	data, err := c.Encode(original)
	require.NoError(t, err)

	var decoded message.Request
	require.NoError(t, c.Decode(data, &decoded))

	assert.Equal(t, original.Name, decoded.Name)
	assert.Nil(t, decoded.ReplyTo)
	assert.Equal(t, "import_file", decoded.Data["action"])
	assert.Equal(t, "/tmp/x.gltf", decoded.Data["path"])
	assert.Equal(t, "application/json", c.ContentType())
}

func TestJSONCodecRejectsGarbage(t *testing.T) {
	c := &JSONCodec{}
	var req message.Request

	assert.Error(t, c.Decode([]byte("not json"), &req))
	assert.Error(t, c.Decode([]byte(`{"name":"a"} {"name":"b"}`), &req))
	assert.Error(t, c.Decode(nil, &req))
}
