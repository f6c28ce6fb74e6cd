package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewFrame(KindConfigPublish, "req-1", ConfigPublishPayload{
		Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", Content: "k=v",
	})
	require.NoError(t, err)
	assert.Equal(t, KindConfigPublish, f.Type)

	var decoded ConfigPublishPayload
	require.NoError(t, f.Decode(&decoded))
	assert.Equal(t, "cfg1", decoded.DataID)
	assert.Equal(t, "k=v", decoded.Content)
}

func TestFrameDecodeEmptyPayloadIsNoop(t *testing.T) {
	f := Frame{Type: KindPing}
	var p PingPayload
	assert.NoError(t, f.Decode(&p))
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	f, err := NewFrame(KindPing, "", PingPayload{})
	require.NoError(t, err)

	data, err := c.Marshal(&f)
	require.NoError(t, err)

	var out Frame
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, KindPing, out.Type)
	assert.Equal(t, CodecName, c.Name())
}
