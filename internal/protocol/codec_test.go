package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []any{
		NewHandshakeRequest("lappy-7f3a", "lappy", "2.0.0", []string{"input_events", "screen_info"}, 1700000000000),
		NewHandshakeResponse(true, "server-01", "server", "2.0.0", nil, 1700000000001),
		NewClientRegistration("lappy-7f3a", "lappy", "machine-9", 1280, 720),
		NewLayoutAssignment(Position{X: 1920, Y: 0}, Adjacency{Left: "server-01"}, []ScreenInfo{{InstanceID: "server-01", Width: 1920, Height: 1080, IsServer: true, Online: true}}),
		NewLayoutUpdate([]ScreenInfo{{InstanceID: "server-01"}}, 1700000000002),
		NewInputEvent("server-01", "disp-1", "machine-1", "mouseMove", EventData{X: 42, Y: 100, DX: 3, DY: -1, Timestamp: 1700000000003}),
		NewActivateClient("lappy-7f3a", 1918, 540, 1700000000004),
		NewDeactivationRequest("lappy-7f3a", 1700000000005),
		NewClipboardSync("server-01", "text/plain", "hello", 17, 1700000000006),
		NewServerShutdown("restart", 3000, 1700000000007),
		NewHeartbeat(1700000000008),
	}

	for _, original := range cases {
		data, err := Encode(original)
		require.NoError(t, err)

		decoded, err := Decode(data)
		require.NoError(t, err)

		reencoded, err := Encode(decoded)
		require.NoError(t, err)
		assert.JSONEq(t, string(data), string(reencoded))
	}
}

func TestDecodeUnknownTypeIsDroppedNotFatal(t *testing.T) {
	_, err := Decode([]byte(`{"type":"mystery_message","foo":1}`))
	require.Error(t, err)
	var unknown *ErrUnknownType
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "mystery_message", unknown.Type)
}

func TestDecodeMissingTypeField(t *testing.T) {
	_, err := Decode([]byte(`{"foo":1}`))
	require.Error(t, err)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestPeekTypeFastPath(t *testing.T) {
	data := []byte(`{"type":"heartbeat","timestamp":123,"somethingExtraAndLarge":"...ignored..."}`)
	got, err := PeekType(data)
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", got)
}

func TestExampleFramesFromWireDocs(t *testing.T) {
	raw := `{"type":"input_event","sourceInstanceId":"server-01","sourceDisplayId":"d1","sourceMachineId":"m1","eventType":"mouseMove","eventData":{"x":42,"y":100,"dx":3,"dy":-1,"timestamp":1,"keyboardModifiers":0,"mouseButtons":0}}`
	decoded, err := Decode([]byte(raw))
	require.NoError(t, err)
	ev, ok := decoded.(*InputEvent)
	require.True(t, ok)
	assert.Equal(t, "server-01", ev.SourceInstanceID)
	assert.Equal(t, 42, ev.EventData.X)
	assert.Equal(t, -1, ev.EventData.DY)
}
