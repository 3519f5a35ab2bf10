package ocpp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrameCall(t *testing.T) {
	data := []byte(`[2,"m1","BootNotification",{"chargePointVendor":"ACME"}]`)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)

	assert.Equal(t, MessageTypeCall, frame.Type)
	assert.Equal(t, "m1", frame.MessageID)
	assert.Equal(t, "BootNotification", frame.Action)
	assert.JSONEq(t, `{"chargePointVendor":"ACME"}`, string(frame.Payload))
}

func TestDecodeFrameCallResult(t *testing.T) {
	frame, err := DecodeFrame([]byte(`[3,"m2",{"status":"Accepted"}]`))
	require.NoError(t, err)

	assert.Equal(t, MessageTypeCallResult, frame.Type)
	assert.Equal(t, "m2", frame.MessageID)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(frame.Payload))
}

func TestDecodeFrameCallError(t *testing.T) {
	frame, err := DecodeFrame([]byte(`[4,"m3","InternalError","boom",{}]`))
	require.NoError(t, err)

	assert.Equal(t, MessageTypeCallError, frame.Type)
	assert.Equal(t, "InternalError", frame.ErrorCode)
	assert.Equal(t, "boom", frame.ErrorDesc)
}

func TestDecodeFrameMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `garbage`},
		{"not an array", `{"a":1}`},
		{"too short", `[2,"m1"]`},
		{"call without payload", `[2,"m1","Heartbeat"]`},
		{"unknown type", `[9,"m1",{}]`},
		{"non-string id", `[2,42,"Heartbeat",{}]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestMarshalCallResult(t *testing.T) {
	data, err := MarshalCallResult("m1", map[string]string{"status": "Accepted"})
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"m1",{"status":"Accepted"}]`, string(data))

	// nil 载荷编码为空对象
	data, err = MarshalCallResult("m2", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"m2",{}]`, string(data))
}

func TestMarshalCallRoundTrip(t *testing.T) {
	data, err := MarshalCall("m9", "Reset", map[string]string{"type": "Soft"})
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCall, frame.Type)
	assert.Equal(t, "m9", frame.MessageID)
	assert.Equal(t, "Reset", frame.Action)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "Soft", payload["type"])
}

func TestNewMessageID(t *testing.T) {
	id := NewMessageID()
	assert.NotEmpty(t, id)
	for _, r := range id {
		assert.True(t, r >= '0' && r <= '9')
	}
}
