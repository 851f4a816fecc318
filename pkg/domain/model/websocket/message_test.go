package websocket_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/websocket"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
)

func TestClientMessage_FromBytes(t *testing.T) {
	testCases := []struct {
		name     string
		jsonData string
		expected websocket.ClientMessage
		valid    bool
		wantErr  bool
	}{
		{
			name:     "ping",
			jsonData: `{"type":"ping","timestamp":1234567890}`,
			expected: websocket.ClientMessage{Type: "ping", Timestamp: 1234567890},
			valid:    true,
		},
		{
			name:     "unknown type",
			jsonData: `{"type":"message"}`,
			expected: websocket.ClientMessage{Type: "message"},
			valid:    false,
		},
		{
			name:     "invalid json",
			jsonData: `{"type":}`,
			wantErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg websocket.ClientMessage
			err := msg.FromBytes([]byte(tc.jsonData))
			if tc.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, msg, tc.expected)
			gt.Equal(t, msg.IsValidMessageType(), tc.valid)
		})
	}
}

func TestNewSessionResponse(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	ctx := clock.With(context.Background(), func() time.Time { return now })

	t.Run("signed in", func(t *testing.T) {
		resp := websocket.NewSessionResponse(ctx, auth.State{
			Session:  &auth.Session{UID: "uid-1", Email: "a@b.com"},
			Resolved: true,
		})
		gt.False(t, resp.SignedOut())

		data, err := resp.ToBytes()
		gt.NoError(t, err)

		var decoded map[string]any
		gt.NoError(t, json.Unmarshal(data, &decoded))
		gt.Equal(t, decoded["type"], any("session"))
		gt.Equal(t, decoded["resolved"], any(true))
		gt.Equal(t, decoded["timestamp"], any(float64(now.Unix())))
		session := decoded["session"].(map[string]any)
		gt.Equal(t, session["uid"], any("uid-1"))
	})

	t.Run("signed out", func(t *testing.T) {
		resp := websocket.NewSessionResponse(ctx, auth.SignedOutState())
		gt.True(t, resp.SignedOut())

		data, err := resp.ToBytes()
		gt.NoError(t, err)
		gt.True(t, json.Valid(data))

		var decoded map[string]any
		gt.NoError(t, json.Unmarshal(data, &decoded))
		_, hasSession := decoded["session"]
		gt.False(t, hasSession)
	})

	t.Run("unresolved is not a sign out", func(t *testing.T) {
		gt.False(t, websocket.NewSessionResponse(ctx, auth.State{}).SignedOut())
	})
}

func TestPongAndError(t *testing.T) {
	ctx := context.Background()
	gt.Equal(t, websocket.NewPongResponse(ctx).Type, websocket.TypePong)

	resp := websocket.NewErrorResponse(ctx, "Invalid message type")
	gt.Equal(t, resp.Type, websocket.TypeError)
	gt.Equal(t, resp.Content, "Invalid message type")
	gt.False(t, resp.SignedOut())
}
