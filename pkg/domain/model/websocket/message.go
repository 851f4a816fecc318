package websocket

import (
	"context"
	"encoding/json"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
)

const (
	TypeSession = "session"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeError   = "error"
)

// ClientMessage represents a message sent from client to server
type ClientMessage struct {
	Type      string `json:"type"`      // "ping"
	Timestamp int64  `json:"timestamp"` // unix timestamp
}

// SessionResponse represents a message sent from server to client
type SessionResponse struct {
	Type      string        `json:"type"`              // "session", "pong", "error"
	Session   *auth.Session `json:"session,omitempty"` // nil when signed out
	Resolved  bool          `json:"resolved"`
	Content   string        `json:"content,omitempty"`
	Timestamp int64         `json:"timestamp"` // unix timestamp
}

// ToBytes converts SessionResponse to JSON bytes
func (r *SessionResponse) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// FromBytes parses JSON bytes to ClientMessage
func (m *ClientMessage) FromBytes(data []byte) error {
	return json.Unmarshal(data, m)
}

func newResponse(ctx context.Context, msgType string) *SessionResponse {
	return &SessionResponse{
		Type:      msgType,
		Timestamp: clock.Now(ctx).Unix(),
	}
}

// NewSessionResponse carries a visitor state change.
func NewSessionResponse(ctx context.Context, state auth.State) *SessionResponse {
	resp := newResponse(ctx, TypeSession)
	resp.Session = state.Session
	resp.Resolved = state.Resolved
	return resp
}

func NewErrorResponse(ctx context.Context, content string) *SessionResponse {
	resp := newResponse(ctx, TypeError)
	resp.Content = content
	return resp
}

func NewPongResponse(ctx context.Context) *SessionResponse {
	return newResponse(ctx, TypePong)
}

// IsValidMessageType checks if message type is valid
func (m *ClientMessage) IsValidMessageType() bool {
	return m.Type == TypePing
}

// SignedOut reports a state change the client must react to by reloading.
func (r *SessionResponse) SignedOut() bool {
	return r.Type == TypeSession && r.Resolved && r.Session == nil
}
