package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	websocket_model "github.com/secmon-lab/tollgate/pkg/domain/model/websocket"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

// tokenIDCookieName must match the cookie set by the HTTP controller.
const tokenIDCookieName = "token_id"

// Handler handles WebSocket connections that push session changes to the
// browser
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. Cross-origin upgrades are
// rejected by the upgrader's default origin check.
func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// HandleSession upgrades the request of a signed-in visitor and keeps them
// informed of changes to their session. The visitor state must already be on
// the request context; an unresolved state is refused.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	state := auth.StateFromContext(ctx)
	c, err := r.Cookie(tokenIDCookieName)
	if err != nil || c.Value == "" || !state.SignedIn() {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	tokenID := auth.TokenID(c.Value)

	// Upgrade HTTP connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("failed to upgrade connection", logging.ErrAttr(err))
		// Don't call http.Error here as upgrader may have already written headers
		return
	}

	client := h.hub.NewClient(conn, tokenID)

	// The current state goes first so that the page does not wait for the
	// next change.
	if data, err := websocket_model.NewSessionResponse(ctx, state).ToBytes(); err == nil {
		client.trySend(data)
	}
	h.hub.Register(client)

	logger.Debug("WebSocket connection established",
		"token_id", tokenID,
		"client_id", client.clientID)

	go h.writePump(client)
	go h.readPump(client)
}

// readPump pumps messages from the websocket connection to the hub
func (h *Handler) readPump(client *Client) {
	logger := logging.From(client.ctx)

	defer func() {
		h.hub.Unregister(client)
		if err := client.conn.Close(); err != nil {
			logger.Debug("failed to close connection in readPump", "error", err)
		}
	}()

	client.conn.SetReadLimit(maxMessageSize)
	if err := client.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Error("failed to set read deadline", "error", err)
		return
	}
	client.conn.SetPongHandler(func(string) error {
		if err := client.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		select {
		case <-client.ctx.Done():
			return
		default:
		}

		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("unexpected WebSocket close", "error", err)
			}
			break
		}

		var msg websocket_model.ClientMessage
		if err := msg.FromBytes(messageBytes); err != nil {
			logger.Debug("invalid message format", "error", err)
			h.sendToClient(client, websocket_model.NewErrorResponse(client.ctx, "Invalid message format"))
			continue
		}

		if !msg.IsValidMessageType() {
			h.sendToClient(client, websocket_model.NewErrorResponse(client.ctx, "Invalid message type"))
			continue
		}

		// ping is the only message a client may send
		h.sendToClient(client, websocket_model.NewPongResponse(client.ctx))
	}
}

// writePump pumps messages from the hub to the websocket connection
func (h *Handler) writePump(client *Client) {
	logger := logging.From(client.ctx)
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := client.conn.Close(); err != nil {
			logger.Debug("failed to close connection in writePump", "error", err)
		}
	}()

	for {
		select {
		case <-client.ctx.Done():
			return

		case message, ok := <-client.out:
			if err := client.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error("failed to set write deadline", "error", err)
				return
			}
			if !ok {
				// The hub closed the channel
				if err := client.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logger.Debug("failed to write close message", "error", err)
				}
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := client.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Error("failed to set write deadline for ping", "error", err)
				return
			}
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendToClient(client *Client, response *websocket_model.SessionResponse) {
	data, err := response.ToBytes()
	if err != nil {
		return
	}
	// Client's send channel is full or closed, ignore
	client.trySend(data)
}
