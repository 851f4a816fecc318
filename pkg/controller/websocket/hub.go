package websocket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	websocket_model "github.com/secmon-lab/tollgate/pkg/domain/model/websocket"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

// SessionSource notifies state changes of a browser token.
type SessionSource interface {
	Subscribe(tokenID auth.TokenID, fn func(auth.State)) (unsubscribe func())
}

// Hub maintains the set of active clients and pushes session changes to them
type Hub struct {
	source SessionSource

	// Registered clients grouped by browser token
	tokens map[auth.TokenID]*tokenClients

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// State changes to deliver to the clients of a token
	broadcast chan *broadcastMessage

	// Mutex to protect concurrent access to tokens
	mu sync.RWMutex

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// tokenClients holds the connections of one visitor and the subscription
// kept open for them.
type tokenClients struct {
	clients     map[*Client]bool
	unsubscribe func()
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages, nil once closed
	send chan []byte

	// Read side of send, fixed for the lifetime of the client
	out <-chan []byte

	// Browser token this client belongs to
	tokenID auth.TokenID

	// Unique client ID for this connection
	clientID string

	// Context for this client
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex to protect send channel
	mu sync.Mutex
}

type broadcastMessage struct {
	tokenID auth.TokenID
	state   auth.State
}

const (
	// Maximum message size allowed from peer (4KB)
	maxMessageSize = 4 * 1024

	// Maximum number of clients (tabs) per token
	maxClientsPerToken = 10

	// Buffer size for client send channel
	clientSendBufferSize = 16

	// Buffer size for state changes waiting for the hub loop
	broadcastBufferSize = 256
)

// NewHub creates a new Hub
func NewHub(ctx context.Context, source SessionSource) *Hub {
	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		source:     source,
		tokens:     make(map[auth.TokenID]*tokenClients),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, broadcastBufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	logger := logging.From(h.ctx)
	logger.Info("WebSocket Hub started")

	defer func() {
		logger.Info("WebSocket Hub stopped")
		h.cancel()
	}()

	for {
		select {
		case <-h.ctx.Done():
			logger.Info("Hub context cancelled, shutting down")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToToken(message)
		}
	}
}

// registerClient registers a new client to the hub. The first client of a
// token opens the subscription to its session changes.
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	logger := logging.From(h.ctx)

	entry, exists := h.tokens[client.tokenID]
	if !exists {
		tokenID := client.tokenID
		entry = &tokenClients{clients: make(map[*Client]bool)}
		entry.unsubscribe = h.source.Subscribe(tokenID, func(state auth.State) {
			h.BroadcastState(tokenID, state)
		})
		h.tokens[tokenID] = entry
	}

	if len(entry.clients) >= maxClientsPerToken {
		logger.Warn("Maximum clients reached for token",
			"token_id", client.tokenID,
			"max_clients", maxClientsPerToken)
		client.closeSend()
		return
	}

	entry.clients[client] = true

	logger.Debug("Client registered",
		"token_id", client.tokenID,
		"client_id", client.clientID,
		"total_clients", len(entry.clients))
}

// unregisterClient removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClientLocked(client)
	client.cancel()
}

func (h *Hub) removeClientLocked(client *Client) {
	logger := logging.From(h.ctx)

	entry, exists := h.tokens[client.tokenID]
	if !exists {
		return
	}
	if _, exists := entry.clients[client]; !exists {
		return
	}

	delete(entry.clients, client)
	client.closeSend()

	logger.Debug("Client unregistered",
		"token_id", client.tokenID,
		"client_id", client.clientID,
		"remaining_clients", len(entry.clients))

	// Drop the subscription if no clients remain
	if len(entry.clients) == 0 {
		entry.unsubscribe()
		delete(h.tokens, client.tokenID)
	}
}

// broadcastToToken sends a state change to all clients of a token. A
// signed-out state is the last message a client gets.
func (h *Hub) broadcastToToken(message *broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, exists := h.tokens[message.tokenID]
	if !exists {
		return
	}

	resp := websocket_model.NewSessionResponse(h.ctx, message.state)
	data, err := resp.ToBytes()
	if err != nil {
		logging.From(h.ctx).Error("failed to marshal session response", logging.ErrAttr(err))
		return
	}

	logging.From(h.ctx).Debug("Broadcasting session change",
		"token_id", message.tokenID,
		"client_count", len(entry.clients))

	for client := range entry.clients {
		// A client that cannot keep up is dropped
		if !client.trySend(data) || resp.SignedOut() {
			h.removeClientLocked(client)
		}
	}
}

// BroadcastState queues a state change for the clients of tokenID. It is
// called from the session publisher and never waits for the hub loop: when
// the queue is full the change is dropped.
func (h *Hub) BroadcastState(tokenID auth.TokenID, state auth.State) {
	if h.ctx.Err() != nil {
		// Hub is shutting down
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{tokenID: tokenID, state: state}:
	default:
		logging.From(h.ctx).Warn("Dropped session change, broadcast queue is full",
			"token_id", tokenID,
			"queue_size", broadcastBufferSize)
	}
}

// GetClientCount returns the number of clients connected for a token
func (h *Hub) GetClientCount(tokenID auth.TokenID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if entry, exists := h.tokens[tokenID]; exists {
		return len(entry.clients)
	}
	return 0
}

// GetTotalClientCount returns the total number of connected clients
func (h *Hub) GetTotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, entry := range h.tokens {
		total += len(entry.clients)
	}
	return total
}

// NewClient creates a new client
func (h *Hub) NewClient(conn *websocket.Conn, tokenID auth.TokenID) *Client {
	ctx, cancel := context.WithCancel(h.ctx)
	send := make(chan []byte, clientSendBufferSize)

	return &Client{
		hub:      h,
		conn:     conn,
		send:     send,
		out:      send,
		tokenID:  tokenID,
		clientID: generateClientID(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register registers a client with the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		// Hub is shutting down
		client.closeSend()
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		// Hub is already shutting down
	}
}

// Close gracefully shuts down the hub
func (h *Hub) Close() error {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for tokenID, entry := range h.tokens {
		for client := range entry.clients {
			client.cancel()
			client.closeSend()
		}
		entry.unsubscribe()
		delete(h.tokens, tokenID)
	}

	return nil
}

func generateClientID() string {
	// Create a unique ID using timestamp and random bytes
	timestamp := time.Now().Unix()
	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		// Fallback to timestamp-based ID if random generation fails
		return fmt.Sprintf("client_%d", timestamp)
	}
	return fmt.Sprintf("client_%d_%s", timestamp, hex.EncodeToString(randomBytes))
}

// trySend queues data without blocking. It fails when the client is closed
// or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send == nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

// GetClientID returns the client ID for a client
func (c *Client) GetClientID() string {
	return c.clientID
}
