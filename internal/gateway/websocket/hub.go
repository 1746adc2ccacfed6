package websocket

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"runbox/internal/jsvm"
	"runbox/internal/runner"
)

// CodeRunner executes exercise code and streams its events.
type CodeRunner interface {
	Run(ctx context.Context, code, moduleID string, opts ...runner.RunOption) *jsvm.RunResult
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Broadcast messages to every client.
	broadcast chan []byte

	// Closed when Run returns.
	done chan struct{}

	mu sync.RWMutex

	runner  CodeRunner
	origins []string
	logger  zerolog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAllowedOrigins restricts which browser origins may connect. "*"
// allows any origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) { h.origins = origins }
}

// NewHub creates a new Hub that hands run requests to r.
func NewHub(r CodeRunner, logger zerolog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		runner:     r,
		origins:    []string{"*"},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's main loop. It returns when ctx is cancelled,
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.cancel()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.trySend(data)
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub. It reports false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients. Slow clients miss
// the message rather than block the hub.
func (h *Hub) Broadcast(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal broadcast message")
		return err
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	}
	return nil
}

// BroadcastReload tells every client the catalog changed.
func (h *Hub) BroadcastReload() error {
	return h.Broadcast(WSMessage{Type: TypeReload})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) originAllowed(origin string) bool {
	if origin == "" || slices.Contains(h.origins, "*") {
		return true
	}
	return slices.Contains(h.origins, origin)
}
