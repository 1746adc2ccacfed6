package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"runbox/internal/runner"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024 // 1MB

	sendBuffer = 256
)

// Client represents a WebSocket client connection. It runs at most one
// exercise at a time; the run is cancelled when the client disconnects.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	connectedAt time.Time
	running     atomic.Bool
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a new client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		connectedAt: time.Now(),
		logger:      hub.logger.With().Str("client_id", id).Logger(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage processes incoming WebSocket messages.
func (c *Client) handleMessage(message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to parse WebSocket message")
		c.sendMessage(NewErrorMessage(ErrCodeInvalidMessage, "failed to parse message"))
		return
	}

	c.logger.Debug().Str("type", msg.Type).Msg("Received WebSocket message")

	switch msg.Type {
	case TypePing:
		c.sendMessage(WSMessage{Type: TypePong})

	case TypeRun:
		if msg.Module == "" {
			c.sendMessage(NewErrorMessage(ErrCodeInvalidRequest, "module is required"))
			return
		}
		if !c.running.CompareAndSwap(false, true) {
			c.sendMessage(NewErrorMessage(ErrCodeRunInProgress, "a run is already in progress"))
			return
		}
		runID := msg.RunID
		if runID == "" {
			runID = uuid.New().String()
		}
		go c.run(runID, msg.Code, msg.Module)

	default:
		c.sendMessage(NewErrorMessage(ErrCodeUnknownType, "unknown message type: "+msg.Type))
	}
}

// run executes one exercise and streams output and result back.
func (c *Client) run(runID, code, module string) {
	defer c.running.Store(false)

	c.hub.runner.Run(c.ctx, code, module,
		runner.WithRunID(runID),
		runner.WithEvents(func(e runner.Event) {
			switch e.Type {
			case runner.EventTypeOutput:
				c.sendMessage(NewOutputMessage(e.RunID, *e.Line))
			case runner.EventTypeDone:
				c.sendMessage(NewResultMessage(e.RunID, e.Result))
			}
		}),
	)
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error().Err(err).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage queues msg for the writer, waiting for buffer space until
// the client goes away. Run output is never dropped while connected.
func (c *Client) sendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal message")
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

// trySend queues data without waiting.
func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Debug().Msg("Client buffer full, broadcast dropped")
	}
}

// ServeWs handles WebSocket requests from clients.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return hub.originAllowed(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(hub, conn)
	if !hub.Register(client) {
		client.cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
