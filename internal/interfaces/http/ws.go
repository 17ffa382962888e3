package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Faisal-imtiyaz123/meme-coin-aggregrator/internal/broadcast"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Control messages are small.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The endpoint is read-only public data; any origin may subscribe.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// controlMessage is what subscribers send us.
type controlMessage struct {
	Type   string   `json:"type"`
	Tokens []string `json:"tokens"`
}

const (
	controlSubscribe   = "subscribe_tokens"
	controlUnsubscribe = "unsubscribe_tokens"
)

// wsClient bridges one WebSocket connection and the hub.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	hub    *broadcast.Hub
	recv   <-chan []byte
	logger zerolog.Logger
}

// WebSocket serves GET /ws: upgrades, registers with the hub, and runs the
// connection's read and write pumps.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	id := uuid.New().String()
	recv, err := h.deps.Hub.Register(id)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Connection refused by hub")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseServiceRestart, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := &wsClient{
		id:     id,
		conn:   conn,
		hub:    h.deps.Hub,
		recv:   recv,
		logger: h.logger.With().Str("conn_id", id).Logger(),
	}
	client.logger.Info().Str("remote", r.RemoteAddr).Msg("Subscriber connected")

	go client.writePump()
	go client.readPump()
}

// readPump consumes subscription control messages until the peer goes away.
// It owns connection teardown: when it exits the client is unregistered,
// which also makes the write pump finish.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.conn.Close()
		c.logger.Info().Msg("Subscriber disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("Read pump closed")
			}
			return
		}
		c.handleControl(payload)
	}
}

// handleControl applies one subscriber control frame. Malformed frames are
// logged and ignored; the connection stays up.
func (c *wsClient) handleControl(payload []byte) {
	var msg controlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Debug().Err(err).Msg("Ignoring malformed control frame")
		return
	}

	switch msg.Type {
	case controlSubscribe:
		if n, err := c.hub.Subscribe(c.id, msg.Tokens...); err == nil {
			c.logger.Debug().Int("watched", n).Msg("Subscribed to tokens")
		}
	case controlUnsubscribe:
		if n, err := c.hub.Unsubscribe(c.id, msg.Tokens...); err == nil {
			c.logger.Debug().Int("watched", n).Msg("Unsubscribed from tokens")
		}
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown control type")
	}
}

// writePump forwards hub messages to the peer and keeps the connection
// alive with pings. The hub closing our channel means we were dropped or
// the server is shutting down.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.recv:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug().Err(err).Msg("Write pump closed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
