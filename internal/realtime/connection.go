package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/pkg/jwt"
)

// Connection is one authenticated realtime session. Identity is fixed at
// connect; room membership changes only through subscribe/unsubscribe
// messages and is never persisted.
type Connection struct {
	ID       string
	UserID   string
	ClientID string
	Role     string

	ws   *websocket.Conn
	send chan []byte
	hub  *Hub

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newConnection(id string, claims *jwt.Claims, ws *websocket.Conn, hub *Hub, logger zerolog.Logger) *Connection {
	return &Connection{
		ID:       id,
		UserID:   claims.UserID,
		ClientID: claims.ClientID,
		Role:     claims.Role,
		ws:       ws,
		send:     make(chan []byte, constants.DefaultSendBufferSize),
		hub:      hub,
		logger:   logger.With().Str("connection_id", id).Str("user_id", claims.UserID).Logger(),
	}
}

// privileged reports whether the session's role may watch all devices.
func (c *Connection) privileged() bool {
	return c.Role == constants.RoleAdmin || c.Role == constants.RoleSuperAdmin
}

// enqueue offers a marshaled event to the connection without blocking.
// A full buffer means the client cannot keep up; the connection is dropped
// rather than stalling the broadcast path.
func (c *Connection) enqueue(msg []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
		return
	default:
	}
	c.mu.Unlock()

	c.logger.Warn().Msg("Send buffer full, dropping slow connection")
	c.close()
}

// close tears the session down exactly once.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.hub.unregister(c)
		close(c.send)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

// readPump consumes client messages until the connection dies and hands
// them to the hub.
func (c *Connection) readPump() {
	defer c.close()

	c.ws.SetReadLimit(64 * 1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(constants.DefaultPongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(constants.DefaultPongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}
		c.hub.handleMessage(c, raw)
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(constants.DefaultPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(constants.DefaultWriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(constants.DefaultWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
