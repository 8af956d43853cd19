// Package realtime manages websocket connections and local delivery.
package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/polychat/chat-platform/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	sendBuffer = 128
)

// Connection wraps one websocket and serializes outbound writes through a
// buffered channel. Safe for concurrent use.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

// NewConnection constructs a Connection for the given user.
func NewConnection(userID string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		ws:          ws,
		send:        make(chan []byte, sendBuffer),
		closed:      make(chan struct{}),
	}
}

// Start launches the write loop. Call exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. A closed connection or a full buffer
// (slow client) reports the connection as gone; the caller deregisters it.
func (c *Connection) Send(payload []byte) error {
	// Checked first on its own: a combined select would pick between a
	// closed channel and free buffer space at random.
	select {
	case <-c.closed:
		return fmt.Errorf("connection %s: %w", c.ID, model.ErrGone)
	default:
	}
	select {
	case <-c.closed:
		return fmt.Errorf("connection %s: %w", c.ID, model.ErrGone)
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return fmt.Errorf("connection %s buffer exceeded: %w", c.ID, model.ErrGone)
	}
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
