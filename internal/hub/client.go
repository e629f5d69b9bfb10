package hub

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmxx/dmxx-go/internal/auth"
	"github.com/dmxx/dmxx-go/internal/metrics"
)

const (
	// defaultWriteDeadline bounds a single client write; stalled clients
	// are dropped rather than back-pressuring the hub.
	defaultWriteDeadline = 5 * time.Second

	// sendQueueSize bounds the per-client outbound queue. Overflow
	// disconnects the client.
	sendQueueSize = 256

	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 64 * 1024
)

// Client is one connected operator session.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ip   string

	// done is closed by unregister to stop the write pump. The send
	// channel itself is never closed: broadcast fan-out queues into it
	// without holding the registry lock, so closing it could race a
	// concurrent send.
	done chan struct{}

	// identity is nil until the auth handshake succeeds. It is read by
	// broadcast fan-out and written by the read pump.
	identity atomic.Pointer[auth.Identity]
}

// Identity returns the authenticated identity, or nil.
func (c *Client) Identity() *auth.Identity {
	return c.identity.Load()
}

// queue enqueues a marshaled event without blocking. Returns false when
// the client's queue overflowed and it should be dropped.
func (c *Client) queue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// readPump reads commands until the connection dies, then unregisters.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("🔌 Client %s read error: %v", c.ID, err)
			}
			return
		}
		c.hub.dispatch(c, message)
	}
}

// writePump drains the send queue with a bounded write deadline and
// keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeDeadline))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dropClient disconnects a slow consumer.
func (c *Client) drop(reason string) {
	metrics.ClientsDropped.Inc()
	log.Printf("🔌 Dropping client %s: %s", c.ID, reason)
	_ = c.conn.Close()
}
