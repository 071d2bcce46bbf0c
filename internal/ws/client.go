package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

var (
	ErrClientTooSlow = errors.New("client send buffer full")
	ErrClientClosed  = errors.New("client closed")
)

// Client is a websocket connection with a buffered outbound queue drained
// by its own write pump.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	onDone func()

	mu     sync.Mutex
	closed bool
}

// newClient starts the write pump. onDone runs once when the pump exits,
// whether the client was closed or a write failed.
func newClient(id string, conn *websocket.Conn, onDone func()) *Client {
	c := &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		onDone: onDone,
	}
	go c.writePump()
	return c
}

func (c *Client) ID() string { return c.id }

// Send queues msg without blocking.
func (c *Client) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrClientTooSlow
	}
}

// Close stops the write pump after it drains queued frames. It is safe to
// call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
		c.Close()
		if c.onDone != nil {
			c.onDone()
		}
	}()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
