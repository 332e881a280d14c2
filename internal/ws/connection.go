// Package ws carries the feed session protocol over WebSocket transports.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures a single connection. Binary selects binary frames for
// outbound messages; the wire payload is JSON either way.
type Options struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	BufferSize   int
	Binary       bool
}

func (o *Options) withDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
}

// Connection wraps a gorilla WebSocket connection behind a single writer
// goroutine. All writes are funneled through a buffered channel so the hub's
// fan-out never races on the underlying socket; a slow client fills the
// buffer and gets a write timeout rather than stalling other recipients.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte
	msgType   int
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps conn and starts its writer goroutine.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	opts.withDefaults()
	msgType := websocket.TextMessage
	if opts.Binary {
		msgType = websocket.BinaryMessage
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		writeCh: make(chan []byte, opts.BufferSize),
		msgType: msgType,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	go c.writeLoop()
	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(c.msgType, data); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteMessage queues data for the writer goroutine. It fails fast on a
// closed connection and times out instead of blocking when the client has
// stopped draining.
func (c *Connection) WriteMessage(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.opts.WriteTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Read blocks for the next text or binary frame, refreshing the read
// deadline first. Control frames are consumed by gorilla internally.
func (c *Connection) Read() ([]byte, error) {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
			return nil, err
		}
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// pingLoop sends protocol-level pings until the connection dies. Run as a
// goroutine; the pong handler refreshes the read deadline.
func (c *Connection) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Close tears the connection down exactly once. Cancelling the context stops
// the writer and ping goroutines and fails queued sends.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
