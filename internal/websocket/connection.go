// Package websocket adapts gorilla/websocket connections to the race server.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"racetrack/pkg/interfaces"
)

// Options tunes every connection the Handler accepts.
type Options struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BufferSize     int
	MaxMessageSize int64
}

// DefaultOptions returns the transport settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		BufferSize:     256,
		MaxMessageSize: 64 * 1024,
	}
}

// Connection wraps one websocket with a single writer goroutine.
//
// Send never blocks: frames are queued on a bounded buffer and a full buffer
// is reported to the caller. A failed write closes the connection, which in
// turn ends the read pump and releases the seat.
type Connection struct {
	id      string
	conn    *websocket.Conn
	opts    Options
	writeCh chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu            sync.RWMutex
	sessionCode   string
	participantID string
	seated        bool
}

var _ interfaces.Connection = (*Connection)(nil)

// NewConnection wraps conn and starts its writer.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	c := newConnection(conn, opts)
	go c.writeLoop()
	return c
}

func newConnection(conn *websocket.Conn, opts Options) *Connection {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:      uuid.NewString(),
		conn:    conn,
		opts:    opts,
		writeCh: make(chan []byte, opts.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Connection) writeLoop() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-c.writeCh:
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("write failed, closing connection")
				_ = c.Close()
				return
			}

		case <-ping:
			deadline := time.Now().Add(c.writeTimeout())
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("ping failed, closing connection")
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout())); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Connection) writeTimeout() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return DefaultOptions().WriteTimeout
}

// ID returns the connection id assigned at upgrade.
func (c *Connection) ID() string { return c.id }

// Send queues one text frame.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// SetSeat records the seat this connection holds.
func (c *Connection) SetSeat(sessionCode, participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCode = sessionCode
	c.participantID = participantID
	c.seated = true
}

// Seat returns the recorded seat, if any.
func (c *Connection) Seat() (string, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionCode, c.participantID, c.seated
}

// ClearSeat forgets the recorded seat.
func (c *Connection) ClearSeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCode = ""
	c.participantID = ""
	c.seated = false
}
