package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/standupbot/report-server-go/internal/config"
)

var ErrConnClosed = errors.New("connection closed")

// Socket is the part of *websocket.Conn a Conn writes through.
type Socket interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Socket = (*websocket.Conn)(nil)

// Conn is one live login socket. Writes are serialized because the
// underlying connection supports a single concurrent writer.
type Conn struct {
	SessionID  string
	ReferredBy string
	OpenedAt   time.Time

	sock      Socket
	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	reserved atomic.Bool
	claims   atomic.Int64
}

func NewConn(sessionID, referredBy string, sock Socket) *Conn {
	return &Conn{
		SessionID:  sessionID,
		ReferredBy: referredBy,
		OpenedAt:   time.Now(),
		sock:       sock,
		done:       make(chan struct{}),
	}
}

func (c *Conn) SendJSON(v any) error {
	if c.closed.Load() {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.sock.SetWriteDeadline(time.Now().Add(config.WSWriteTimeout)); err != nil {
		return err
	}
	return c.sock.WriteJSON(v)
}

func (c *Conn) Ping() error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.WSWriteTimeout))
}

// Close is idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.sock.Close()
	})
	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Reserve marks the session as claimed. It returns false if it already was.
func (c *Conn) Reserve() bool {
	return c.reserved.CompareAndSwap(false, true)
}

// Release undoes a Reserve after a failed claim.
func (c *Conn) Release() {
	c.reserved.Store(false)
}

// RecordClaim counts a successful claim and returns the new total.
func (c *Conn) RecordClaim() int64 {
	return c.claims.Add(1)
}

func (c *Conn) Claims() int64 {
	return c.claims.Load()
}
