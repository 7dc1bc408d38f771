package server

import (
	"net"
	"sync"
	"time"

	"github.com/aeolun/chatrelay/pkg/protocol"
)

// SafeConn wraps a net.Conn with automatic write synchronization and a
// bounded per-write deadline, so one stalled peer is dropped instead of
// wedging whichever goroutine happens to be fanning out to it.
type SafeConn struct {
	conn         net.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closed       bool
	closeMu      sync.Mutex
}

// NewSafeConn wraps conn. A zero writeTimeout disables write deadlines.
func NewSafeConn(conn net.Conn, writeTimeout time.Duration) *SafeConn {
	return &SafeConn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// WriteFrame serializes one frame to the connection. Frames from
// concurrent writers never interleave.
func (c *SafeConn) WriteFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return net.ErrClosed
	}

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	return protocol.WriteFrame(c.conn, payload)
}

// Close closes the underlying connection. Safe to call more than once.
func (c *SafeConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *SafeConn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// RemoteAddr returns the remote address of the underlying connection
func (c *SafeConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Session associates one registered identity with exactly one live
// connection. Created on successful registration, destroyed at
// teardown; the identity never changes in between.
type Session struct {
	ID       uint64
	Identity string
	Conn     *SafeConn
}
