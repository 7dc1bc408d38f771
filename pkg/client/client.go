// Package client implements the collaborator side of the relay wire
// protocol: dial, register, join/leave groups, send messages, and
// receive the four outbound frame kinds as a typed event stream. It
// owns no presentation concerns.
package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/aeolun/chatrelay/pkg/protocol"
)

// Client is one registered connection to a relay server. Events
// arriving from the server are exposed on Events(); the channel closes
// when the connection does, after which Err reports why.
type Client struct {
	conn   net.Conn
	events chan interface{}

	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

// DialTimeout bounds connection establishment
const DialTimeout = 10 * time.Second

// Dial connects to the server and submits a registration for the
// given username. Registration is asynchronous: if the username is
// taken the server replies with a system notice and closes the
// connection, which surfaces as a closed event channel.
func Dial(addr, username string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan interface{}, 16),
	}

	if err := c.send(&protocol.RegisterMessage{Username: username}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// Join asks the server to add this client to a group
func (c *Client) Join(group string) error {
	return c.send(&protocol.JoinMessage{Group: group})
}

// Leave asks the server to remove this client from a group
func (c *Client) Leave(group string) error {
	return c.send(&protocol.LeaveMessage{Group: group})
}

// Send submits a chat message. A target starting with the group sigil
// addresses a group, anything else a single user.
func (c *Client) Send(to, text string) error {
	return c.send(&protocol.SendMessage{To: to, Text: text})
}

// Events returns the stream of server messages: *protocol.UserListMessage,
// *protocol.GroupListMessage, *protocol.SystemMessage or
// *protocol.ChatMessage. The channel closes on disconnect.
func (c *Client) Events() <-chan interface{} {
	return c.events
}

// Err reports why the event channel closed. Nil for a clean close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close shuts the connection down. The event channel closes once the
// read loop observes it.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Client) send(msg interface{ Encode() ([]byte, error) }) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteFrame(c.conn, payload)
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer c.Close()

	reader := protocol.NewLineReader(c.conn)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			c.setErr(err)
			return
		}

		msg, err := protocol.DecodeOutbound(frame)
		if err != nil {
			c.setErr(err)
			return
		}

		c.events <- msg
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
