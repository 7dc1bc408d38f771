package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/aeolun/chatrelay/pkg/protocol"
)

// runSession drives one connection through its lifecycle:
// Unregistered → Registered → Closed, with no reverse transitions.
// Every exit path funnels through the deferred teardown, so cleanup
// runs exactly once per registered session.
func (s *Server) runSession(conn net.Conn) {
	sc := NewSafeConn(conn, s.config.WriteTimeout)
	defer sc.Close()

	reader := protocol.NewLineReader(conn)

	sess, err := s.awaitRegistration(sc, reader)
	if err != nil {
		if !isDisconnect(err) {
			debugLog.Printf("Connection %s: registration failed: %v", conn.RemoteAddr(), err)
		}
		return
	}

	debugLog.Printf("Session %d registered as %q", sess.ID, sess.Identity)
	defer s.teardownSession(sess)

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			if isDisconnect(err) {
				debugLog.Printf("Session %d (%s) disconnected", sess.ID, sess.Identity)
			} else {
				debugLog.Printf("Session %d (%s) read error: %v", sess.ID, sess.Identity, err)
			}
			return
		}

		msg, err := protocol.DecodeInbound(frame)
		if err != nil {
			// Malformed or unknown message: fatal to this connection
			debugLog.Printf("Session %d (%s): %v", sess.ID, sess.Identity, err)
			s.sendSystem(sc, err.Error())
			return
		}

		if s.metrics != nil {
			s.metrics.RecordMessageReceived(protocol.MessageTypeName(msg))
		}

		switch m := msg.(type) {
		case *protocol.RegisterMessage:
			// The identity is set once and immutable afterwards
			s.sendSystem(sc, fmt.Sprintf("already registered as %q", sess.Identity))
		case *protocol.JoinMessage:
			s.handleJoin(sess, m)
		case *protocol.LeaveMessage:
			s.handleLeave(sess, m)
		case *protocol.SendMessage:
			s.handleSend(sess, m)
		}
	}
}

// awaitRegistration reads frames until the connection either registers
// or violates the protocol. In the Unregistered state only a register
// message is acceptable; anything else closes the connection.
func (s *Server) awaitRegistration(sc *SafeConn, reader *protocol.LineReader) (*Session, error) {
	frame, err := reader.ReadFrame()
	if err != nil {
		return nil, err
	}

	msg, err := protocol.DecodeInbound(frame)
	if err != nil {
		s.sendSystem(sc, err.Error())
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMessageReceived(protocol.MessageTypeName(msg))
	}

	reg, ok := msg.(*protocol.RegisterMessage)
	if !ok {
		s.sendSystem(sc, "you must register before doing anything else")
		return nil, fmt.Errorf("expected %s, got %s", protocol.TypeRegister, protocol.MessageTypeName(msg))
	}

	if err := validateName(reg.Username, s.config.MaxIdentityLength); err != nil {
		s.sendSystem(sc, fmt.Sprintf("invalid username: %v", err))
		return nil, fmt.Errorf("invalid username %q: %w", reg.Username, err)
	}

	sess, err := s.registry.Register(reg.Username, sc)
	if err != nil {
		// Rejection closes this connection; the session holding the
		// identity is untouched
		s.sendSystem(sc, fmt.Sprintf("username %q is already taken", reg.Username))
		return nil, err
	}

	// Every registered identity is a member of the default group.
	// Register guarantees the identity is fresh, so this cannot fail.
	s.directory.Join(sess.Identity, s.directory.DefaultGroup())

	s.router.BroadcastUserList()
	s.router.BroadcastGroupList()
	s.router.NotifyGroup(s.directory.DefaultGroup(), fmt.Sprintf("%s joined the chat", sess.Identity))

	return sess, nil
}

// teardownSession runs the exactly-once cleanup for a registered
// session: purge registry and directory state, then tell everyone
// left. An unregistered connection never reaches this point.
func (s *Server) teardownSession(sess *Session) {
	sess.Conn.Close()

	if !s.registry.Remove(sess.Identity) {
		// Already removed by CloseAll during shutdown
		return
	}
	s.directory.RemoveIdentityFromAll(sess.Identity)

	select {
	case <-s.shutdown:
		return
	default:
	}

	s.router.NotifyGroup(s.directory.DefaultGroup(), fmt.Sprintf("%s left the chat", sess.Identity))
	s.router.BroadcastUserList()
	s.router.BroadcastGroupList()
}

// handleJoin handles a join request from a registered session
func (s *Server) handleJoin(sess *Session, msg *protocol.JoinMessage) {
	if err := validateName(msg.Group, s.config.MaxGroupNameLength); err != nil {
		s.sendSystem(sess.Conn, fmt.Sprintf("invalid group name: %v", err))
		return
	}

	created, err := s.directory.Join(sess.Identity, msg.Group)
	if err != nil {
		s.sendSystem(sess.Conn, fmt.Sprintf("cannot join %s%s: %v", protocol.GroupSigil, msg.Group, err))
		return
	}

	if created {
		debugLog.Printf("Session %d (%s) created group %q", sess.ID, sess.Identity, msg.Group)
	}

	s.router.NotifyGroup(msg.Group, fmt.Sprintf("%s joined %s%s", sess.Identity, protocol.GroupSigil, msg.Group))
	s.router.BroadcastGroupList()
}

// handleLeave handles a leave request from a registered session
func (s *Server) handleLeave(sess *Session, msg *protocol.LeaveMessage) {
	if err := s.directory.Leave(sess.Identity, msg.Group); err != nil {
		s.sendSystem(sess.Conn, fmt.Sprintf("cannot leave %s%s: %v", protocol.GroupSigil, msg.Group, err))
		return
	}

	s.router.NotifyGroup(msg.Group, fmt.Sprintf("%s left %s%s", sess.Identity, protocol.GroupSigil, msg.Group))
	s.router.BroadcastGroupList()
}

// handleSend routes a chat message to its direct or group target
func (s *Server) handleSend(sess *Session, msg *protocol.SendMessage) {
	target := protocol.ParseTarget(msg.To)
	chat := &protocol.ChatMessage{From: sess.Identity, To: msg.To, Text: msg.Text}

	if target.IsGroup {
		// Only members may post into a group. A non-member send is
		// dropped: no delivery, no error to the sender.
		if !s.directory.IsMember(sess.Identity, target.Name) {
			debugLog.Printf("Session %d (%s): dropped message to %s (not a member)",
				sess.ID, sess.Identity, msg.To)
			return
		}

		members, _ := s.directory.MembersOf(target.Name)
		s.router.DeliverMessage(chat, members)
		return
	}

	// A direct target that resolves to no session drops the message:
	// best effort, at most once, never queued
	s.router.DeliverMessage(chat, []string{target.Name})
}

// sendSystem writes a system notice to a single connection
func (s *Server) sendSystem(conn *SafeConn, text string) {
	payload, err := (&protocol.SystemMessage{Text: text}).Encode()
	if err != nil {
		errorLog.Printf("Failed to encode system notice: %v", err)
		return
	}

	if err := conn.WriteFrame(payload); err != nil {
		debugLog.Printf("Failed to send system notice: %v", err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordMessagesSent(protocol.TypeSystem, 1)
	}
}

// validateName checks an identity or group name against the configured
// limits. The sigil prefix is reserved for group targets.
func validateName(name string, maxLen int) error {
	if strings.HasPrefix(name, protocol.GroupSigil) {
		return fmt.Errorf("must not start with %q", protocol.GroupSigil)
	}
	if len(name) > maxLen {
		return fmt.Errorf("longer than %d bytes", maxLen)
	}
	return nil
}

// isDisconnect reports whether the error is an ordinary peer close
// rather than a protocol or framing violation
func isDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
