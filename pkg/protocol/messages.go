package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound message types (client → server)
const (
	TypeRegister = "register"
	TypeJoin     = "join"
	TypeLeave    = "leave"
	TypeMsg      = "msg"
)

// Outbound message types (server → client)
const (
	TypeUserList  = "user_list"
	TypeGroupList = "group_list"
	TypeSystem    = "system"
)

// GroupSigil prefixes a group name in a message target
const GroupSigil = "#"

var (
	ErrInvalidJSON  = errors.New("invalid JSON")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// ProtocolError indicates a malformed or unknown application message.
// Like FramingError it is fatal to the offending connection only.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Target is the recipient specification of a chat message: either a
// bare identity (direct) or a sigil-prefixed group name.
type Target struct {
	Name    string
	IsGroup bool
}

// ParseTarget splits a wire-format target into name and kind
func ParseTarget(to string) Target {
	if strings.HasPrefix(to, GroupSigil) {
		return Target{Name: strings.TrimPrefix(to, GroupSigil), IsGroup: true}
	}
	return Target{Name: to}
}

// String returns the wire form of the target
func (t Target) String() string {
	if t.IsGroup {
		return GroupSigil + t.Name
	}
	return t.Name
}

// RegisterMessage claims an identity for the connection
type RegisterMessage struct {
	Username string `json:"username"`
}

// JoinMessage adds the sender to a group, creating it if needed
type JoinMessage struct {
	Group string `json:"group"`
}

// LeaveMessage removes the sender from a group
type LeaveMessage struct {
	Group string `json:"group"`
}

// SendMessage submits a chat message to a direct or group target
type SendMessage struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// ChatMessage is a routed chat message as delivered to recipients
type ChatMessage struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// UserListMessage is the roster of currently registered identities
type UserListMessage struct {
	Users []string `json:"users"`
}

// GroupListMessage is the roster of currently existing groups
type GroupListMessage struct {
	Groups []string `json:"groups"`
}

// SystemMessage is a server-generated notice for a single connection
// or a group of connections
type SystemMessage struct {
	Text string `json:"text"`
}

// envelope is the superset of all wire fields. Pointer fields
// distinguish absent from empty during validation.
type envelope struct {
	Type     string   `json:"type"`
	Username *string  `json:"username,omitempty"`
	Group    *string  `json:"group,omitempty"`
	To       *string  `json:"to,omitempty"`
	From     *string  `json:"from,omitempty"`
	Text     *string  `json:"text,omitempty"`
	Users    []string `json:"users,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

// DecodeInbound parses one frame into a typed client → server message.
// Unknown types and missing fields yield a ProtocolError.
func DecodeInbound(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)}
	}

	switch env.Type {
	case TypeRegister:
		if env.Username == nil || *env.Username == "" {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: username", ErrMissingField)}
		}
		return &RegisterMessage{Username: *env.Username}, nil

	case TypeJoin:
		if env.Group == nil || *env.Group == "" {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: group", ErrMissingField)}
		}
		return &JoinMessage{Group: *env.Group}, nil

	case TypeLeave:
		if env.Group == nil || *env.Group == "" {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: group", ErrMissingField)}
		}
		return &LeaveMessage{Group: *env.Group}, nil

	case TypeMsg:
		if env.To == nil || *env.To == "" {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: to", ErrMissingField)}
		}
		if env.Text == nil {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: text", ErrMissingField)}
		}
		return &SendMessage{To: *env.To, Text: *env.Text}, nil

	default:
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %q", ErrUnknownType, env.Type)}
	}
}

// DecodeOutbound parses one frame into a typed server → client
// message. Used by clients and tests.
func DecodeOutbound(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)}
	}

	switch env.Type {
	case TypeUserList:
		return &UserListMessage{Users: env.Users}, nil

	case TypeGroupList:
		return &GroupListMessage{Groups: env.Groups}, nil

	case TypeSystem:
		if env.Text == nil {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: text", ErrMissingField)}
		}
		return &SystemMessage{Text: *env.Text}, nil

	case TypeMsg:
		if env.From == nil || env.To == nil || env.Text == nil {
			return nil, &ProtocolError{Err: fmt.Errorf("%w: from/to/text", ErrMissingField)}
		}
		return &ChatMessage{From: *env.From, To: *env.To, Text: *env.Text}, nil

	default:
		return nil, &ProtocolError{Err: fmt.Errorf("%w: %q", ErrUnknownType, env.Type)}
	}
}

// Encode serializes the message with its type tag
func (m *RegisterMessage) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}{TypeRegister, m.Username})
}

// Encode serializes the message with its type tag
func (m *JoinMessage) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Group string `json:"group"`
	}{TypeJoin, m.Group})
}

// Encode serializes the message with its type tag
func (m *LeaveMessage) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Group string `json:"group"`
	}{TypeLeave, m.Group})
}

// Encode serializes the message with its type tag
func (m *SendMessage) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		To   string `json:"to"`
		Text string `json:"text"`
	}{TypeMsg, m.To, m.Text})
}

// Encode serializes the message with its type tag
func (m *ChatMessage) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		From string `json:"from"`
		To   string `json:"to"`
		Text string `json:"text"`
	}{TypeMsg, m.From, m.To, m.Text})
}

// Encode serializes the message with its type tag. A nil slice is
// encoded as an empty array, never as null.
func (m *UserListMessage) Encode() ([]byte, error) {
	users := m.Users
	if users == nil {
		users = []string{}
	}
	return json.Marshal(struct {
		Type  string   `json:"type"`
		Users []string `json:"users"`
	}{TypeUserList, users})
}

// Encode serializes the message with its type tag. A nil slice is
// encoded as an empty array, never as null.
func (m *GroupListMessage) Encode() ([]byte, error) {
	groups := m.Groups
	if groups == nil {
		groups = []string{}
	}
	return json.Marshal(struct {
		Type   string   `json:"type"`
		Groups []string `json:"groups"`
	}{TypeGroupList, groups})
}

// Encode serializes the message with its type tag
func (m *SystemMessage) Encode() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{TypeSystem, m.Text})
}

// MessageTypeName returns the wire type tag for a decoded message,
// for logging and metrics labels
func MessageTypeName(msg interface{}) string {
	switch msg.(type) {
	case *RegisterMessage:
		return TypeRegister
	case *JoinMessage:
		return TypeJoin
	case *LeaveMessage:
		return TypeLeave
	case *SendMessage, *ChatMessage:
		return TypeMsg
	case *UserListMessage:
		return TypeUserList
	case *GroupListMessage:
		return TypeGroupList
	case *SystemMessage:
		return TypeSystem
	default:
		return "unknown"
	}
}
