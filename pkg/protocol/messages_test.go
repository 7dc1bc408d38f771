package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundRegister(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"register","username":"alice"}`))
	require.NoError(t, err)

	reg, ok := msg.(*RegisterMessage)
	require.True(t, ok, "expected *RegisterMessage, got %T", msg)
	assert.Equal(t, "alice", reg.Username)
}

func TestDecodeInboundJoinLeave(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"join","group":"dev"}`))
	require.NoError(t, err)
	require.IsType(t, &JoinMessage{}, msg)
	assert.Equal(t, "dev", msg.(*JoinMessage).Group)

	msg, err = DecodeInbound([]byte(`{"type":"leave","group":"dev"}`))
	require.NoError(t, err)
	require.IsType(t, &LeaveMessage{}, msg)
	assert.Equal(t, "dev", msg.(*LeaveMessage).Group)
}

func TestDecodeInboundSend(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"msg","to":"#Global","text":"hi"}`))
	require.NoError(t, err)

	send, ok := msg.(*SendMessage)
	require.True(t, ok)
	assert.Equal(t, "#Global", send.To)
	assert.Equal(t, "hi", send.Text)
}

func TestDecodeInboundSendEmptyTextAllowed(t *testing.T) {
	msg, err := DecodeInbound([]byte(`{"type":"msg","to":"bob","text":""}`))
	require.NoError(t, err)
	assert.Equal(t, "", msg.(*SendMessage).Text)
}

func TestDecodeInboundUnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"teleport","to":"bob"}`))

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeInboundMissingFields(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"register without username", `{"type":"register"}`},
		{"register with empty username", `{"type":"register","username":""}`},
		{"join without group", `{"type":"join"}`},
		{"leave without group", `{"type":"leave"}`},
		{"msg without to", `{"type":"msg","text":"hi"}`},
		{"msg without text", `{"type":"msg","to":"bob"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tc.data))

			var protoErr *ProtocolError
			require.ErrorAs(t, err, &protoErr)
			assert.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestDecodeInboundInvalidJSON(t *testing.T) {
	_, err := DecodeInbound([]byte(`{not json`))

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestDecodeOutbound(t *testing.T) {
	msg, err := DecodeOutbound([]byte(`{"type":"user_list","users":["alice","bob"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, msg.(*UserListMessage).Users)

	msg, err = DecodeOutbound([]byte(`{"type":"group_list","groups":["Global"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Global"}, msg.(*GroupListMessage).Groups)

	msg, err = DecodeOutbound([]byte(`{"type":"system","text":"bob joined the chat"}`))
	require.NoError(t, err)
	assert.Equal(t, "bob joined the chat", msg.(*SystemMessage).Text)

	msg, err = DecodeOutbound([]byte(`{"type":"msg","from":"alice","to":"#Global","text":"hi"}`))
	require.NoError(t, err)
	chat := msg.(*ChatMessage)
	assert.Equal(t, "alice", chat.From)
	assert.Equal(t, "#Global", chat.To)
	assert.Equal(t, "hi", chat.Text)
}

func TestDecodeOutboundChatMissingFields(t *testing.T) {
	_, err := DecodeOutbound([]byte(`{"type":"msg","to":"#Global","text":"hi"}`))
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestEncodeWireShapes(t *testing.T) {
	cases := []struct {
		name string
		msg  interface{ Encode() ([]byte, error) }
		want map[string]interface{}
	}{
		{
			"register",
			&RegisterMessage{Username: "alice"},
			map[string]interface{}{"type": "register", "username": "alice"},
		},
		{
			"join",
			&JoinMessage{Group: "dev"},
			map[string]interface{}{"type": "join", "group": "dev"},
		},
		{
			"leave",
			&LeaveMessage{Group: "dev"},
			map[string]interface{}{"type": "leave", "group": "dev"},
		},
		{
			"send",
			&SendMessage{To: "bob", Text: "hey"},
			map[string]interface{}{"type": "msg", "to": "bob", "text": "hey"},
		},
		{
			"chat",
			&ChatMessage{From: "alice", To: "#Global", Text: "hi"},
			map[string]interface{}{"type": "msg", "from": "alice", "to": "#Global", "text": "hi"},
		},
		{
			"user list",
			&UserListMessage{Users: []string{"alice"}},
			map[string]interface{}{"type": "user_list", "users": []interface{}{"alice"}},
		},
		{
			"group list",
			&GroupListMessage{Groups: []string{"Global"}},
			map[string]interface{}{"type": "group_list", "groups": []interface{}{"Global"}},
		},
		{
			"system",
			&SystemMessage{Text: "notice"},
			map[string]interface{}{"type": "system", "text": "notice"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.msg.Encode()
			require.NoError(t, err)

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeNilRostersAsEmptyArrays(t *testing.T) {
	data, err := (&UserListMessage{}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user_list","users":[]}`, string(data))

	data, err = (&GroupListMessage{}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"group_list","groups":[]}`, string(data))
}

func TestParseTarget(t *testing.T) {
	direct := ParseTarget("bob")
	assert.False(t, direct.IsGroup)
	assert.Equal(t, "bob", direct.Name)
	assert.Equal(t, "bob", direct.String())

	group := ParseTarget("#Global")
	assert.True(t, group.IsGroup)
	assert.Equal(t, "Global", group.Name)
	assert.Equal(t, "#Global", group.String())
}

func TestMessageTypeName(t *testing.T) {
	assert.Equal(t, "register", MessageTypeName(&RegisterMessage{}))
	assert.Equal(t, "msg", MessageTypeName(&SendMessage{}))
	assert.Equal(t, "msg", MessageTypeName(&ChatMessage{}))
	assert.Equal(t, "system", MessageTypeName(&SystemMessage{}))
	assert.Equal(t, "unknown", MessageTypeName(42))
}
