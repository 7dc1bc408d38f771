package client

import (
	"io"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/chatrelay/pkg/protocol"
	"github.com/aeolun/chatrelay/pkg/server"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func startServer(t *testing.T) string {
	t.Helper()

	cfg := server.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.TCPPort = 0
	cfg.HTTPPort = -1

	srv := server.NewServer(cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		srv.Stop()
	})

	return srv.Addr().String()
}

func dialClient(t *testing.T, addr, username string) *Client {
	t.Helper()

	c, err := Dial(addr, username)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
	})

	return c
}

func nextEvent(t *testing.T, c *Client) interface{} {
	t.Helper()

	select {
	case msg, ok := <-c.Events():
		require.True(t, ok, "event channel closed: %v", c.Err())
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// drainRegistration consumes the roster broadcasts and arrival notice
// the server sends on registration
func drainRegistration(t *testing.T, c *Client) {
	t.Helper()

	for i := 0; i < 3; i++ {
		nextEvent(t, c)
	}
}

func TestClientRegistrationEvents(t *testing.T) {
	addr := startServer(t)

	c := dialClient(t, addr, "alice")

	userList, ok := nextEvent(t, c).(*protocol.UserListMessage)
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, userList.Users)

	groupList, ok := nextEvent(t, c).(*protocol.GroupListMessage)
	require.True(t, ok)
	assert.Equal(t, []string{"Global"}, groupList.Groups)

	system, ok := nextEvent(t, c).(*protocol.SystemMessage)
	require.True(t, ok)
	assert.Equal(t, "alice joined the chat", system.Text)
}

func TestClientSendAndReceive(t *testing.T) {
	addr := startServer(t)

	alice := dialClient(t, addr, "alice")
	drainRegistration(t, alice)

	bob := dialClient(t, addr, "bob")
	drainRegistration(t, bob)
	drainRegistration(t, alice) // alice sees bob arrive

	require.NoError(t, alice.Send("bob", "hi bob"))

	chat, ok := nextEvent(t, bob).(*protocol.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, &protocol.ChatMessage{From: "alice", To: "bob", Text: "hi bob"}, chat)
}

func TestClientJoinAndGroupSend(t *testing.T) {
	addr := startServer(t)

	alice := dialClient(t, addr, "alice")
	drainRegistration(t, alice)

	require.NoError(t, alice.Join("dev"))

	system, ok := nextEvent(t, alice).(*protocol.SystemMessage)
	require.True(t, ok)
	assert.Equal(t, "alice joined #dev", system.Text)

	groupList, ok := nextEvent(t, alice).(*protocol.GroupListMessage)
	require.True(t, ok)
	assert.Equal(t, []string{"Global", "dev"}, groupList.Groups)

	require.NoError(t, alice.Send("#dev", "standup time"))

	chat, ok := nextEvent(t, alice).(*protocol.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "#dev", chat.To)
	assert.Equal(t, "standup time", chat.Text)
}

func TestClientLeaveGroup(t *testing.T) {
	addr := startServer(t)

	alice := dialClient(t, addr, "alice")
	drainRegistration(t, alice)

	require.NoError(t, alice.Join("dev"))
	nextEvent(t, alice) // join notice
	nextEvent(t, alice) // group_list

	require.NoError(t, alice.Leave("dev"))

	groupList, ok := nextEvent(t, alice).(*protocol.GroupListMessage)
	require.True(t, ok)
	assert.Equal(t, []string{"Global"}, groupList.Groups)
}

// A rejected registration surfaces as a notice followed by a closed
// event channel
func TestClientDuplicateUsername(t *testing.T) {
	addr := startServer(t)

	alice := dialClient(t, addr, "alice")
	drainRegistration(t, alice)

	imposter := dialClient(t, addr, "alice")

	system, ok := nextEvent(t, imposter).(*protocol.SystemMessage)
	require.True(t, ok)
	assert.Contains(t, system.Text, "already taken")

	select {
	case _, ok := <-imposter.Events():
		assert.False(t, ok, "expected closed event channel")
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after rejection")
	}
}

func TestClientCloseEndsEventStream(t *testing.T) {
	addr := startServer(t)

	alice := dialClient(t, addr, "alice")
	drainRegistration(t, alice)

	require.NoError(t, alice.Close())

	for {
		select {
		case _, ok := <-alice.Events():
			if !ok {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("event channel not closed after Close")
		}
	}
}

func TestClientDialFailure(t *testing.T) {
	_, err := Dial("127.0.0.1:1", "alice")
	assert.Error(t, err)
}
