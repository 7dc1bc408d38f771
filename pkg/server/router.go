package server

import (
	"time"

	"github.com/aeolun/chatrelay/pkg/protocol"
)

// Router fans frames out to resolved targets. Target sessions are
// snapshotted under the Registry lock and every write happens after
// the lock is released, so one slow socket never serializes against
// unrelated state mutations.
type Router struct {
	registry  *Registry
	directory *Directory
	metrics   *Metrics
}

// NewRouter creates a router over the given registry and directory
func NewRouter(registry *Registry, directory *Directory) *Router {
	return &Router{
		registry:  registry,
		directory: directory,
	}
}

// SetMetrics attaches metrics to the router
func (rt *Router) SetMetrics(metrics *Metrics) {
	rt.metrics = metrics
}

// Deliver sends one encoded frame to every identity that resolves to a
// live session, one independent write per target. A failed or stalled
// write is logged, counted, and the dead connection closed; it never
// delays the other targets and never surfaces to the sender. Returns
// the number of successful deliveries.
func (rt *Router) Deliver(payload []byte, identities []string) int {
	sessions := rt.registry.Resolve(identities)

	delivered := 0
	for _, sess := range sessions {
		if err := sess.Conn.WriteFrame(payload); err != nil {
			debugLog.Printf("Session %d (%s): delivery failed: %v", sess.ID, sess.Identity, err)
			if rt.metrics != nil {
				rt.metrics.RecordDeliveryDropped()
			}
			// Closing unblocks the session handler, which owns cleanup
			sess.Conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// DeliverMessage encodes a typed message and delivers it
func (rt *Router) DeliverMessage(msg interface{ Encode() ([]byte, error) }, identities []string) int {
	payload, err := msg.Encode()
	if err != nil {
		errorLog.Printf("Failed to encode %s message: %v", protocol.MessageTypeName(msg), err)
		return 0
	}

	delivered := rt.Deliver(payload, identities)
	if rt.metrics != nil {
		rt.metrics.RecordMessagesSent(protocol.MessageTypeName(msg), delivered)
	}
	return delivered
}

// BroadcastUserList sends the current identity roster to everyone.
// The roster is a consistent snapshot at the moment of the triggering
// mutation; recipients tolerate it going stale in flight.
func (rt *Router) BroadcastUserList() {
	start := time.Now()

	identities := rt.registry.AllIdentities()
	delivered := rt.DeliverMessage(&protocol.UserListMessage{Users: identities}, identities)

	if rt.metrics != nil {
		rt.metrics.RecordBroadcastFanout("user_list", delivered)
		rt.metrics.RecordBroadcastDuration("user_list", time.Since(start).Seconds())
	}
}

// BroadcastGroupList sends the current group roster to everyone
func (rt *Router) BroadcastGroupList() {
	start := time.Now()

	groups := rt.directory.AllGroupNames()
	identities := rt.registry.AllIdentities()
	delivered := rt.DeliverMessage(&protocol.GroupListMessage{Groups: groups}, identities)

	if rt.metrics != nil {
		rt.metrics.RecordBroadcastFanout("group_list", delivered)
		rt.metrics.RecordBroadcastDuration("group_list", time.Since(start).Seconds())
	}
}

// NotifyGroup sends a system notice to every current member of a group
func (rt *Router) NotifyGroup(group, text string) {
	members, exists := rt.directory.MembersOf(group)
	if !exists {
		return
	}
	rt.DeliverMessage(&protocol.SystemMessage{Text: text}, members)
}
