package server

import (
	"sort"
	"sync"
)

// Registry is the authoritative mapping from identity to active
// session. It is the single source of truth for resolving a direct
// message target and for building the user roster.
//
// All operations are serialized by one mutex; no caller performs
// network I/O while holding it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextID   uint64
	metrics  *Metrics
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		nextID:   1,
	}
}

// SetMetrics attaches metrics to the registry
func (r *Registry) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// Register atomically checks-and-inserts the identity. If a live
// session already holds it, the call fails with ErrDuplicateIdentity
// and the caller must close its connection; the existing session is
// never overwritten.
func (r *Registry) Register(identity string, conn *SafeConn) (*Session, error) {
	r.mu.Lock()

	if _, taken := r.sessions[identity]; taken {
		r.mu.Unlock()
		return nil, ErrDuplicateIdentity
	}

	sess := &Session{
		ID:       r.nextID,
		Identity: identity,
		Conn:     conn,
	}
	r.nextID++
	r.sessions[identity] = sess
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordRegisteredUsers(count)
		r.metrics.RecordSessionRegistered()
	}

	return sess, nil
}

// Lookup resolves a direct-message target. Absence is not an error:
// a message to an unknown identity is simply dropped by the caller.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[identity]
	return sess, ok
}

// Remove deletes the identity's session. Idempotent; reports whether
// a session was actually removed.
func (r *Registry) Remove(identity string) bool {
	r.mu.Lock()
	_, ok := r.sessions[identity]
	delete(r.sessions, identity)
	count := len(r.sessions)
	r.mu.Unlock()

	if ok && r.metrics != nil {
		r.metrics.RecordRegisteredUsers(count)
		r.metrics.RecordSessionUnregistered()
	}

	return ok
}

// AllIdentities returns a sorted point-in-time copy of the registered
// identities. Iterating the copy cannot race with concurrent mutation.
func (r *Registry) AllIdentities() []string {
	r.mu.RLock()
	identities := make([]string, 0, len(r.sessions))
	for identity := range r.sessions {
		identities = append(identities, identity)
	}
	r.mu.RUnlock()

	sort.Strings(identities)
	return identities
}

// Resolve maps identities to their live sessions in one critical
// section. Identities without a session are skipped.
func (r *Registry) Resolve(identities []string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(identities))
	for _, identity := range identities {
		if sess, ok := r.sessions[identity]; ok {
			sessions = append(sessions, sess)
		}
	}
	return sessions
}

// AllSessions returns a point-in-time copy of all live sessions
func (r *Registry) AllSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Count returns the number of registered identities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// CloseAll closes every session's connection and empties the registry.
// Used at server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Conn.Close()
	}
}
