package server

import (
	"sort"
	"sync"
)

// Directory is the authoritative mapping from group name to member
// identities. It is the single source of truth for resolving a group
// message target and for building the group roster.
//
// The default group always exists: every identity joins it at
// registration, explicit leaves are rejected, and it survives even
// when disconnects empty it out. Ad-hoc groups are created by the
// first join and deleted when their membership drops to zero.
//
// Same lock discipline as the Registry: one mutex, never held across
// network I/O, and never held together with the Registry's.
type Directory struct {
	mu           sync.Mutex
	groups       map[string]map[string]struct{}
	defaultGroup string
	metrics      *Metrics
}

// NewDirectory creates a directory containing only the default group
func NewDirectory(defaultGroup string) *Directory {
	return &Directory{
		groups: map[string]map[string]struct{}{
			defaultGroup: {},
		},
		defaultGroup: defaultGroup,
	}
}

// SetMetrics attaches metrics to the directory
func (d *Directory) SetMetrics(metrics *Metrics) {
	d.metrics = metrics
}

// DefaultGroup returns the name of the permanent default group
func (d *Directory) DefaultGroup() string {
	return d.defaultGroup
}

// Join adds the identity to the group, creating the group if it does
// not exist. Joining a group twice is an error, not a no-op, so the
// caller notifies exactly once per successful join.
func (d *Directory) Join(identity, group string) (created bool, err error) {
	d.mu.Lock()

	members, exists := d.groups[group]
	if !exists {
		d.groups[group] = map[string]struct{}{identity: {}}
		count := len(d.groups)
		d.mu.Unlock()

		if d.metrics != nil {
			d.metrics.RecordGroups(count)
		}
		return true, nil
	}

	if _, member := members[identity]; member {
		d.mu.Unlock()
		return false, ErrAlreadyMember
	}

	members[identity] = struct{}{}
	d.mu.Unlock()
	return false, nil
}

// Leave removes the identity from the group. The default group rejects
// every explicit leave; leaving a group the identity is not in is an
// error, not a no-op. An ad-hoc group left empty is deleted.
func (d *Directory) Leave(identity, group string) error {
	if group == d.defaultGroup {
		return ErrCannotLeaveDefault
	}

	d.mu.Lock()

	members, exists := d.groups[group]
	if !exists {
		d.mu.Unlock()
		return ErrNotMember
	}
	if _, member := members[identity]; !member {
		d.mu.Unlock()
		return ErrNotMember
	}

	delete(members, identity)
	if len(members) == 0 {
		delete(d.groups, group)
	}
	count := len(d.groups)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordGroups(count)
	}
	return nil
}

// MembersOf returns a point-in-time copy of the group's member set.
// The second result distinguishes an empty group from a nonexistent
// one.
func (d *Directory) MembersOf(group string) ([]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, exists := d.groups[group]
	if !exists {
		return nil, false
	}

	snapshot := make([]string, 0, len(members))
	for identity := range members {
		snapshot = append(snapshot, identity)
	}
	return snapshot, true
}

// IsMember reports whether the identity currently belongs to the group
func (d *Directory) IsMember(identity, group string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, exists := d.groups[group]
	if !exists {
		return false
	}
	_, member := members[identity]
	return member
}

// RemoveIdentityFromAll purges the identity from every group at
// disconnect, deleting ad-hoc groups left empty. The default group is
// kept even when empty, so the "everyone joins it at registration"
// invariant never needs a re-create path.
func (d *Directory) RemoveIdentityFromAll(identity string) {
	d.mu.Lock()

	for name, members := range d.groups {
		delete(members, identity)
		if len(members) == 0 && name != d.defaultGroup {
			delete(d.groups, name)
		}
	}
	count := len(d.groups)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordGroups(count)
	}
}

// AllGroupNames returns a sorted point-in-time copy of the group names
func (d *Directory) AllGroupNames() []string {
	d.mu.Lock()
	names := make([]string, 0, len(d.groups))
	for name := range d.groups {
		names = append(names, name)
	}
	d.mu.Unlock()

	sort.Strings(names)
	return names
}

// Count returns the number of groups, including the default group
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.groups)
}
