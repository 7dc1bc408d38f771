package server

import "errors"

// Request-level errors. These are reported back to the offending
// connection as a system notice; the connection stays open.
var (
	ErrDuplicateIdentity  = errors.New("identity already registered")
	ErrAlreadyMember      = errors.New("already a member of group")
	ErrNotMember          = errors.New("not a member of group")
	ErrCannotLeaveDefault = errors.New("cannot leave the default group")
)
