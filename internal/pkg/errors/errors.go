package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a concurrent-edit collision detected by the rebase check.
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicate marks a unique-constraint hit, used for idempotent ledger replay.
	ErrDuplicate = errors.New("duplicate")
	// ErrInvalidTransition marks a proposal status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)
