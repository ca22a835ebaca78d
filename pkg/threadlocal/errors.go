package threadlocal

import (
	"errors"
	"fmt"
)

// ErrClosed indicates an operation on a registry after Close completed its
// swap. This is a use-after-close contract violation, not a transient
// condition; it is never retried internally.
var ErrClosed = errors.New("registry closed")

// ReleaseError wraps a failure from a value's release hook. Release
// failures never abort a drain; they are collected and joined.
type ReleaseError struct {
	// Registry is the name (or id, when unnamed) of the owning registry.
	Registry string
	// Gid is the goroutine id the value belonged to, 0 when unknown.
	Gid int64
	// Err is the underlying error from the release hook.
	Err error
}

// Error implements the error interface.
func (e *ReleaseError) Error() string {
	if e.Gid != 0 {
		return fmt.Sprintf("registry %s: release value for goroutine %d: %v", e.Registry, e.Gid, e.Err)
	}
	return fmt.Sprintf("registry %s: release value: %v", e.Registry, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ReleaseError) Unwrap() error {
	return e.Err
}
