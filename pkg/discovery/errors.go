// ABOUTME: Error taxonomy for discovery scans
// ABOUTME: Setup failures are typed; release failures are only reported
package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrDaemonUnavailable means the discovery daemon could not be created
	ErrDaemonUnavailable = errors.New("discovery daemon unavailable")

	// ErrSubscriptionFailed means browsing for the service type failed
	ErrSubscriptionFailed = errors.New("discovery subscription failed")

	// ErrDaemonClosed is returned by a daemon used after Shutdown
	ErrDaemonClosed = errors.New("discovery daemon closed")
)

// Error is a setup-stage scan failure. Kind is one of ErrDaemonUnavailable
// or ErrSubscriptionFailed and Err is the underlying cause.
type Error struct {
	Kind        error
	ServiceType string
	Err         error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mDNS error: %v", e.Kind)
	}
	return fmt.Sprintf("mDNS error: %v: %v", e.Kind, e.Err)
}

// Is reports whether target is the error's kind
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
