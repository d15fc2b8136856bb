// ABOUTME: Collaborator interface for the discovery daemon
// ABOUTME: Create, browse, poll with timeout, and release
package discovery

import "time"

// Daemon performs the discovery protocol exchange in the background
type Daemon interface {
	// Browse subscribes to events for a service type such as
	// "_aaxion._tcp.local.".
	Browse(serviceType string) (Receiver, error)

	// Shutdown stops all browses and releases the daemon's sockets.
	Shutdown() error
}

// Receiver is the event stream of one Browse call
type Receiver interface {
	// RecvTimeout waits at most d for the next event. It returns false
	// when no event arrived in time.
	RecvTimeout(d time.Duration) (Event, bool)
}

// DaemonFactory creates a fresh daemon for a single scan
type DaemonFactory func() (Daemon, error)
