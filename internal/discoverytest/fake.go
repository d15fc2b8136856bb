// ABOUTME: Scripted discovery daemon for tests
// ABOUTME: Replays timed events against a mock clock so scans run instantly
package discoverytest

import (
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// Step is an event delivered At after the browse started
type Step struct {
	At    time.Duration
	Event discovery.Event
}

// Daemon is a discovery.Daemon whose receivers replay Steps. Each Browse
// replays the script from the beginning, relative to the mock time of the
// Browse call.
type Daemon struct {
	Clock       *clock.Mock
	Steps       []Step
	BrowseErr   error
	ShutdownErr error

	mu        sync.Mutex
	browsed   []string
	created   int
	shutdowns int
	polls     int
}

// New creates a fake daemon on a fresh mock clock
func New(steps ...Step) *Daemon {
	return &Daemon{Clock: clock.NewMock(), Steps: steps}
}

// Factory returns a factory handing out this daemon
func (d *Daemon) Factory() discovery.DaemonFactory {
	return func() (discovery.Daemon, error) {
		d.mu.Lock()
		d.created++
		d.mu.Unlock()
		return d, nil
	}
}

// Scanner builds a scanner wired to this daemon and its clock
func (d *Daemon) Scanner(opts ...discovery.Option) *discovery.Scanner {
	opts = append([]discovery.Option{discovery.WithClock(d.Clock)}, opts...)
	return discovery.NewScanner(d.Factory(), opts...)
}

func (d *Daemon) Browse(serviceType string) (discovery.Receiver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.browsed = append(d.browsed, serviceType)
	if d.BrowseErr != nil {
		return nil, d.BrowseErr
	}
	return &receiver{daemon: d, start: d.Clock.Now()}, nil
}

func (d *Daemon) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdowns++
	return d.ShutdownErr
}

// Created returns how many times the factory produced the daemon
func (d *Daemon) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// Browsed returns the service types passed to Browse
func (d *Daemon) Browsed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.browsed...)
}

// Shutdowns returns how many times Shutdown was called
func (d *Daemon) Shutdowns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdowns
}

// Polls returns the number of RecvTimeout calls across all receivers
func (d *Daemon) Polls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

type receiver struct {
	daemon *Daemon
	start  time.Time
	next   int
}

// RecvTimeout delivers the next step if it falls within the timeout,
// advancing the mock clock to it; otherwise the clock moves by the
// full timeout.
func (r *receiver) RecvTimeout(timeout time.Duration) (discovery.Event, bool) {
	d := r.daemon
	d.mu.Lock()
	d.polls++
	d.mu.Unlock()

	now := d.Clock.Now()
	if r.next < len(d.Steps) {
		step := d.Steps[r.next]
		due := r.start.Add(step.At)
		if !due.After(now.Add(timeout)) {
			if due.After(now) {
				d.Clock.Set(due)
			}
			r.next++
			return step.Event, true
		}
	}
	d.Clock.Add(timeout)
	return nil, false
}

// Unavailable returns a factory that always fails with err and counts calls
func Unavailable(err error, calls *int) discovery.DaemonFactory {
	return func() (discovery.Daemon, error) {
		if calls != nil {
			*calls++
		}
		return nil, err
	}
}

// Resolved builds a resolved event for tests
func Resolved(fullname, hostname string, port int, addrs []string, txt ...string) discovery.ServiceResolved {
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, net.ParseIP(a))
	}
	return discovery.ServiceResolved{Info: discovery.ServiceInfo{
		Fullname:  fullname,
		Hostname:  hostname,
		Addresses: ips,
		Port:      port,
		TXT:       txt,
	}}
}
