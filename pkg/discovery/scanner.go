// ABOUTME: Bounded-time discovery scan over a daemon subscription
// ABOUTME: Polls events until the deadline, dedups by fullname, releases the daemon
package discovery

import (
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// AaxionServiceType is the service type advertised by Aaxion servers
	AaxionServiceType = "_aaxion._tcp.local."

	// DefaultScanDuration is the scan budget used by interactive callers
	DefaultScanDuration = 1500 * time.Millisecond

	// DefaultPollInterval bounds each wait on the event stream
	DefaultPollInterval = 100 * time.Millisecond
)

// Scanner runs one-shot scans. Each Scan creates and releases its own
// daemon, so a Scanner holds no state between calls and is safe for
// concurrent use.
type Scanner struct {
	newDaemon     DaemonFactory
	clock         clock.Clock
	pollInterval  time.Duration
	log           logrus.FieldLogger
	onReleaseFail func(error)
}

// Option configures a Scanner
type Option func(*Scanner)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(s *Scanner) { s.clock = c }
}

// WithPollInterval sets the per-iteration wait on the event stream
func WithPollInterval(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger sets the logger for scan progress and warnings
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// WithReleaseHook is called when shutting the daemon down fails. The scan
// result is still returned.
func WithReleaseHook(fn func(error)) Option {
	return func(s *Scanner) { s.onReleaseFail = fn }
}

// NewScanner creates a scanner that obtains daemons from factory
func NewScanner(factory DaemonFactory, opts ...Option) *Scanner {
	s := &Scanner{
		newDaemon:    factory,
		clock:        clock.New(),
		pollInterval: DefaultPollInterval,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan browses for serviceType for duration and returns every resolved
// instance in the order it was first resolved. An empty result is not an
// error; only daemon creation and browse failures are.
func (s *Scanner) Scan(serviceType string, duration time.Duration) ([]ServiceRecord, error) {
	log := s.log.WithFields(logrus.Fields{
		"scan_id":      uuid.NewString(),
		"service_type": serviceType,
	})
	log.Info("Starting mDNS discovery")

	daemon, err := s.newDaemon()
	if err != nil {
		log.WithError(err).Error("Failed to create mDNS daemon")
		return nil, &Error{Kind: ErrDaemonUnavailable, ServiceType: serviceType, Err: err}
	}
	defer s.release(daemon, log)

	rx, err := daemon.Browse(serviceType)
	if err != nil {
		log.WithError(err).Error("Failed to browse")
		return nil, &Error{Kind: ErrSubscriptionFailed, ServiceType: serviceType, Err: err}
	}

	sess := newSession(s.clock.Now(), duration)
	log.Debugf("Scanning for %s for %v", serviceType, duration)

	for {
		remaining := sess.remaining(s.clock.Now())
		if remaining <= 0 {
			break
		}
		ev, ok := rx.RecvTimeout(min(s.pollInterval, remaining))
		if !ok {
			continue
		}

		switch ev := ev.(type) {
		case ServiceResolved:
			if rec, added := sess.observe(ev.Info, log); added {
				log.WithFields(logrus.Fields{
					"fullname":  rec.Fullname,
					"hostname":  rec.Hostname,
					"addresses": rec.Addresses,
					"port":      rec.Port,
				}).Info("Found server")
			}
		default:
			// Only fully resolved instances are reported.
		}
	}

	log.WithField("count", len(sess.records)).Info("Discovery finished")
	return sess.records, nil
}

func (s *Scanner) release(d Daemon, log logrus.FieldLogger) {
	if err := d.Shutdown(); err != nil {
		log.WithError(err).Warn("Failed to shut down mDNS daemon cleanly")
		if s.onReleaseFail != nil {
			s.onReleaseFail(err)
		}
	}
}

// session is the state of one Scan call
type session struct {
	start    time.Time
	deadline time.Time
	seen     map[string]struct{}
	records  []ServiceRecord
}

func newSession(start time.Time, duration time.Duration) *session {
	return &session{
		start:    start,
		deadline: start.Add(duration),
		seen:     make(map[string]struct{}),
		records:  []ServiceRecord{},
	}
}

func (s *session) remaining(now time.Time) time.Duration {
	return s.deadline.Sub(now)
}

// observe records info unless its fullname was already seen
func (s *session) observe(info ServiceInfo, log logrus.FieldLogger) (ServiceRecord, bool) {
	if info.Fullname == "" {
		log.Warn("Ignoring resolved service without a fullname")
		return ServiceRecord{}, false
	}
	if _, dup := s.seen[info.Fullname]; dup {
		return ServiceRecord{}, false
	}

	rec := extractRecord(info, log)
	s.records = append(s.records, rec)
	s.seen[info.Fullname] = struct{}{}
	return rec, true
}

// extractRecord normalizes daemon data. Malformed fields are dropped
// rather than failing the scan.
func extractRecord(info ServiceInfo, log logrus.FieldLogger) ServiceRecord {
	addrs := make([]string, 0, len(info.Addresses))
	for _, ip := range info.Addresses {
		if len(ip) == 0 {
			continue
		}
		addrs = append(addrs, ip.String())
	}

	var port uint16
	if info.Port > 0 && info.Port <= 0xFFFF {
		port = uint16(info.Port)
	} else {
		log.WithFields(logrus.Fields{
			"fullname": info.Fullname,
			"port":     info.Port,
		}).Warn("Resolved service has no usable port")
	}

	return ServiceRecord{
		Hostname:   info.Hostname,
		Fullname:   info.Fullname,
		Addresses:  addrs,
		Port:       port,
		Attributes: ParseTXT(info.TXT),
	}
}

// ParseTXT converts DNS-SD TXT strings into attributes. A string without
// "=" is a boolean attribute with an empty value. Only the first occurrence
// of a key counts and entries with an empty key are skipped.
func ParseTXT(txt []string) map[string]string {
	attrs := make(map[string]string, len(txt))
	for _, field := range txt {
		key, value, _ := strings.Cut(field, "=")
		if key == "" {
			continue
		}
		if _, ok := attrs[key]; ok {
			continue
		}
		attrs[key] = value
	}
	return attrs
}
