// ABOUTME: Discovery application orchestration
// ABOUTME: Scans, picks a server, resolves its URL and persists the choice
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/aaxion/aaxion-discovery/internal/config"
	"github.com/aaxion/aaxion-discovery/internal/probe"
	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// Scanner runs one bounded discovery scan
type Scanner interface {
	Scan(serviceType string, duration time.Duration) ([]discovery.ServiceRecord, error)
}

// Resolver picks the URL to use for a record
type Resolver interface {
	BestURL(ctx context.Context, rec discovery.ServiceRecord) (string, error)
}

// Config holds application configuration
type Config struct {
	ServiceType string
	Duration    time.Duration
	// DeviceName selects the server advertised as "<DeviceName>.local"
	DeviceName string
}

// Result is the outcome of Discover
type Result struct {
	Servers []discovery.ServiceRecord
	// Selected is nil when nothing was found
	Selected *discovery.ServiceRecord
	URL      string
	Elapsed  time.Duration
}

// App ties scanning, selection and persistence together
type App struct {
	config   Config
	scanner  Scanner
	resolver Resolver
	store    *StateStore
	clock    clock.Clock
	log      logrus.FieldLogger
}

// Option configures an App
type Option func(*App)

// WithResolver probes addresses with r instead of using the preferred one
func WithResolver(r Resolver) Option {
	return func(a *App) { a.resolver = r }
}

// WithStore persists selections to store
func WithStore(store *StateStore) Option {
	return func(a *App) { a.store = store }
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *App) { a.log = logger }
}

// WithClock sets the clock used for timestamps
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New creates an app
func New(config Config, scanner Scanner, opts ...Option) *App {
	if config.ServiceType == "" {
		config.ServiceType = discovery.AaxionServiceType
	}
	a := &App{
		config:  config,
		scanner: scanner,
		clock:   clock.New(),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Options controls FromConfig
type Options struct {
	NoProbe bool
	NoSave  bool
}

// FromConfig wires an app to the real mDNS daemon, prober and state store
func FromConfig(cfg *config.Config, logger logrus.FieldLogger, o Options) *App {
	scanner := discovery.NewScanner(
		discovery.MDNSFactory(cfg.MDNSConfig(), logger),
		discovery.WithPollInterval(cfg.Discovery.PollInterval),
		discovery.WithLogger(logger),
	)

	opts := []Option{WithLogger(logger)}
	if cfg.Probe.Enabled && !o.NoProbe {
		opts = append(opts, WithResolver(probe.New(probe.Config{
			Path:    cfg.Probe.Path,
			Token:   cfg.Probe.Token,
			Timeout: cfg.Probe.Timeout,
		}, logger)))
	}
	if !o.NoSave && cfg.State.File != "" {
		opts = append(opts, WithStore(NewStateStore(cfg.State.File)))
	}

	return New(Config{
		ServiceType: cfg.Discovery.ServiceType,
		Duration:    cfg.Discovery.Duration,
		DeviceName:  cfg.Device.Name,
	}, scanner, opts...)
}

// Scan runs one scan with the configured type and duration
func (a *App) Scan(ctx context.Context) ([]discovery.ServiceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.scanner.Scan(a.config.ServiceType, a.config.Duration)
}

// Discover scans and selects a server. Only servers with an address are
// selected automatically. Finding nothing usable is not an error; the
// result then has no selection.
func (a *App) Discover(ctx context.Context) (*Result, error) {
	start := a.clock.Now()
	servers, err := a.Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Servers: servers, Elapsed: a.clock.Since(start)}
	if len(servers) == 0 {
		a.log.Info("No servers found")
		return result, nil
	}

	usable := make([]discovery.ServiceRecord, 0, len(servers))
	for _, rec := range servers {
		if len(rec.Addresses) > 0 {
			usable = append(usable, rec)
		}
	}
	if len(usable) == 0 {
		a.log.Warnf("Found %d servers but none has an address", len(servers))
		return result, nil
	}

	selected, ok := discovery.FindByDevice(usable, a.config.DeviceName)
	if ok {
		a.log.Infof("Found device server: %s", selected.Hostname)
	} else {
		selected = usable[0]
	}

	url, err := a.Select(ctx, selected)
	if err != nil {
		return nil, err
	}
	result.Selected = &selected
	result.URL = url
	return result, nil
}

// Select resolves rec's URL and persists it as the current server
func (a *App) Select(ctx context.Context, rec discovery.ServiceRecord) (string, error) {
	url, err := a.resolve(ctx, rec)
	if err != nil {
		return "", err
	}

	if a.store != nil {
		st, err := a.store.Load()
		if err != nil {
			return "", err
		}
		st.Remember(rec, url, a.clock.Now())
		if err := a.store.Save(st); err != nil {
			return "", err
		}
		a.log.WithField("path", a.store.Path()).Debug("Saved server selection")
	}

	a.log.Infof("Selected server %s at %s", rec.Fullname, url)
	return url, nil
}

func (a *App) resolve(ctx context.Context, rec discovery.ServiceRecord) (string, error) {
	if a.resolver != nil {
		return a.resolver.BestURL(ctx, rec)
	}
	url := rec.URL()
	if url == "" {
		return "", fmt.Errorf("%s: %w", rec.Fullname, probe.ErrNoAddress)
	}
	return url, nil
}

// SavedURL returns the persisted server URL, or "" when none was saved
func (a *App) SavedURL() (string, error) {
	if a.store == nil {
		return "", nil
	}
	st, err := a.store.Load()
	if err != nil {
		return "", err
	}
	return st.ServerURL, nil
}
