// ABOUTME: Discovery daemon backed by hashicorp/mdns
// ABOUTME: Repeats multicast queries in the background and streams resolved entries
package discovery

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const (
	defaultQueryInterval = time.Second
	eventBuffer          = 64
)

// Multicast groups hashicorp/mdns joins for each query round
var (
	mdnsGroupV4 = &net.UDPAddr{IP: net.ParseIP("224.0.0.251"), Port: 5353}
	mdnsGroupV6 = &net.UDPAddr{IP: net.ParseIP("ff02::fb"), Port: 5353}
)

// bindCheck opens and closes the sockets a query round needs
var bindCheck = checkBind

// MDNSConfig configures the hashicorp/mdns daemon
type MDNSConfig struct {
	// Interface restricts queries to one network interface (empty = all)
	Interface string

	DisableIPv4 bool
	DisableIPv6 bool

	// QueryInterval is the length of one query round; a new query is sent
	// at the start of each round.
	QueryInterval time.Duration

	// WantUnicastResponse sets the QU bit on queries
	WantUnicastResponse bool
}

type mdnsDaemon struct {
	config MDNSConfig
	iface  *net.Interface
	clock  clock.Clock
	log    logrus.FieldLogger
	libLog *log.Logger
	logW   io.Closer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// MDNSFactory returns a DaemonFactory producing hashicorp/mdns daemons
func MDNSFactory(config MDNSConfig, logger logrus.FieldLogger) DaemonFactory {
	return func() (Daemon, error) {
		return NewMDNSDaemon(config, logger)
	}
}

// NewMDNSDaemon validates the network setup and creates a daemon. Sockets
// are bound per query round; creation fails if they cannot be bound now.
func NewMDNSDaemon(config MDNSConfig, logger logrus.FieldLogger) (Daemon, error) {
	if config.DisableIPv4 && config.DisableIPv6 {
		return nil, fmt.Errorf("both IPv4 and IPv6 are disabled")
	}
	if config.QueryInterval <= 0 {
		config.QueryInterval = defaultQueryInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	iface, err := pickInterface(config.Interface)
	if err != nil {
		return nil, err
	}
	if err := bindCheck(config); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &mdnsDaemon{
		config: config,
		iface:  iface,
		clock:  clock.New(),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}

	// hashicorp/mdns logs through the standard library; send it to debug.
	if lw, ok := logger.(interface {
		WriterLevel(logrus.Level) *io.PipeWriter
	}); ok {
		w := lw.WriterLevel(logrus.DebugLevel)
		d.libLog = log.New(w, "", 0)
		d.logW = w
	} else {
		d.libLog = log.New(io.Discard, "", 0)
	}

	return d, nil
}

// pickInterface resolves the configured interface, or checks that some
// interface can carry multicast when none is configured
func pickInterface(name string) (*net.Interface, error) {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", name, err)
		}
		if iface.Flags&net.FlagUp == 0 {
			return nil, fmt.Errorf("interface %s is down", name)
		}
		if iface.Flags&net.FlagMulticast == 0 {
			return nil, fmt.Errorf("interface %s does not support multicast", name)
		}
		return iface, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("no multicast-capable interface is up")
}

// checkBind binds the same unicast and multicast sockets as a hashicorp/mdns
// client. Like the client, one working address family is enough.
func checkBind(config MDNSConfig) error {
	families := []struct {
		network  string
		wildcard net.IP
		group    *net.UDPAddr
		enabled  bool
	}{
		{"udp4", net.IPv4zero, mdnsGroupV4, !config.DisableIPv4},
		{"udp6", net.IPv6zero, mdnsGroupV6, !config.DisableIPv6},
	}

	var unicast, multicast int
	var unicastErr, multicastErr error
	for _, f := range families {
		if !f.enabled {
			continue
		}
		if conn, err := net.ListenUDP(f.network, &net.UDPAddr{IP: f.wildcard}); err != nil {
			unicastErr = err
		} else {
			conn.Close()
			unicast++
		}
		if conn, err := net.ListenMulticastUDP(f.network, nil, f.group); err != nil {
			multicastErr = err
		} else {
			conn.Close()
			multicast++
		}
	}

	if unicast == 0 {
		return fmt.Errorf("failed to bind to any unicast udp port: %w", unicastErr)
	}
	if multicast == 0 {
		return fmt.Errorf("failed to bind to any multicast udp port: %w", multicastErr)
	}
	return nil
}

// Browse starts querying for serviceType until Shutdown
func (d *mdnsDaemon) Browse(serviceType string) (Receiver, error) {
	st, err := ParseServiceType(serviceType)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDaemonClosed
	}

	b := &mdnsBrowse{
		daemon: d,
		st:     st,
		events: make(chan Event, eventBuffer),
	}
	d.wg.Add(1)
	go b.run(d.ctx)

	d.log.WithFields(logrus.Fields{
		"service":   st.Service,
		"domain":    st.Domain,
		"interface": d.config.Interface,
	}).Debug("mDNS browse started")

	return &chanReceiver{events: b.events, clock: d.clock}, nil
}

// Shutdown cancels every browse and returns without waiting. Cancelling
// closes the query sockets; a round in flight returns when its timeout
// fires, after which the library log pipe is closed.
func (d *mdnsDaemon) Shutdown() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDaemonClosed
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()

	go func() {
		d.wg.Wait()
		if d.logW != nil {
			d.logW.Close()
		}
	}()
	return nil
}

// mdnsBrowse is one running subscription
type mdnsBrowse struct {
	daemon *mdnsDaemon
	st     ServiceType
	events chan Event
}

func (b *mdnsBrowse) run(ctx context.Context) {
	defer b.daemon.wg.Done()

	for ctx.Err() == nil {
		b.emit(ctx, SearchStarted{ServiceType: b.st.FQDN()})

		entries := make(chan *mdns.ServiceEntry, eventBuffer)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for entry := range entries {
				if ev, ok := b.convert(entry); ok {
					b.emit(ctx, ev)
				}
			}
		}()

		err := mdns.QueryContext(ctx, b.params(entries))
		close(entries)
		<-drained

		if err != nil && ctx.Err() == nil {
			b.daemon.log.WithError(err).Warn("mDNS query failed")
			b.emit(ctx, SearchStopped{ServiceType: b.st.FQDN(), Err: err})
			return
		}
	}
}

func (b *mdnsBrowse) params(entries chan<- *mdns.ServiceEntry) *mdns.QueryParam {
	return &mdns.QueryParam{
		Service:             b.st.Service,
		Domain:              b.st.Domain,
		Timeout:             b.daemon.config.QueryInterval,
		Interface:           b.daemon.iface,
		Entries:             entries,
		WantUnicastResponse: b.daemon.config.WantUnicastResponse,
		DisableIPv4:         b.daemon.config.DisableIPv4,
		DisableIPv6:         b.daemon.config.DisableIPv6,
		Logger:              b.daemon.libLog,
	}
}

// convert turns a complete entry into a resolved event. Entries for other
// service types show up when responders answer with unrelated records.
func (b *mdnsBrowse) convert(entry *mdns.ServiceEntry) (Event, bool) {
	if entry == nil || !b.st.Contains(entry.Name) {
		return nil, false
	}
	return ServiceResolved{Info: entryInfo(entry)}, true
}

func (b *mdnsBrowse) emit(ctx context.Context, ev Event) {
	select {
	case b.events <- ev:
	case <-ctx.Done():
	}
}

// entryInfo copies the fields of a hashicorp/mdns entry
func entryInfo(entry *mdns.ServiceEntry) ServiceInfo {
	var addrs []net.IP
	if entry.AddrV4 != nil {
		addrs = append(addrs, entry.AddrV4)
	}
	switch {
	case entry.AddrV6IPAddr != nil && entry.AddrV6IPAddr.IP != nil:
		addrs = append(addrs, entry.AddrV6IPAddr.IP)
	case entry.AddrV6 != nil:
		addrs = append(addrs, entry.AddrV6)
	}

	txt := make([]string, len(entry.InfoFields))
	copy(txt, entry.InfoFields)

	return ServiceInfo{
		Fullname:  entry.Name,
		Hostname:  entry.Host,
		Addresses: addrs,
		Port:      entry.Port,
		TXT:       txt,
	}
}

// chanReceiver polls a channel of events with a timeout
type chanReceiver struct {
	events <-chan Event
	clock  clock.Clock
}

func (r *chanReceiver) RecvTimeout(d time.Duration) (Event, bool) {
	t := r.clock.Timer(d)
	defer t.Stop()

	select {
	case ev, ok := <-r.events:
		if !ok {
			<-t.C
			return nil, false
		}
		return ev, true
	case <-t.C:
		return nil, false
	}
}
