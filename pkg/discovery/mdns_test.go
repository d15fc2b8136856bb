// ABOUTME: Tests for the hashicorp/mdns daemon adapter
// ABOUTME: Exercises entry conversion, validation, and shutdown without network traffic
package discovery

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryInfo(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:         "printer-1._aaxion._tcp.local.",
		Host:         "printer-1.local.",
		AddrV4:       net.ParseIP("192.168.1.50"),
		AddrV6IPAddr: &net.IPAddr{IP: net.ParseIP("fe80::1"), Zone: "en0"},
		Port:         9100,
		InfoFields:   []string{"model=X1"},
	}

	info := entryInfo(entry)
	assert.Equal(t, "printer-1._aaxion._tcp.local.", info.Fullname)
	assert.Equal(t, "printer-1.local.", info.Hostname)
	assert.Equal(t, 9100, info.Port)
	assert.Equal(t, []string{"model=X1"}, info.TXT)
	require.Len(t, info.Addresses, 2)
	assert.Equal(t, "192.168.1.50", info.Addresses[0].String())
	assert.Equal(t, "fe80::1", info.Addresses[1].String())

	entry.InfoFields[0] = "model=changed"
	assert.Equal(t, "model=X1", info.TXT[0])
}

func TestEntryInfoIPv4Only(t *testing.T) {
	info := entryInfo(&mdns.ServiceEntry{Name: "a._aaxion._tcp.local.", AddrV4: net.ParseIP("10.0.0.2")})
	require.Len(t, info.Addresses, 1)
	assert.Equal(t, "10.0.0.2", info.Addresses[0].String())
}

func TestBrowseConvertFiltersForeignTypes(t *testing.T) {
	st, err := ParseServiceType(AaxionServiceType)
	require.NoError(t, err)
	b := &mdnsBrowse{st: st}

	_, ok := b.convert(&mdns.ServiceEntry{Name: "tv._googlecast._tcp.local."})
	assert.False(t, ok)
	_, ok = b.convert(nil)
	assert.False(t, ok)

	ev, ok := b.convert(&mdns.ServiceEntry{Name: "nas._aaxion._tcp.local.", Port: 8080})
	require.True(t, ok)
	resolved, isResolved := ev.(ServiceResolved)
	require.True(t, isResolved)
	assert.Equal(t, "nas._aaxion._tcp.local.", resolved.Info.Fullname)
}

func TestNewMDNSDaemonRejectsNoAddressFamily(t *testing.T) {
	_, err := NewMDNSDaemon(MDNSConfig{DisableIPv4: true, DisableIPv6: true}, nil)
	assert.Error(t, err)
}

func TestNewMDNSDaemonUnknownInterface(t *testing.T) {
	_, err := NewMDNSDaemon(MDNSConfig{Interface: "does-not-exist0"}, nil)
	assert.Error(t, err)
}

func TestMDNSFactoryFailureIsDaemonUnavailable(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	scanner := NewScanner(MDNSFactory(MDNSConfig{Interface: "does-not-exist0"}, logger), WithLogger(logger))
	start := time.Now()
	_, err := scanner.Scan(AaxionServiceType, DefaultScanDuration)

	assert.ErrorIs(t, err, ErrDaemonUnavailable)
	assert.Less(t, time.Since(start), DefaultScanDuration)
}

func TestMDNSBindFailureIsDaemonUnavailable(t *testing.T) {
	orig := bindCheck
	t.Cleanup(func() { bindCheck = orig })
	bindCheck = func(MDNSConfig) error {
		return errors.New("failed to bind to any multicast udp port: address already in use")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	scanner := NewScanner(MDNSFactory(MDNSConfig{}, logger), WithLogger(logger))
	start := time.Now()
	records, err := scanner.Scan(AaxionServiceType, DefaultScanDuration)

	assert.ErrorIs(t, err, ErrDaemonUnavailable)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Nil(t, records)
	assert.Less(t, time.Since(start), DefaultScanDuration)
}

func TestMDNSShutdownDoesNotWaitForQueryRound(t *testing.T) {
	d := &mdnsDaemon{clock: clock.New(), log: logrus.New()}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	roundDone := make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		<-roundDone
	}()
	defer close(roundDone)

	start := time.Now()
	require.NoError(t, d.Shutdown())
	assert.Less(t, time.Since(start), DefaultPollInterval)
	assert.Error(t, d.ctx.Err())
}

func TestMDNSScanStaysWithinBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the network")
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	factory := MDNSFactory(MDNSConfig{}, logger)
	d, err := factory()
	if err != nil {
		t.Skipf("no usable multicast network: %v", err)
	}
	require.NoError(t, d.Shutdown())

	for _, duration := range []time.Duration{300 * time.Millisecond, DefaultScanDuration} {
		start := time.Now()
		_, err := NewScanner(factory, WithLogger(logger)).Scan(AaxionServiceType, duration)
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.GreaterOrEqual(t, elapsed, duration)
		assert.Less(t, elapsed, duration+DefaultPollInterval+100*time.Millisecond, "scan of %v", duration)
	}
}

func TestMDNSDaemonBrowseValidationAndShutdown(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	d := &mdnsDaemon{
		config: MDNSConfig{QueryInterval: time.Second},
		clock:  clock.New(),
		log:    logger,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	_, err := d.Browse("not a service type")
	assert.Error(t, err)

	require.NoError(t, d.Shutdown())
	assert.ErrorIs(t, d.Shutdown(), ErrDaemonClosed)

	_, err = d.Browse(AaxionServiceType)
	assert.ErrorIs(t, err, ErrDaemonClosed)
}

func TestChanReceiver(t *testing.T) {
	events := make(chan Event, 1)
	r := &chanReceiver{events: events, clock: clock.New()}

	_, ok := r.RecvTimeout(10 * time.Millisecond)
	assert.False(t, ok)

	events <- SearchStarted{ServiceType: AaxionServiceType}
	ev, ok := r.RecvTimeout(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, SearchStarted{ServiceType: AaxionServiceType}, ev)

	close(events)
	start := time.Now()
	_, ok = r.RecvTimeout(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
