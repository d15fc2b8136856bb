// ABOUTME: Tests for the bounded-time discovery scan
// ABOUTME: Uses a scripted daemon on a mock clock
package discovery_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaxion/aaxion-discovery/internal/discoverytest"
	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

const printer = "printer-1._aaxion._tcp.local."

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fullnames(records []discovery.ServiceRecord) []string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Fullname)
	}
	return names
}

func TestScanSingleInstanceReannounced(t *testing.T) {
	ev := discoverytest.Resolved(printer, "printer-1.local.", 9100, []string{"192.168.1.50"}, "model=X1")
	fake := discoverytest.New(
		discoverytest.Step{At: 50 * time.Millisecond, Event: ev},
		discoverytest.Step{At: 400 * time.Millisecond, Event: ev},
		discoverytest.Step{At: 1200 * time.Millisecond, Event: ev},
	)

	records, err := fake.Scanner(discovery.WithLogger(quietLogger())).
		Scan(discovery.AaxionServiceType, discovery.DefaultScanDuration)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, printer, rec.Fullname)
	assert.Equal(t, "printer-1.local.", rec.Hostname)
	assert.Equal(t, uint16(9100), rec.Port)
	assert.Equal(t, []string{"192.168.1.50"}, rec.Addresses)
	assert.Equal(t, map[string]string{"model": "X1"}, rec.Attributes)

	assert.Equal(t, []string{discovery.AaxionServiceType}, fake.Browsed())
	assert.Equal(t, 1, fake.Shutdowns())
}

func TestScanNoInstances(t *testing.T) {
	fake := discoverytest.New()

	records, err := fake.Scanner(discovery.WithLogger(quietLogger())).
		Scan(discovery.AaxionServiceType, discovery.DefaultScanDuration)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, 1, fake.Shutdowns())
}

func TestScanKeepsFirstResolution(t *testing.T) {
	fake := discoverytest.New(
		discoverytest.Step{At: 10 * time.Millisecond, Event: discoverytest.Resolved("a._aaxion._tcp.local.", "a.local.", 8080, []string{"10.0.0.2"}, "v=1")},
		discoverytest.Step{At: 20 * time.Millisecond, Event: discoverytest.Resolved("b._aaxion._tcp.local.", "b.local.", 8081, []string{"10.0.0.3"})},
		discoverytest.Step{At: 30 * time.Millisecond, Event: discoverytest.Resolved("a._aaxion._tcp.local.", "a-renamed.local.", 9999, []string{"10.0.0.9"}, "v=2")},
	)

	records, err := fake.Scanner(discovery.WithLogger(quietLogger())).
		Scan(discovery.AaxionServiceType, time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"a._aaxion._tcp.local.", "b._aaxion._tcp.local."}, fullnames(records))

	assert.Equal(t, "a.local.", records[0].Hostname)
	assert.Equal(t, uint16(8080), records[0].Port)
	assert.Equal(t, "1", records[0].Attributes["v"])
}

func TestScanIgnoresOtherEventKinds(t *testing.T) {
	fake := discoverytest.New(
		discoverytest.Step{At: 0, Event: discovery.SearchStarted{ServiceType: discovery.AaxionServiceType}},
		discoverytest.Step{At: 10 * time.Millisecond, Event: discovery.ServiceFound{Fullname: printer}},
		discoverytest.Step{At: 20 * time.Millisecond, Event: discovery.ServiceRemoved{Fullname: printer}},
		discoverytest.Step{At: 30 * time.Millisecond, Event: discovery.SearchStopped{Err: errors.New("socket closed")}},
	)

	records, err := fake.Scanner(discovery.WithLogger(quietLogger())).
		Scan(discovery.AaxionServiceType, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScanSkipsEventWithoutFullname(t *testing.T) {
	fake := discoverytest.New(
		discoverytest.Step{At: 10 * time.Millisecond, Event: discoverytest.Resolved("", "ghost.local.", 80, nil)},
		discoverytest.Step{At: 20 * time.Millisecond, Event: discoverytest.Resolved(printer, "printer-1.local.", 9100, nil)},
	)

	records, err := fake.Scanner(discovery.WithLogger(quietLogger())).
		Scan(discovery.AaxionServiceType, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{printer}, fullnames(records))
	assert.Empty(t, records[0].Addresses)
}

func TestScanDurationBounds(t *testing.T) {
	const poll = 100 * time.Millisecond
	tests := []struct {
		name     string
		duration time.Duration
		steps    []discoverytest.Step
	}{
		{name: "idle", duration: 1500 * time.Millisecond},
		{name: "uneven budget", duration: 1234 * time.Millisecond},
		{
			name:     "busy stream",
			duration: 300 * time.Millisecond,
			steps: func() []discoverytest.Step {
				ev := discoverytest.Resolved(printer, "printer-1.local.", 9100, nil)
				var steps []discoverytest.Step
				for i := 0; i < 500; i++ {
					steps = append(steps, discoverytest.Step{At: time.Duration(i) * time.Millisecond, Event: ev})
				}
				return steps
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := discoverytest.New(tt.steps...)
			start := fake.Clock.Now()

			_, err := fake.Scanner(discovery.WithLogger(quietLogger()), discovery.WithPollInterval(poll)).
				Scan(discovery.AaxionServiceType, tt.duration)
			require.NoError(t, err)

			elapsed := fake.Clock.Since(start)
			assert.GreaterOrEqual(t, elapsed, tt.duration)
			assert.LessOrEqual(t, elapsed, tt.duration+poll)
		})
	}
}

func TestScanPollsInShortIntervals(t *testing.T) {
	fake := discoverytest.New()

	_, err := fake.Scanner(discovery.WithLogger(quietLogger()), discovery.WithPollInterval(100*time.Millisecond)).
		Scan(discovery.AaxionServiceType, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10, fake.Polls())
}

func TestScanDaemonUnavailable(t *testing.T) {
	calls := 0
	bindErr := errors.New("listen udp4 0.0.0.0:5353: bind: address already in use")
	mock := discoverytest.New().Clock
	start := mock.Now()

	scanner := discovery.NewScanner(
		discoverytest.Unavailable(bindErr, &calls),
		discovery.WithClock(mock),
		discovery.WithLogger(quietLogger()),
	)
	records, err := scanner.Scan(discovery.AaxionServiceType, discovery.DefaultScanDuration)

	require.Error(t, err)
	assert.Nil(t, records)
	assert.ErrorIs(t, err, discovery.ErrDaemonUnavailable)
	assert.NotErrorIs(t, err, discovery.ErrSubscriptionFailed)
	assert.ErrorIs(t, err, bindErr)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, 1, calls)
	assert.Zero(t, mock.Since(start))
}

func TestScanSubscriptionFailedReleasesDaemon(t *testing.T) {
	fake := discoverytest.New()
	fake.BrowseErr = errors.New("invalid service type")

	records, err := fake.Scanner(discovery.WithLogger(quietLogger())).
		Scan("bogus", discovery.DefaultScanDuration)

	require.Error(t, err)
	assert.Nil(t, records)
	assert.ErrorIs(t, err, discovery.ErrSubscriptionFailed)

	var scanErr *discovery.Error
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, "bogus", scanErr.ServiceType)

	assert.Equal(t, 1, fake.Shutdowns())
	assert.Zero(t, fake.Polls())
}

func TestScanReleaseFailureIsOnlyAWarning(t *testing.T) {
	fake := discoverytest.New(
		discoverytest.Step{At: 10 * time.Millisecond, Event: discoverytest.Resolved(printer, "printer-1.local.", 9100, []string{"192.168.1.50"})},
	)
	fake.ShutdownErr = errors.New("socket close failed")

	var hooked error
	records, err := fake.Scanner(
		discovery.WithLogger(quietLogger()),
		discovery.WithReleaseHook(func(err error) { hooked = err }),
	).Scan(discovery.AaxionServiceType, 200*time.Millisecond)

	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.EqualError(t, hooked, "socket close failed")
}

func TestScanIndependentRuns(t *testing.T) {
	fake := discoverytest.New(
		discoverytest.Step{At: 100 * time.Millisecond, Event: discoverytest.Resolved("a._aaxion._tcp.local.", "a.local.", 1, nil)},
		discoverytest.Step{At: 300 * time.Millisecond, Event: discoverytest.Resolved("b._aaxion._tcp.local.", "b.local.", 2, nil)},
		discoverytest.Step{At: 900 * time.Millisecond, Event: discoverytest.Resolved("c._aaxion._tcp.local.", "c.local.", 3, nil)},
	)
	scanner := fake.Scanner(discovery.WithLogger(quietLogger()))

	first, err := scanner.Scan(discovery.AaxionServiceType, discovery.DefaultScanDuration)
	require.NoError(t, err)
	second, err := scanner.Scan(discovery.AaxionServiceType, discovery.DefaultScanDuration)
	require.NoError(t, err)

	assert.ElementsMatch(t, fullnames(first), fullnames(second))
	assert.Equal(t, 2, fake.Created())
	assert.Equal(t, 2, fake.Shutdowns())
}

func TestScanAnomalousPort(t *testing.T) {
	fake := discoverytest.New(
		discoverytest.Step{At: 0, Event: discoverytest.Resolved("neg._aaxion._tcp.local.", "n.local.", -1, nil)},
		discoverytest.Step{At: 0, Event: discoverytest.Resolved("big._aaxion._tcp.local.", "b.local.", 70000, nil)},
	)

	records, err := fake.Scanner(discovery.WithLogger(quietLogger())).
		Scan(discovery.AaxionServiceType, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Zero(t, records[0].Port)
	assert.Zero(t, records[1].Port)
}

func TestErrorMessage(t *testing.T) {
	err := &discovery.Error{Kind: discovery.ErrDaemonUnavailable, Err: errors.New("bind failed")}
	assert.Equal(t, "mDNS error: discovery daemon unavailable: bind failed", err.Error())

	bare := &discovery.Error{Kind: discovery.ErrSubscriptionFailed}
	assert.Equal(t, "mDNS error: discovery subscription failed", bare.Error())
}
