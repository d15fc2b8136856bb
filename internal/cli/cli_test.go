// ABOUTME: Tests for the command tree
// ABOUTME: Runs commands against a scripted daemon and a temp config
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaxion/aaxion-discovery/internal/app"
	"github.com/aaxion/aaxion-discovery/internal/config"
	"github.com/aaxion/aaxion-discovery/internal/discoverytest"
	"github.com/aaxion/aaxion-discovery/internal/version"
	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

type harness struct {
	cfgFile   string
	fake      *discoverytest.Daemon
	gotConfig *config.Config
	gotOpts   app.Options
}

func newHarness(t *testing.T, steps ...discoverytest.Step) *harness {
	t.Helper()
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "aaxion.yaml")
	body := "state:\n  file: " + filepath.Join(dir, "state.yaml") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(body), 0o644))
	return &harness{cfgFile: cfgFile, fake: discoverytest.New(steps...)}
}

func (h *harness) factory(cfg *config.Config, logger logrus.FieldLogger, o app.Options) *app.App {
	h.gotConfig, h.gotOpts = cfg, o
	opts := []app.Option{app.WithLogger(logger), app.WithClock(h.fake.Clock)}
	if !o.NoSave {
		opts = append(opts, app.WithStore(app.NewStateStore(cfg.State.File)))
	}
	return app.New(app.Config{
		ServiceType: cfg.Discovery.ServiceType,
		Duration:    cfg.Discovery.Duration,
		DeviceName:  cfg.Device.Name,
	}, h.fake.Scanner(discovery.WithLogger(logger)), opts...)
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(h.factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.cfgFile}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func office() discoverytest.Step {
	return discoverytest.Step{
		At:    20 * time.Millisecond,
		Event: discoverytest.Resolved("office._aaxion._tcp.local.", "office.local.", 8080, []string{"192.168.1.10"}),
	}
}

func TestScanJSON(t *testing.T) {
	h := newHarness(t, office())

	out, err := h.run(t, "scan", "--json", "--no-probe")
	require.NoError(t, err)

	var doc scanOutput
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Servers, 1)
	require.NotNil(t, doc.Selected)
	assert.Equal(t, "office._aaxion._tcp.local.", doc.Selected.Fullname)
	assert.Equal(t, "http://192.168.1.10:8080", doc.URL)
	assert.True(t, h.gotOpts.NoProbe)
}

func TestScanTable(t *testing.T) {
	h := newHarness(t, office())

	out, err := h.run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "office.local.")
	assert.Contains(t, out, "192.168.1.10")
	assert.Contains(t, out, "Selected: http://192.168.1.10:8080")
}

func TestScanIsDefaultCommand(t *testing.T) {
	h := newHarness(t, office())

	out, err := h.run(t, "--duration", "300ms", "--no-save")
	require.NoError(t, err)
	assert.Contains(t, out, "office.local.")
	assert.Equal(t, 300*time.Millisecond, h.gotConfig.Discovery.Duration)
	assert.True(t, h.gotOpts.NoSave)
}

func TestScanNothingFound(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "No servers found")

	out, err = h.run(t, "scan", "--json")
	require.NoError(t, err)
	var doc scanOutput
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.NotNil(t, doc.Servers)
	assert.Empty(t, doc.Servers)
	assert.Nil(t, doc.Selected)
}

func TestScanRejectsZeroDuration(t *testing.T) {
	h := newHarness(t, office())

	_, err := h.run(t, "scan", "--duration", "0s")
	assert.Error(t, err)
	assert.Zero(t, h.fake.Created())
}

func TestScanListsServersWithoutAddress(t *testing.T) {
	h := newHarness(t, discoverytest.Step{
		At:    20 * time.Millisecond,
		Event: discoverytest.Resolved("attic._aaxion._tcp.local.", "attic.local.", 8080, nil),
	})

	out, err := h.run(t, "scan")
	require.NoError(t, err)
	assert.Contains(t, out, "attic.local.")
	assert.NotContains(t, out, "Selected:")
}

func TestURLAfterScan(t *testing.T) {
	h := newHarness(t, office())

	_, err := h.run(t, "url")
	assert.Error(t, err)

	_, err = h.run(t, "scan")
	require.NoError(t, err)

	out, err := h.run(t, "url")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.10:8080\n", out)
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestBadConfigFails(t *testing.T) {
	h := newHarness(t)
	h.cfgFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := h.run(t, "scan")
	assert.Error(t, err)
}

func TestLogLevelFlag(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "--log-level", "shouting", "scan")
	assert.Error(t, err)
}
