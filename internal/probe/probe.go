// ABOUTME: Reachability probing for discovered servers
// ABOUTME: Ranks addresses by network type and checks them over HTTP in parallel
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// DefaultTimeout bounds a single reachability check
const DefaultTimeout = 500 * time.Millisecond

// ErrNoAddress means the record carries no address at all
var ErrNoAddress = errors.New("server has no address")

// Config holds prober configuration
type Config struct {
	// Path is requested on each candidate, e.g. "/"
	Path string
	// Token is sent as a bearer token when set
	Token   string
	Timeout time.Duration
}

// Prober checks which address of a server answers
type Prober struct {
	config Config
	client *http.Client
	log    logrus.FieldLogger
}

// New creates a prober
func New(config Config, logger logrus.FieldLogger) *Prober {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Path == "" {
		config.Path = "/"
	}
	if !strings.HasPrefix(config.Path, "/") {
		config.Path = "/" + config.Path
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Prober{
		config: config,
		client: &http.Client{},
		log:    logger,
	}
}

// Priority ranks an address by the kind of network it is on. Higher is
// better; wired LAN ranges beat Wi-Fi, container and link-local ranges.
func Priority(ip string) int {
	if strings.Contains(ip, ":") {
		return 1
	}
	switch {
	case strings.HasPrefix(ip, "10.0.0."):
		return 100
	case strings.HasPrefix(ip, "192.168.1."):
		return 50
	case strings.HasPrefix(ip, "192.168."):
		return 40
	case strings.HasPrefix(ip, "172.17."):
		return 30
	case strings.HasPrefix(ip, "169.254."):
		return 20
	}
	return 60
}

// Reachable reports whether GET http://ip:port<path> answers with 2xx
// within the timeout
func (p *Prober) Reachable(ctx context.Context, ip string, port uint16) bool {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	url := discovery.HTTPURL(ip, port) + p.config.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.log.WithError(err).Debugf("Bad probe URL %s", url)
		return false
	}
	if p.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WithError(err).Debugf("IP %s unreachable", ip)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	p.log.WithField("status", resp.StatusCode).Debugf("IP %s reachable=%v", ip, ok)
	return ok
}

// Candidate is one probed address
type Candidate struct {
	IP        string
	Priority  int
	Reachable bool
}

// Rank probes every IPv4 address of rec in parallel and returns them
// sorted reachable first, then by priority. It fails only when ctx ends
// before the probes finish.
func (p *Prober) Rank(ctx context.Context, rec discovery.ServiceRecord) ([]Candidate, error) {
	var ips []string
	for _, addr := range rec.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			ips = append(ips, addr)
		}
	}

	candidates := make([]Candidate, len(ips))
	g, gctx := errgroup.WithContext(ctx)
	for i, ip := range ips {
		g.Go(func() error {
			reachable := p.Reachable(gctx, ip, rec.Port)
			if err := ctx.Err(); err != nil {
				return err
			}
			candidates[i] = Candidate{IP: ip, Priority: Priority(ip), Reachable: reachable}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("probing %s: %w", rec.Fullname, err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Reachable != candidates[j].Reachable {
			return candidates[i].Reachable
		}
		return candidates[i].Priority > candidates[j].Priority
	})
	return candidates, nil
}

// BestURL picks the URL to use for rec. The highest priority reachable
// IPv4 address wins; when none answers the highest priority one is used
// anyway. Records without IPv4 addresses fall back to rec.URL().
func (p *Prober) BestURL(ctx context.Context, rec discovery.ServiceRecord) (string, error) {
	if len(rec.Addresses) == 0 {
		return "", fmt.Errorf("%s: %w", rec.Fullname, ErrNoAddress)
	}

	candidates, err := p.Rank(ctx, rec)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return rec.URL(), nil
	}

	best := candidates[0]
	if !best.Reachable {
		p.log.Warnf("No reachable IPs found for %s, using highest priority", rec.Hostname)
	} else {
		p.log.Infof("Selected IP for %s: %s (priority: %d)", rec.Hostname, best.IP, best.Priority)
	}
	return discovery.HTTPURL(best.IP, rec.Port), nil
}
