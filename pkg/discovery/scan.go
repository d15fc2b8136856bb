// ABOUTME: Package-level scan using the hashicorp/mdns daemon
// ABOUTME: Convenience entry point for callers without custom wiring
package discovery

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Scan runs a single scan with the default mDNS daemon configuration
func Scan(serviceType string, duration time.Duration) ([]ServiceRecord, error) {
	logger := logrus.StandardLogger()
	return NewScanner(MDNSFactory(MDNSConfig{}, logger), WithLogger(logger)).Scan(serviceType, duration)
}
