// ABOUTME: DNS-SD service type parsing
// ABOUTME: Splits "_app._tcp.local." into service and domain labels
package discovery

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// ServiceType is a parsed DNS-SD service type
type ServiceType struct {
	// Service is the "_app._proto" part, e.g. "_aaxion._tcp"
	Service string
	// Domain is the browse domain without a trailing dot, e.g. "local"
	Domain string
}

// ParseServiceType parses a service type such as "_aaxion._tcp.local.".
// A missing domain defaults to "local".
func ParseServiceType(s string) (ServiceType, error) {
	if s == "" {
		return ServiceType{}, fmt.Errorf("empty service type")
	}
	if _, ok := dns.IsDomainName(s); !ok {
		return ServiceType{}, fmt.Errorf("invalid service type %q", s)
	}

	labels := dns.SplitDomainName(s)
	if len(labels) < 2 {
		return ServiceType{}, fmt.Errorf("service type %q needs an application and protocol label", s)
	}
	app, proto := labels[0], strings.ToLower(labels[1])
	if len(app) < 2 || app[0] != '_' {
		return ServiceType{}, fmt.Errorf("service type %q: application label must start with '_'", s)
	}
	if proto != "_tcp" && proto != "_udp" {
		return ServiceType{}, fmt.Errorf("service type %q: protocol must be _tcp or _udp", s)
	}

	domain := "local"
	if len(labels) > 2 {
		domain = strings.Join(labels[2:], ".")
	}
	return ServiceType{Service: app + "." + proto, Domain: domain}, nil
}

// FQDN returns the fully qualified browse name, e.g. "_aaxion._tcp.local."
func (t ServiceType) FQDN() string {
	return dns.Fqdn(t.Service + "." + t.Domain)
}

// Contains reports whether an instance fullname belongs to this type
func (t ServiceType) Contains(fullname string) bool {
	name := dns.Fqdn(fullname)
	return dns.IsSubDomain(t.FQDN(), name) && dns.CountLabel(name) > dns.CountLabel(t.FQDN())
}

func (t ServiceType) String() string {
	return t.FQDN()
}
