// ABOUTME: Address and server selection helpers for resolved records
// ABOUTME: Prefers IPv4 and matches servers by device hostname
package discovery

import (
	"net"
	"strconv"
	"strings"
)

// PreferredAddress returns the first IPv4 address, else the first address
func (r ServiceRecord) PreferredAddress() string {
	for _, addr := range r.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return addr
		}
	}
	if len(r.Addresses) > 0 {
		return r.Addresses[0]
	}
	return ""
}

// URL returns the http URL of the preferred address, or "" without one
func (r ServiceRecord) URL() string {
	addr := r.PreferredAddress()
	if addr == "" {
		return ""
	}
	return HTTPURL(addr, r.Port)
}

// HTTPURL formats an http URL for a host and port
func HTTPURL(host string, port uint16) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// FindByDevice returns the record advertised by the device with the given
// name, i.e. whose hostname is "<device>.local".
func FindByDevice(records []ServiceRecord, device string) (ServiceRecord, bool) {
	if device == "" {
		return ServiceRecord{}, false
	}
	want := strings.ToLower(strings.TrimSuffix(device, ".") + ".local")
	for _, rec := range records {
		if strings.ToLower(strings.TrimSuffix(rec.Hostname, ".")) == want {
			return rec, true
		}
	}
	return ServiceRecord{}, false
}
