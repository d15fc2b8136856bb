// ABOUTME: Resolved service record and event types for discovery scans
// ABOUTME: Events are a closed set of kinds emitted by a discovery daemon
package discovery

import "net"

// ServiceRecord is a snapshot of one resolved service instance
type ServiceRecord struct {
	Hostname   string            `json:"hostname"`
	Fullname   string            `json:"fullname"`
	Addresses  []string          `json:"addresses"`
	Port       uint16            `json:"port"`
	Attributes map[string]string `json:"txt"`
}

// ServiceInfo is the raw resolution data a daemon reports for an instance.
// Port is an int because daemons report whatever arrived on the wire; the
// scanner narrows it to uint16.
type ServiceInfo struct {
	Fullname  string
	Hostname  string
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Event is a notification from a daemon subscription
type Event interface {
	isEvent()
}

// SearchStarted is emitted each time the daemon sends a query round
type SearchStarted struct {
	ServiceType string
}

// ServiceFound reports an instance name whose metadata is not yet known
type ServiceFound struct {
	ServiceType string
	Fullname    string
}

// ServiceResolved carries the full connection metadata of an instance
type ServiceResolved struct {
	Info ServiceInfo
}

// ServiceRemoved reports an instance that withdrew its advertisement
type ServiceRemoved struct {
	ServiceType string
	Fullname    string
}

// SearchStopped is emitted when the daemon stops querying. Err is nil on
// a clean stop.
type SearchStopped struct {
	ServiceType string
	Err         error
}

func (SearchStarted) isEvent()   {}
func (ServiceFound) isEvent()    {}
func (ServiceResolved) isEvent() {}
func (ServiceRemoved) isEvent()  {}
func (SearchStopped) isEvent()   {}
