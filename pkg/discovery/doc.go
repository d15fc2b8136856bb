// ABOUTME: mDNS service discovery package
// ABOUTME: Bounded-time scans for Aaxion servers on the local network
// Package discovery scans the local network for DNS-SD service instances.
//
// A scan runs for a fixed budget, collects every instance that resolves in
// that window, drops repeated announcements of the same instance, and
// returns the records in the order they resolved. The discovery daemon is
// created for the scan and released when it ends.
//
// Example:
//
//	servers, err := discovery.Scan(discovery.AaxionServiceType, discovery.DefaultScanDuration)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, srv := range servers {
//	    fmt.Printf("Found: %s at %s\n", srv.Hostname, srv.URL())
//	}
//
// Callers that need a custom daemon (tests, other transports) build a
// Scanner with NewScanner and their own DaemonFactory.
package discovery
