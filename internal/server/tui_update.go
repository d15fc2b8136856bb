// ABOUTME: Bridge statistics and TUI update helpers
// ABOUTME: Tracks connections and scan outcomes for the status display
package server

import (
	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// Stats returns a snapshot of bridge activity
func (s *Server) Stats() Status {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	st := s.stats
	st.LastServers = append([]string(nil), s.stats.LastServers...)
	if s.addr != nil {
		st.Listen = s.addr.String()
	} else {
		st.Listen = s.config.Listen
	}
	return st
}

func (s *Server) recordConnection(delta int) {
	s.statsMu.Lock()
	s.stats.Connections += delta
	s.statsMu.Unlock()
	s.updateTUI()
}

func (s *Server) recordScan(servers []discovery.ServiceRecord, err error) {
	s.statsMu.Lock()
	s.stats.Scans++
	s.stats.LastScan = s.clock.Now()
	if err != nil {
		s.stats.LastError = err.Error()
	} else {
		s.stats.LastError = ""
		names := make([]string, 0, len(servers))
		for _, rec := range servers {
			names = append(names, rec.Fullname)
		}
		s.stats.LastServers = names
	}
	s.statsMu.Unlock()
	s.updateTUI()
}

// updateTUI sends current bridge state to the TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.Stats())
}
