// ABOUTME: Local discovery bridge for UI shells
// ABOUTME: Serves scans over WebSocket and HTTP, coalescing concurrent requests
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/aaxion/aaxion-discovery/internal/version"
	"github.com/aaxion/aaxion-discovery/pkg/discovery"
	"github.com/aaxion/aaxion-discovery/pkg/protocol"
)

const shutdownTimeout = 5 * time.Second

// Discoverer runs one scan
type Discoverer interface {
	Scan(ctx context.Context) ([]discovery.ServiceRecord, error)
}

// Config holds server configuration
type Config struct {
	// Listen is the host:port to bind, e.g. "127.0.0.1:8931"
	Listen string
	UseTUI bool
}

// Server is the discovery bridge
type Server struct {
	config     Config
	discoverer Discoverer
	clock      clock.Clock
	log        logrus.FieldLogger

	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	httpServer *http.Server
	scans      singleflight.Group

	connsMu sync.Mutex
	conns   map[*websocket.Conn]struct{}

	statsMu sync.Mutex
	stats   Status
	tui     *StatusTUI

	ready    chan struct{}
	addr     net.Addr
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a bridge server
func New(config Config, discoverer Discoverer, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		config:     config,
		discoverer: discoverer,
		clock:      clock.New(),
		log:        logger,
		mux:        http.NewServeMux(),
		conns:      make(map[*websocket.Conn]struct{}),
		ready:      make(chan struct{}),
		stopChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Allow non-browser clients (no Origin header)
					return true
				}
				logger.Debugf("Accepting WebSocket from origin: %s", origin)
				return true
			},
		},
	}

	s.mux.HandleFunc(protocol.Path, s.handleWebSocket)
	s.mux.HandleFunc("/servers", s.handleServers)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// Handler returns the bridge's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Ready is closed once the listener is bound
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address; valid after Ready
func (s *Server) Addr() net.Addr {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.addr
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.statsMu.Lock()
	s.addr = ln.Addr()
	s.statsMu.Unlock()
	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	close(s.ready)

	s.log.Infof("Bridge listening on %s", ln.Addr())

	var tuiQuitChan <-chan struct{}
	if s.config.UseTUI {
		s.tui = NewStatusTUI()
		tuiQuitChan = s.tui.QuitChan()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(ln.Addr().String()); err != nil {
				s.log.WithError(err).Warn("TUI exited")
			}
		}()
		s.updateTUI()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("Bridge shutting down...")
	case <-tuiQuitChan:
		s.log.Info("TUI quit requested, shutting down...")
	case err := <-errChan:
		s.log.WithError(err).Error("HTTP server error")
		serverErr = err
	}

	if s.tui != nil {
		s.tui.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Warn("HTTP server shutdown error")
	}

	// Hijacked websocket connections are not closed by Shutdown
	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	s.log.Info("Bridge stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// scan runs one discovery, sharing it with any request already in flight
func (s *Server) scan(ctx context.Context) (protocol.DiscoverResult, error) {
	v, err, shared := s.scans.Do("scan", func() (interface{}, error) {
		start := s.clock.Now()
		servers, err := s.discoverer.Scan(ctx)
		s.recordScan(servers, err)
		if err != nil {
			return protocol.DiscoverResult{}, err
		}
		if servers == nil {
			servers = []discovery.ServiceRecord{}
		}
		return protocol.DiscoverResult{
			Servers:   servers,
			ElapsedMs: s.clock.Since(start).Milliseconds(),
		}, nil
	})
	if shared {
		s.log.Debug("Joined in-flight scan")
	}
	return v.(protocol.DiscoverResult), err
}

func errorPayload(err error) protocol.ErrorPayload {
	code := protocol.CodeInternal
	switch {
	case errors.Is(err, discovery.ErrDaemonUnavailable):
		code = protocol.CodeDaemonUnavailable
	case errors.Is(err, discovery.ErrSubscriptionFailed):
		code = protocol.CodeSubscriptionFailed
	}
	return protocol.ErrorPayload{Code: code, Message: err.Error()}
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, protocol.ErrorPayload{
			Code: protocol.CodeBadRequest, Message: "method not allowed",
		})
		return
	}

	result, err := s.scan(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Scan failed")
		status := http.StatusInternalServerError
		if errors.Is(err, discovery.ErrDaemonUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errorPayload(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"product":      version.Product,
		"manufacturer": version.Manufacturer,
		"version":      version.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	s.log.Debugf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(r.Context(), conn)
}

// handleConnection reads requests until the client goes away. Each
// request is answered on its own goroutine so slow scans do not block
// the reader.
func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
	s.recordConnection(1)

	ctx, cancel := context.WithCancel(ctx)
	var writeMu sync.Mutex
	var inflight sync.WaitGroup

	defer func() {
		cancel()
		inflight.Wait()
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		s.recordConnection(-1)
		conn.Close()
	}()

	send := func(msg protocol.Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			s.log.WithError(err).Debug("Failed to write reply")
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("WebSocket read error")
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			send(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{
				Code: protocol.CodeBadRequest, Message: "invalid JSON message",
			}})
			continue
		}

		if msg.Type != protocol.TypeDiscover {
			send(protocol.Message{Type: protocol.TypeError, ID: msg.ID, Payload: protocol.ErrorPayload{
				Code: protocol.CodeBadRequest, Message: fmt.Sprintf("unknown message type %q", msg.Type),
			}})
			continue
		}

		inflight.Add(1)
		s.wg.Add(1)
		go func(id string) {
			defer s.wg.Done()
			defer inflight.Done()

			result, err := s.scan(ctx)
			if err != nil {
				s.log.WithError(err).Warn("Scan failed")
				send(protocol.Message{Type: protocol.TypeError, ID: id, Payload: errorPayload(err)})
				return
			}
			send(protocol.Message{Type: protocol.TypeServers, ID: id, Payload: result})
		}(msg.ID)
	}
}
