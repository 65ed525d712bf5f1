// Package server hosts the calendar HTTP/WebSocket process.
//
// It layers a per-connection session lifecycle over per-department vote
// ledgers: inbound JSON frames are routed to registry operations and
// answered with a unicast reply or a best-effort broadcast to every active
// session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kangpj/activeCal/internal/directory"
	"github.com/kangpj/activeCal/internal/platform/timeouts"
)

// Default privileged pair granting the manager role. Operators override
// both through configuration.
const (
	defaultManagerDepartment = "ulsanedu"
	defaultManagerNickname   = "caconam"
)

// Config defines the inputs for the calendar transport boundary.
type Config struct {
	HTTPAddr          string
	ManagerDepartment string
	ManagerNickname   string
	HeartbeatInterval time.Duration
	SessionTimeout    time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the websocket endpoint, the session reaper worker and the
// process-wide vote state.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	reaperStop      context.CancelFunc
	reaperDone      chan struct{}
}

// NewServer builds a configured calendar server with isolated state.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = timeouts.Heartbeat
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = timeouts.SessionIdle
	}

	state := newHandlerState(directory.ManagerRule{
		Department: strings.TrimSpace(config.ManagerDepartment),
		Nickname:   strings.TrimSpace(config.ManagerNickname),
	})
	reaperStop, reaperDone := startSessionReaper(state.sessions, config.HeartbeatInterval, config.SessionTimeout)

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(state),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		reaperStop:      reaperStop,
		reaperDone:      reaperDone,
	}, nil
}

// Run creates and serves a calendar server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init calendar server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve calendar: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("calendar server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("calendar server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close stops the session reaper worker.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.reaperStop != nil {
		s.reaperStop()
	}
	if s.reaperDone != nil {
		<-s.reaperDone
	}
}
