package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/printcast/internal/infrastructure/config"
	"github.com/nerrad567/printcast/internal/infrastructure/logging"
	"github.com/nerrad567/printcast/internal/journal"
	"github.com/nerrad567/printcast/internal/pipeline"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// healthCheckTimeout bounds all dependency checks of one request.
const healthCheckTimeout = 3 * time.Second

// StatusReport is the body of GET /api/v1/status.
type StatusReport struct {
	Serial string `json:"serial"`

	// Printer is the MQTT supervisor state (connected, reconnecting, ...).
	Printer string `json:"printer"`

	OBSConnected bool `json:"obs_connected"`
	OverlayReady bool `json:"overlay_ready"`

	// LastStage is empty until the first status report has been evaluated.
	LastStage string `json:"last_stage,omitempty"`

	Pipeline       pipeline.Stats `json:"pipeline"`
	JournalEnabled bool           `json:"journal_enabled"`
	JournalDropped int64          `json:"journal_dropped,omitempty"`

	// Health maps each checked dependency to "ok" or its error.
	Health map[string]string `json:"health,omitempty"`
}

// StatusSource reports the bridge's current state.
type StatusSource interface {
	Status() StatusReport
}

// HealthChecker is a dependency that can report whether it is usable.
// *mqtt.Client, *database.DB, *influxdb.Client and *obs.Client implement it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// JobSource reads the print journal.
type JobSource interface {
	RecentJobs(ctx context.Context, limit int) ([]journal.Job, error)
	Transitions(ctx context.Context, jobID string) ([]journal.Transition, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Status  StatusSource
	Jobs    JobSource // nil when the journal is disabled
	Version string

	// Checks are run by /health and /status, keyed by the name reported.
	Checks map[string]HealthChecker
}

// Server is the HTTP status server.
//
// It is created with New(), started with Start() and stopped with Close().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	status  StatusSource
	jobs    JobSource
	checks  map[string]HealthChecker
	version string

	hub    *Hub
	server *http.Server
	cancel context.CancelFunc

	mu   sync.Mutex
	addr net.Addr
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		status:  deps.Status,
		jobs:    deps.Jobs,
		checks:  deps.Checks,
		version: deps.Version,
		hub:     NewHub(deps.Logger),
	}, nil
}

// Start binds the listener and serves in the background.
//
// Binding happens before Start returns so port conflicts surface as an
// error rather than a log line.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("status API listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Broadcast pushes an event to websocket clients subscribed to channel.
func (s *Server) Broadcast(channel string, payload any) {
	s.hub.Broadcast(channel, payload)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// runChecks runs every dependency check and reports whether all passed.
func (s *Server) runChecks(ctx context.Context) (map[string]string, bool) {
	if len(s.checks) == 0 {
		return nil, true
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	healthy := true
	for name, c := range s.checks {
		if err := c.HealthCheck(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}
