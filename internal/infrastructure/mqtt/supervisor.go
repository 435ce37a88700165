package mqtt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultRetryInterval is the pause between failed reconnect attempts.
const DefaultRetryInterval = time.Second

// State is the supervised connection state.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Connector makes one connection attempt. *Client implements it.
type Connector interface {
	Connect(ctx context.Context) error
	IsConnected() bool
}

var _ Connector = (*Client)(nil)

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Conn Connector

	RetryInterval time.Duration

	// ExitOnDisconnect treats every lost connection as fatal.
	ExitOnDisconnect bool

	// OnFatal is called once when the connection must not be retried.
	OnFatal func(err error)

	Logger Logger
}

// Supervisor owns reconnection of a Connector.
//
// Thread Safety: HandleDisconnect may be called from any number of
// goroutines; only one retry loop runs at a time.
type Supervisor struct {
	conn   Connector
	opts   SupervisorOptions
	logger Logger

	gate      *semaphore.Weighted
	state     atomic.Int32
	attempts  atomic.Int64
	fatalOnce sync.Once
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Supervisor{
		conn:   opts.Conn,
		opts:   opts,
		logger: logger,
		gate:   semaphore.NewWeighted(1),
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Start makes the first connection attempt. A failure is returned, not retried.
func (s *Supervisor) Start(ctx context.Context) error {
	s.setState(StateConnecting)
	s.attempts.Add(1)
	if err := s.conn.Connect(ctx); err != nil {
		s.setState(StateFailed)
		return err
	}
	s.setState(StateConnected)
	s.logger.Info("connected to printer MQTT")
	return nil
}

// HandleDisconnect reacts to a lost connection. It blocks while it owns the
// retry loop and returns immediately when another call already does.
func (s *Supervisor) HandleDisconnect(ctx context.Context, cause error) {
	s.logger.Warn("printer MQTT disconnected", "error", cause)

	if !s.gate.TryAcquire(1) {
		s.logger.Debug("reconnect already in progress")
		return
	}
	defer s.gate.Release(1)

	if IsAuthError(cause) {
		s.fail(cause)
		return
	}
	if s.opts.ExitOnDisconnect {
		s.setState(StateDisconnected)
		s.fatal(cause)
		return
	}
	if s.conn.IsConnected() {
		s.setState(StateConnected)
		return
	}

	s.setState(StateReconnecting)
	s.logger.Warn("waiting for printer MQTT reconnection")
	for ctx.Err() == nil {
		s.attempts.Add(1)
		err := s.conn.Connect(ctx)
		if err == nil {
			s.setState(StateConnected)
			s.logger.Info("reconnected to printer MQTT")
			return
		}
		if IsAuthError(err) {
			s.fail(err)
			return
		}
		if ctx.Err() != nil {
			break
		}
		s.logger.Debug("printer MQTT reconnect failed", "error", err)

		select {
		case <-ctx.Done():
		case <-time.After(s.opts.RetryInterval):
		}
	}
	s.setState(StateDisconnected)
}

func (s *Supervisor) fail(err error) {
	s.setState(StateFailed)
	s.logger.Error("printer MQTT authentication failed, check the access code", "error", err)
	s.fatal(err)
}

func (s *Supervisor) fatal(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	s.fatalOnce.Do(func() {
		if s.opts.OnFatal != nil {
			s.opts.OnFatal(err)
		}
	})
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Attempts returns the number of connection attempts made so far.
func (s *Supervisor) Attempts() int64 {
	return s.attempts.Load()
}

func (s *Supervisor) setState(st State) {
	if prev := State(s.state.Swap(int32(st))); prev != st {
		s.logger.Debug("printer MQTT state changed", "from", prev.String(), "to", st.String())
	}
}
