package stage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Default timings for the deferred task.
const (
	DefaultInitialDelay = 5 * time.Second
	DefaultSpacing      = 250 * time.Millisecond
)

// StreamController is the subset of the rendering service the engine drives.
type StreamController interface {
	StreamActive(ctx context.Context) (bool, error)
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
}

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Action is a deferred operation queued by an idle transition.
type Action struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options configures an Engine.
type Options struct {
	Stream StreamController

	StopStreamOnIdle     bool
	ExitOnIdle           bool
	StartStreamOnStartup bool

	// Shutdown is called by the exit action.
	Shutdown func(reason string)

	// OnTransition is called for every observed change between two known stages.
	OnTransition func(from, to Stage)

	// InitialDelay and Spacing control the deferred task. Zero uses the defaults.
	InitialDelay time.Duration
	Spacing      time.Duration

	Logger Logger
}

// Engine applies the stream and exit policy to stage reports.
//
// Thread Safety: Evaluate is meant to be called from one goroutine (the
// message consumer). LastStage and Pending are safe from any goroutine.
type Engine struct {
	opts   Options
	logger Logger

	mu        sync.Mutex
	lastStage *Stage
	pending   []Action
	// running is set while a deferred task is alive, including while its
	// last action runs and during the spacing after it.
	running bool
	wg      sync.WaitGroup
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.InitialDelay == 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.Spacing == 0 {
		opts.Spacing = DefaultSpacing
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{opts: opts, logger: logger}
}

// Evaluate applies the policy for the current stage. The previous stage is
// updated on every return path, including errors.
//
// Errors come from querying or starting the stream; they are reported so the
// caller can log them and do not stop later evaluations.
func (e *Engine) Evaluate(ctx context.Context, current Stage) (err error) {
	current = normalise(current)

	e.mu.Lock()
	prev := e.lastStage
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		s := current
		e.lastStage = &s
		e.mu.Unlock()
	}()

	if prev != nil && *prev != current {
		if current.IsIdle() {
			e.logger.Info("print complete", "previous_stage", prev.String())
		}
		if e.opts.OnTransition != nil {
			e.opts.OnTransition(*prev, current)
		}
	}

	if e.busy() {
		return nil
	}

	if current.IsIdle() {
		return e.queueIdleActions(ctx)
	}

	if e.opts.StartStreamOnStartup {
		active, err := e.opts.Stream.StreamActive(ctx)
		if err != nil {
			return err
		}
		if !active {
			e.logger.Info("printer is active, starting stream", "stage", current.String())
			return e.opts.Stream.StartStream(ctx)
		}
	}
	return nil
}

// queueIdleActions enqueues the idle policy and spawns the deferred task.
func (e *Engine) queueIdleActions(ctx context.Context) error {
	var actions []Action

	if e.opts.StopStreamOnIdle {
		active, err := e.opts.Stream.StreamActive(ctx)
		if err != nil {
			return err
		}
		if active {
			e.logger.Info("stopping stream after delay", "delay", e.opts.InitialDelay)
			actions = append(actions, Action{Name: "stop_stream", Run: e.stopStream})
		}
	}

	if e.opts.ExitOnIdle {
		e.logger.Info("printer is idle, exiting after delay", "delay", e.opts.InitialDelay)
		actions = append(actions, Action{Name: "exit", Run: e.exit})
	}

	if len(actions) == 0 {
		return nil
	}

	e.mu.Lock()
	e.pending = append(e.pending, actions...)
	e.running = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.drain(ctx)
	return nil
}

// drain waits the initial delay then runs queued actions in order.
func (e *Engine) drain(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if !sleep(ctx, e.opts.InitialDelay) {
		e.clearPending()
		return
	}

	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return
		}
		action := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		if err := action.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error("deferred action failed", "action", action.Name, "error", err)
		}

		if !sleep(ctx, e.opts.Spacing) {
			e.clearPending()
			return
		}
	}
}

// stopStream re-checks the stream because stopping an inactive stream fails.
func (e *Engine) stopStream(ctx context.Context) error {
	active, err := e.opts.Stream.StreamActive(ctx)
	if err != nil {
		return err
	}
	if !active {
		e.logger.Debug("stream already stopped")
		return nil
	}
	return e.opts.Stream.StopStream(ctx)
}

func (e *Engine) exit(context.Context) error {
	if e.opts.Shutdown != nil {
		e.opts.Shutdown("printer is idle")
	}
	return nil
}

func (e *Engine) clearPending() {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
}

// busy reports whether a deferred task is queued or still running.
func (e *Engine) busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running || len(e.pending) > 0
}

// Pending returns the number of queued deferred actions.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// LastStage returns the most recently evaluated stage.
func (e *Engine) LastStage() (Stage, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastStage == nil {
		return 0, false
	}
	return *e.lastStage, true
}

// Wait blocks until the deferred task, if any, has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func normalise(s Stage) Stage {
	if s.IsIdle() {
		return Idle
	}
	return s
}

// sleep waits for d or ctx, reporting false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
