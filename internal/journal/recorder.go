package journal

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/printcast/internal/stage"
)

// Recorder defaults.
const (
	DefaultBuffer       = 64
	DefaultWriteTimeout = 5 * time.Second
)

// Logger is the logging surface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder turns per-message observations into journal rows.
//
// A job starts when the printer leaves idle (or a different job name shows up
// while printing) and finishes when the printer returns to idle. Every stage
// change in between is recorded against the job.
//
// Thread Safety: Observe and JobWeight never block and are safe from any
// goroutine. Writes happen on the goroutine running Run; observations made
// while the buffer is full are dropped and counted.
type Recorder struct {
	repo   Repository
	logger Logger
	ops    chan func(ctx context.Context)

	dropped atomic.Int64

	// Owned by the Run goroutine.
	current   *Job
	lastStage stage.Stage
	haveStage bool
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		ops:    make(chan func(ctx context.Context), DefaultBuffer),
	}
}

// Run performs queued writes until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-r.ops:
			opCtx, cancel := context.WithTimeout(ctx, DefaultWriteTimeout)
			op(opCtx)
			cancel()
		}
	}
}

// Observe records the stage of one status report for the named job.
func (r *Recorder) Observe(subtask string, s stage.Stage) {
	r.enqueue(func(ctx context.Context) {
		r.observe(ctx, subtask, s)
	})
}

// JobWeight stores the filament weight of the current job, if it is name.
func (r *Recorder) JobWeight(name string, grams float64) {
	r.enqueue(func(ctx context.Context) {
		if r.current == nil || r.current.SubtaskName != name {
			return
		}
		if err := r.repo.SetJobWeight(ctx, r.current.ID, grams); err != nil {
			r.logger.Warn("journal: saving job weight failed", "job", r.current.ID, "error", err)
		}
	})
}

// RecentJobs reads jobs directly from the repository.
func (r *Recorder) RecentJobs(ctx context.Context, limit int) ([]Job, error) {
	return r.repo.RecentJobs(ctx, limit)
}

// Transitions reads the stage changes recorded for a job.
func (r *Recorder) Transitions(ctx context.Context, jobID string) ([]Transition, error) {
	return r.repo.Transitions(ctx, jobID)
}

// Dropped returns how many observations were discarded because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) enqueue(op func(ctx context.Context)) {
	select {
	case r.ops <- op:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("journal: write buffer full, dropping observations")
		}
	}
}

func (r *Recorder) observe(ctx context.Context, subtask string, s stage.Stage) {
	prev, known := r.lastStage, r.haveStage
	r.lastStage, r.haveStage = s, true

	if s.IsIdle() {
		if known && prev != s {
			r.recordTransition(ctx, prev, s)
		}
		r.finish(ctx, prev)
		return
	}

	if r.current != nil && r.current.SubtaskName != subtask {
		r.finish(ctx, prev)
	}
	if r.current == nil {
		r.start(ctx, subtask)
	}
	if known && prev != s {
		r.recordTransition(ctx, prev, s)
	}
}

func (r *Recorder) start(ctx context.Context, subtask string) {
	job, err := r.repo.StartJob(ctx, subtask)
	if err != nil {
		r.logger.Warn("journal: starting job failed", "job", subtask, "error", err)
		return
	}
	r.current = job
	r.logger.Info("journal: job started", "id", job.ID, "job", subtask)
}

func (r *Recorder) finish(ctx context.Context, final stage.Stage) {
	if r.current == nil {
		return
	}
	id := r.current.ID
	r.current = nil
	if err := r.repo.FinishJob(ctx, id, final); err != nil {
		r.logger.Warn("journal: finishing job failed", "id", id, "error", err)
		return
	}
	r.logger.Info("journal: job finished", "id", id, "final_stage", final.String())
}

func (r *Recorder) recordTransition(ctx context.Context, from, to stage.Stage) {
	var jobID string
	if r.current != nil {
		jobID = r.current.ID
	}
	if err := r.repo.RecordTransition(ctx, jobID, from, to); err != nil {
		r.logger.Warn("journal: recording transition failed", "error", err)
	}
}
