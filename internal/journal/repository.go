package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/printcast/internal/stage"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("journal: job not found")

// Page size limits for RecentJobs.
const (
	defaultLimit = 20
	maxLimit     = 200
)

// Job is one print job.
type Job struct {
	ID          string       `json:"id"`
	SubtaskName string       `json:"subtask_name"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	WeightGrams *float64     `json:"weight_grams,omitempty"`
	FinalStage  *stage.Stage `json:"final_stage,omitempty"`
}

// Transition is one observed stage change.
type Transition struct {
	ID    int64       `json:"id"`
	JobID string      `json:"job_id,omitempty"`
	From  stage.Stage `json:"from"`
	To    stage.Stage `json:"to"`
	At    time.Time   `json:"at"`
}

// Repository defines the journal operations.
type Repository interface {
	StartJob(ctx context.Context, subtask string) (*Job, error)
	FinishJob(ctx context.Context, id string, final stage.Stage) error
	SetJobWeight(ctx context.Context, id string, grams float64) error
	RecordTransition(ctx context.Context, jobID string, from, to stage.Stage) error
	RecentJobs(ctx context.Context, limit int) ([]Job, error)
	Transitions(ctx context.Context, jobID string) ([]Transition, error)
}

// SQLiteRepository stores the journal in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// StartJob inserts a job that started now.
func (r *SQLiteRepository) StartJob(ctx context.Context, subtask string) (*Job, error) {
	job := &Job{
		ID:          "job-" + uuid.NewString()[:8],
		SubtaskName: subtask,
		StartedAt:   r.now(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO print_jobs (id, subtask_name, started_at) VALUES (?, ?, ?)`,
		job.ID, job.SubtaskName, job.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting print job: %w", err)
	}
	return job, nil
}

// FinishJob marks a job finished with the stage it ended in. Finishing an
// already finished job keeps the first finish time.
func (r *SQLiteRepository) FinishJob(ctx context.Context, id string, final stage.Stage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE print_jobs
		 SET finished_at = COALESCE(finished_at, ?), final_stage = COALESCE(final_stage, ?)
		 WHERE id = ?`,
		r.now().Format(time.RFC3339Nano), int(final), id,
	)
	if err != nil {
		return fmt.Errorf("finishing print job: %w", err)
	}
	return requireRow(res, id)
}

// SetJobWeight stores the filament weight read from the job's file.
func (r *SQLiteRepository) SetJobWeight(ctx context.Context, id string, grams float64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE print_jobs SET weight_grams = ? WHERE id = ?`, grams, id,
	)
	if err != nil {
		return fmt.Errorf("setting job weight: %w", err)
	}
	return requireRow(res, id)
}

// RecordTransition appends a stage change. jobID may be empty when no job is known.
func (r *SQLiteRepository) RecordTransition(ctx context.Context, jobID string, from, to stage.Stage) error {
	var job any
	if jobID != "" {
		job = jobID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO stage_transitions (job_id, from_stage, to_stage, at) VALUES (?, ?, ?, ?)`,
		job, int(from), int(to), r.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting stage transition: %w", err)
	}
	return nil
}

// RecentJobs returns jobs newest first. limit defaults to 20 and is capped at 200.
func (r *SQLiteRepository) RecentJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subtask_name, started_at, finished_at, weight_grams, final_stage
		 FROM print_jobs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying print jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		var (
			j          Job
			startedAt  string
			finishedAt sql.NullString
			weight     sql.NullFloat64
			final      sql.NullInt64
		)
		if err := rows.Scan(&j.ID, &j.SubtaskName, &startedAt, &finishedAt, &weight, &final); err != nil {
			return nil, fmt.Errorf("scanning print job: %w", err)
		}
		j.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			j.FinishedAt = &t
		}
		if weight.Valid {
			w := weight.Float64
			j.WeightGrams = &w
		}
		if final.Valid {
			s := stage.Stage(final.Int64)
			j.FinalStage = &s
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating print jobs: %w", err)
	}
	return jobs, nil
}

// Transitions returns a job's stage changes, oldest first.
func (r *SQLiteRepository) Transitions(ctx context.Context, jobID string) ([]Transition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(job_id, ''), from_stage, to_stage, at
		 FROM stage_transitions WHERE job_id = ? ORDER BY id`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stage transitions: %w", err)
	}
	defer rows.Close()

	out := []Transition{}
	for rows.Next() {
		var (
			t        Transition
			from, to int
			at       string
		)
		if err := rows.Scan(&t.ID, &t.JobID, &from, &to, &at); err != nil {
			return nil, fmt.Errorf("scanning stage transition: %w", err)
		}
		t.From, t.To, t.At = stage.Stage(from), stage.Stage(to), parseTime(at)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stage transitions: %w", err)
	}
	return out, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // Format is controlled
	return t
}
