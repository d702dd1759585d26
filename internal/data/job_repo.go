// Package data provides PostgreSQL-backed persistence for the dispatch core.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
)

// RepoConfig holds configuration options for the data repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo persists job records. The record itself is stored as a jsonb
// document alongside a handful of indexed columns; the revision column is
// the optimistic-concurrency token.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// Create inserts a new job record. The job's ID is generated when empty and
// the revision starts at 1.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := r.timeProvider.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Revision = 1

	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	const query = `
		INSERT INTO jobs (id, order_number, status, doc, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.DB.ExecContext(ctx, query,
		job.ID, job.OrderNumber, string(job.Status), doc, job.Revision, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// GetByID loads a job by its id.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	const query = `SELECT doc, revision, updated_at FROM jobs WHERE id = $1`
	return r.scanJob(r.DB.QueryRowContext(ctx, query, id))
}

// Update persists an in-memory mutation of a job. The stored row must still
// carry the revision the job was loaded with; otherwise a concurrent writer
// won the race and a Conflict error is returned so the caller can reload and
// re-apply.
func (r *JobRepo) Update(ctx context.Context, job *model.Job) error {
	loadedRevision := job.Revision
	job.Revision++
	job.UpdatedAt = r.timeProvider.Now().UTC()

	doc, err := json.Marshal(job)
	if err != nil {
		job.Revision = loadedRevision
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	const query = `
		UPDATE jobs
		SET status = $2, doc = $3, revision = $4, updated_at = $5
		WHERE id = $1 AND revision = $6`
	res, err := r.DB.ExecContext(ctx, query,
		job.ID, string(job.Status), doc, job.Revision, job.UpdatedAt, loadedRevision)
	if err != nil {
		job.Revision = loadedRevision
		return apperrors.MapDBError(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		job.Revision = loadedRevision
		return apperrors.MapDBError(err)
	}
	if rows == 0 {
		job.Revision = loadedRevision
		// Distinguish a lost race from a deleted row.
		var exists bool
		checkErr := r.DB.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, job.ID).Scan(&exists)
		if checkErr != nil {
			return apperrors.MapDBError(checkErr)
		}
		if !exists {
			return apperrors.NotFoundf("job %s not found", job.ID)
		}
		return apperrors.Conflict(
			fmt.Sprintf("job %s was modified concurrently (revision %d is stale)", job.ID, loadedRevision))
	}
	return nil
}

// ListByStatus returns every job currently in the given status, oldest first.
// Used by the startup recovery sweep over pending-acceptance jobs.
func (r *JobRepo) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	const query = `
		SELECT doc, revision, updated_at FROM jobs
		WHERE status = $1
		ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, scanErr := r.scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return jobs, nil
}

// Delete removes a job row permanently.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if rows == 0 {
		return apperrors.NotFoundf("job %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepo) scanJob(row rowScanner) (*model.Job, error) {
	var (
		doc       []byte
		revision  int64
		updatedAt time.Time
	)
	if err := row.Scan(&doc, &revision, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("job not found")
		}
		return nil, apperrors.MapDBError(err)
	}

	var job model.Job
	if err := json.Unmarshal(doc, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job document: %w", err)
	}
	// The columns are authoritative for concurrency bookkeeping.
	job.Revision = revision
	job.UpdatedAt = updatedAt
	return &job, nil
}
