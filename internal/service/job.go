package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/domain/dispatch"
	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
	"github.com/fleetline/dispatch/internal/observability/metrics"
	"github.com/fleetline/dispatch/internal/observability/statsd"
)

// etaLayouts are the formats accepted when deciding whether an ETA names a
// concrete future appointment. Anything unparseable is treated as free text.
var etaLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"01/02/2006 15:04",
}

// JobService handles job creation, retrieval, and deletion.
type JobService struct {
	repo       core.JobRepository
	orders     core.OrderNumberSource
	directory  core.UserDirectory
	timers     core.AcceptanceTimers
	visibility *VisibilityResolver
	fanout     *Fanout
	gate       dispatch.Gate
	clock      core.Clock
	logger     *slog.Logger
	metrics    statsd.Sink
}

// JobServiceOptions configures a JobService.
type JobServiceOptions struct {
	Repo       core.JobRepository
	Orders     core.OrderNumberSource
	Directory  core.UserDirectory
	Timers     core.AcceptanceTimers
	Visibility *VisibilityResolver
	Fanout     *Fanout
	Gate       dispatch.Gate
	Clock      core.Clock
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// NewJobService creates a JobService with the given options.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, apperrors.Validation("job repository is required")
	}
	if opts.Orders == nil {
		return nil, apperrors.Validation("order number source is required")
	}
	if opts.Directory == nil {
		return nil, apperrors.Validation("user directory is required")
	}
	if opts.Visibility == nil {
		return nil, apperrors.Validation("visibility resolver is required")
	}
	if opts.Fanout == nil {
		return nil, apperrors.Validation("fanout is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		repo:       opts.Repo,
		orders:     opts.Orders,
		directory:  opts.Directory,
		timers:     opts.Timers,
		visibility: opts.Visibility,
		fanout:     opts.Fanout,
		gate:       opts.Gate,
		clock:      clock,
		logger:     logger.With("component", "job_service"),
		metrics:    opts.Metrics,
	}, nil
}

// Create validates and persists a new job, then fans out to everyone it is
// visible to. Jobs with a parseable future ETA start out Scheduled instead
// of Pending.
func (s *JobService) Create(ctx context.Context, req model.CreateJobRequest) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.create(ctx, req)
	s.emit("create", start, err)
	return job, err
}

func (s *JobService) create(ctx context.Context, req model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	now := s.clock.Now()

	orderNumber, err := s.orders.Next(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "allocate order number")
	}

	job := &model.Job{
		OrderNumber:    orderNumber,
		ServiceType:    req.ServiceType,
		VehicleClass:   req.VehicleClass,
		PaymentType:    req.PaymentType,
		CreatedBy:      req.CreatedBy,
		Location:       req.Location,
		Dropoff:        req.Dropoff,
		DisplayAddress: dispatch.DisplayAddress(req.Location),
		Status:         model.JobStatusPending,
		ETA:            strings.TrimSpace(req.ETA),
		CreatedAt:      now,
	}
	if scheduledETA(job.ETA, now) {
		job.Status = model.JobStatusScheduled
	}
	job.AppendHistory(job.Status, now, req.CreatedBy, "job created")

	if err := s.visibility.Recompute(ctx, job); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "job created",
		"job_id", job.ID, "order_number", job.OrderNumber, "status", job.Status)
	s.fanout.Broadcast(ctx, job, EventJobUpdated, JobUpdatedPayload{Job: job})
	return job, nil
}

// Get returns a job if the viewer is permitted to see it.
func (s *JobService) Get(ctx context.Context, jobID, viewerID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	viewer, err := s.directory.GetUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanView(viewer, job) {
		return nil, apperrors.Forbidden("job is not visible to this user")
	}
	return job, nil
}

// Delete removes a canceled job. Only owners and admins may delete, and only
// jobs that have already been canceled.
func (s *JobService) Delete(ctx context.Context, jobID, actorID string) error {
	start := s.clock.Now()
	err := s.delete(ctx, jobID, actorID)
	s.emit("delete", start, err)
	return err
}

func (s *JobService) delete(ctx context.Context, jobID, actorID string) error {
	actor, err := s.directory.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if !s.gate.CanDelete(actor) {
		return apperrors.Forbidden("not permitted to delete jobs")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusCanceled {
		return apperrors.InvalidState("only canceled jobs can be deleted")
	}
	if err := s.repo.Delete(ctx, jobID); err != nil {
		return err
	}
	if s.timers != nil {
		s.timers.Cancel(jobID)
	}
	s.logger.InfoContext(ctx, "job deleted", "job_id", jobID, "actor_id", actorID)
	s.fanout.Broadcast(ctx, job, EventJobRemoved, JobRemovedPayload{JobID: jobID, Reason: "deleted"})
	return nil
}

func (s *JobService) emit(op string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitOperation(s.metrics, metrics.OperationMetric{
		Operation: op,
		Result:    result,
		Duration:  s.clock.Now().Sub(start),
		Err:       err,
	})
}

// scheduledETA reports whether eta names a concrete moment after now.
func scheduledETA(eta string, now time.Time) bool {
	if eta == "" {
		return false
	}
	for _, layout := range etaLayouts {
		if t, err := time.Parse(layout, eta); err == nil {
			return t.After(now)
		}
	}
	return false
}
