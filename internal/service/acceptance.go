package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
	"github.com/fleetline/dispatch/internal/observability/metrics"
	"github.com/fleetline/dispatch/internal/observability/statsd"
)

// errExpiryStale signals that a fired timer no longer matches the persisted
// job and the expiry must be dropped without effect.
var errExpiryStale = errors.New("acceptance timer is stale")

// AcceptanceService handles the accept-or-reject decision on an assigned job
// and the auto-reject path when the acceptance window lapses.
type AcceptanceService struct {
	repo       core.JobRepository
	directory  core.UserDirectory
	vehicles   core.VehicleDirectory
	timers     core.AcceptanceTimers
	visibility *VisibilityResolver
	fanout     *Fanout
	clock      core.Clock
	logger     *slog.Logger
	metrics    statsd.Sink
}

// AcceptanceServiceOptions configures an AcceptanceService.
type AcceptanceServiceOptions struct {
	Repo       core.JobRepository
	Directory  core.UserDirectory
	Vehicles   core.VehicleDirectory
	Timers     core.AcceptanceTimers
	Visibility *VisibilityResolver
	Fanout     *Fanout
	Clock      core.Clock
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// NewAcceptanceService creates an AcceptanceService with the given options.
func NewAcceptanceService(opts AcceptanceServiceOptions) (*AcceptanceService, error) {
	if opts.Repo == nil {
		return nil, apperrors.Validation("job repository is required")
	}
	if opts.Directory == nil {
		return nil, apperrors.Validation("user directory is required")
	}
	if opts.Vehicles == nil {
		return nil, apperrors.Validation("vehicle directory is required")
	}
	if opts.Timers == nil {
		return nil, apperrors.Validation("acceptance timers are required")
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
	return &AcceptanceService{
		repo:       opts.Repo,
		directory:  opts.Directory,
		vehicles:   opts.Vehicles,
		timers:     opts.Timers,
		visibility: opts.Visibility,
		fanout:     opts.Fanout,
		clock:      clock,
		logger:     logger.With("component", "acceptance_service"),
		metrics:    opts.Metrics,
	}, nil
}

// AcceptParams describes an actor accepting their assignment.
type AcceptParams struct {
	JobID   string
	ActorID string
	// ETA is the actor's stated arrival estimate. Mandatory for
	// provider-tier actors, optional for drivers.
	ETA string
}

// Accept confirms the assignment: the job moves to Dispatched, the timer is
// disarmed, and the creator is notified. Accepting twice is a no-op beyond
// the already-recorded acceptance.
func (s *AcceptanceService) Accept(ctx context.Context, params AcceptParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.accept(ctx, params)
	s.emit("accept", start, err)
	return job, err
}

func (s *AcceptanceService) accept(ctx context.Context, params AcceptParams) (*model.Job, error) {
	actor, err := s.directory.GetUser(ctx, params.ActorID)
	if err != nil {
		return nil, err
	}
	eta := strings.TrimSpace(params.ETA)
	if actor.Role.ProviderTier() && eta == "" {
		return nil, apperrors.ValidationField("eta", "an ETA is required to accept")
	}

	job, err := mutateJob(ctx, s.repo, params.JobID, func(ctx context.Context, job *model.Job) error {
		if job.AssignedActorID() != params.ActorID {
			return apperrors.Forbidden("job is not assigned to this user")
		}
		now := s.clock.Now()
		if job.AcceptedAt == nil {
			at := now
			job.AcceptedAt = &at
		}
		job.Status = model.JobStatusDispatched
		at := now
		job.DispatchedAt = &at
		job.NeedsAcceptance = false
		if eta != "" {
			job.ETA = eta
		}
		job.AppendHistory(model.JobStatusDispatched, now, actor.Name, "accepted assignment")
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.timers.Cancel(job.ID)

	s.logger.InfoContext(ctx, "job accepted", "job_id", job.ID, "actor_id", params.ActorID)
	s.fanout.Targeted(ctx, job.CreatedBy, EventJobAccepted, JobEventPayload{
		JobID:       job.ID,
		OrderNumber: job.OrderNumber,
		Actor:       actor.Name,
		At:          s.clock.Now(),
	})
	s.fanout.Broadcast(ctx, job, EventJobUpdated, JobUpdatedPayload{Job: job}, job.CreatedBy)
	return job, nil
}

// RejectParams describes an actor declining their assignment.
type RejectParams struct {
	JobID   string
	ActorID string
	Reason  string
}

// Reject declines the assignment: the job returns to the Pending pool, the
// rejection is logged, and the actor's vehicle is released. A reason is
// mandatory.
func (s *AcceptanceService) Reject(ctx context.Context, params RejectParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.reject(ctx, params)
	s.emit("reject", start, err)
	return job, err
}

func (s *AcceptanceService) reject(ctx context.Context, params RejectParams) (*model.Job, error) {
	reason := strings.TrimSpace(params.Reason)
	if reason == "" {
		return nil, apperrors.ValidationField("reason", "a rejection reason is required")
	}
	actor, err := s.directory.GetUser(ctx, params.ActorID)
	if err != nil {
		return nil, err
	}

	job, err := mutateJob(ctx, s.repo, params.JobID, func(ctx context.Context, job *model.Job) error {
		if job.AssignedActorID() != params.ActorID {
			return apperrors.Forbidden("job is not assigned to this user")
		}
		now := s.clock.Now()
		at := now
		job.RejectedAt = &at
		job.RejectionReason = reason
		job.Rejections = append(job.Rejections, model.RejectionEntry{
			ActorID:   params.ActorID,
			ActorName: actor.Name,
			Reason:    reason,
			Type:      model.RejectionManual,
			At:        now,
		})
		job.Status = model.JobStatusPending
		job.ClearAssignment()
		job.AppendHistory(model.JobStatusPending, now, actor.Name, "rejected: "+reason)
		return s.visibility.Recompute(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.timers.Cancel(job.ID)
	releaseVehicle(ctx, s.vehicles, s.logger, params.ActorID)

	s.logger.InfoContext(ctx, "job rejected",
		"job_id", job.ID, "actor_id", params.ActorID, "reason", reason)
	s.fanout.Targeted(ctx, job.CreatedBy, EventJobRejected, JobEventPayload{
		JobID:       job.ID,
		OrderNumber: job.OrderNumber,
		Actor:       actor.Name,
		Reason:      reason,
		At:          s.clock.Now(),
	})
	s.fanout.Targeted(ctx, params.ActorID, EventJobRemoved, JobRemovedPayload{
		JobID:  job.ID,
		Reason: "rejected",
	})
	s.fanout.Broadcast(ctx, job, EventJobUpdated, JobUpdatedPayload{Job: job},
		job.CreatedBy, params.ActorID)
	return job, nil
}

// HandleExpiry is the fire callback for acceptance timers. The persisted job
// is the source of truth: a handle that no longer matches it is dropped
// without effect, so late or superseded timers can never undo real work.
func (s *AcceptanceService) HandleExpiry(ctx context.Context, handle core.TimerHandle) error {
	var prior *PriorState
	var priorActor, priorActorName string

	job, err := mutateJob(ctx, s.repo, handle.JobID, func(ctx context.Context, job *model.Job) error {
		if reason, stale := s.staleReason(job, handle); stale {
			s.logger.InfoContext(ctx, "acceptance timer dropped",
				"job_id", handle.JobID, "actor_id", handle.ActorID, "reason", reason)
			metrics.EmitTimerOutcome(s.metrics, metrics.TimerStale, reason)
			return errExpiryStale
		}
		now := s.clock.Now()
		prior = snapshotPrior(job)
		priorActor = job.AssignedActorID()
		priorActorName = job.AssignedToName

		window := handle.Deadline.Sub(handle.ArmedAt).Round(time.Second)
		reason := fmt.Sprintf("not accepted within %s", window)

		at := now
		job.RejectedAt = &at
		job.RejectionReason = reason
		job.Rejections = append(job.Rejections, model.RejectionEntry{
			ActorID:   priorActor,
			ActorName: priorActorName,
			Reason:    reason,
			Type:      model.RejectionAuto,
			At:        now,
		})
		job.Status = model.JobStatusPending
		job.ClearAssignment()
		job.AppendHistory(model.JobStatusPending, now, "system", "auto-rejected: "+reason)
		return s.visibility.Recompute(ctx, job)
	})
	if errors.Is(err, errExpiryStale) {
		return nil
	}
	if apperrors.IsNotFound(err) {
		s.logger.InfoContext(ctx, "acceptance timer dropped",
			"job_id", handle.JobID, "reason", "job_missing")
		metrics.EmitTimerOutcome(s.metrics, metrics.TimerStale, "job_missing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("auto-reject job %s: %w", handle.JobID, err)
	}

	releaseVehicle(ctx, s.vehicles, s.logger, priorActor)
	metrics.EmitTimerOutcome(s.metrics, metrics.TimerFired, "")

	s.logger.InfoContext(ctx, "job auto-rejected",
		"job_id", job.ID, "actor_id", priorActor, "deadline", handle.Deadline)
	s.fanout.Targeted(ctx, priorActor, EventJobRemoved, JobRemovedPayload{
		JobID:  job.ID,
		Reason: "auto_rejected",
	})
	s.fanout.Targeted(ctx, priorActor, EventJobUpdated, JobUpdatedPayload{Job: job, Prior: prior})
	s.fanout.Targeted(ctx, job.CreatedBy, EventJobAutoRejected, JobEventPayload{
		JobID:       job.ID,
		OrderNumber: job.OrderNumber,
		Actor:       priorActorName,
		Reason:      job.RejectionReason,
		At:          s.clock.Now(),
	})
	s.fanout.Broadcast(ctx, job, EventJobUpdated, JobUpdatedPayload{Job: job},
		priorActor, job.CreatedBy)
	return nil
}

// staleReason checks a fired handle against the persisted job record.
func (s *AcceptanceService) staleReason(job *model.Job, handle core.TimerHandle) (string, bool) {
	if job.Status != model.JobStatusPendingAcceptance {
		return "status_changed", true
	}
	if job.AcceptedAt != nil {
		return "already_accepted", true
	}
	if job.AutoRejectSetAt == nil {
		return "window_cleared", true
	}
	if job.AutoRejectSetAt.After(handle.ArmedAt) {
		return "superseded", true
	}
	if job.AssignedActorID() != handle.ActorID {
		return "reassigned", true
	}
	return "", false
}

// RecoverPending re-arms acceptance windows after a restart. Jobs whose
// deadline already passed while the process was down are expired
// immediately.
func (s *AcceptanceService) RecoverPending(ctx context.Context) error {
	jobs, err := s.repo.ListByStatus(ctx, model.JobStatusPendingAcceptance)
	if err != nil {
		return fmt.Errorf("list pending-acceptance jobs: %w", err)
	}
	now := s.clock.Now()
	recovered, expired := 0, 0
	for _, job := range jobs {
		if job.AutoRejectAt == nil || job.AutoRejectSetAt == nil || !job.Assigned() {
			s.logger.WarnContext(ctx, "pending-acceptance job has no deadline, skipping",
				"job_id", job.ID)
			continue
		}
		handle := core.TimerHandle{
			JobID:    job.ID,
			ActorID:  job.AssignedActorID(),
			ArmedAt:  *job.AutoRejectSetAt,
			Deadline: *job.AutoRejectAt,
		}
		if !handle.Deadline.After(now) {
			if err := s.HandleExpiry(ctx, handle); err != nil {
				s.logger.ErrorContext(ctx, "failed to expire overdue acceptance window",
					"job_id", job.ID, "error", err)
				continue
			}
			expired++
			continue
		}
		s.timers.Arm(handle)
		recovered++
	}
	if recovered > 0 || expired > 0 {
		metrics.EmitTimerOutcome(s.metrics, metrics.TimerRecovered, "")
		s.logger.InfoContext(ctx, "acceptance windows recovered",
			"rearmed", recovered, "expired", expired)
	}
	return nil
}

func (s *AcceptanceService) emit(op string, start time.Time, err error) {
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
