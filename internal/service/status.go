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

// StatusService is the single entry point for job lifecycle transitions and
// the GOA / unsuccessful approval flows.
type StatusService struct {
	repo        core.JobRepository
	directory   core.UserDirectory
	vehicles    core.VehicleDirectory
	timers      core.AcceptanceTimers
	visibility  *VisibilityResolver
	fanout      *Fanout
	assignments *AssignmentService
	gate        dispatch.Gate
	clock       core.Clock
	logger      *slog.Logger
	metrics     statsd.Sink
}

// StatusServiceOptions configures a StatusService.
type StatusServiceOptions struct {
	Repo        core.JobRepository
	Directory   core.UserDirectory
	Vehicles    core.VehicleDirectory
	Timers      core.AcceptanceTimers
	Visibility  *VisibilityResolver
	Fanout      *Fanout
	Assignments *AssignmentService
	Gate        dispatch.Gate
	Clock       core.Clock
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// NewStatusService creates a StatusService with the given options.
func NewStatusService(opts StatusServiceOptions) (*StatusService, error) {
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
	if opts.Assignments == nil {
		return nil, apperrors.Validation("assignment service is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{
		repo:        opts.Repo,
		directory:   opts.Directory,
		vehicles:    opts.Vehicles,
		timers:      opts.Timers,
		visibility:  opts.Visibility,
		fanout:      opts.Fanout,
		assignments: opts.Assignments,
		gate:        opts.Gate,
		clock:       clock,
		logger:      logger.With("component", "status_service"),
		metrics:     opts.Metrics,
	}, nil
}

// UpdateStatusParams describes a lifecycle transition request.
type UpdateStatusParams struct {
	JobID  string
	Status model.JobStatus
	// Reason accompanies cancellations, GOA requests, and rejections.
	Reason string
	// ActorID optionally names an actor along with the status change. When
	// it differs from the current assignee the request is treated as a
	// reassignment; when it matches, the change proceeds without touching
	// the acceptance window.
	ActorID string
	// ETA, when set, replaces the job's stated arrival estimate.
	ETA string
	// By labels the history entry.
	By string
}

// UpdateStatus validates and applies a lifecycle transition, stamping the
// per-status timestamp and fanning out the update.
func (s *StatusService) UpdateStatus(ctx context.Context, params UpdateStatusParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.updateStatus(ctx, params)
	s.emit("update_status", params.Status, start, err)
	return job, err
}

func (s *StatusService) updateStatus(ctx context.Context, params UpdateStatusParams) (*model.Job, error) {
	if !params.Status.Valid() {
		return nil, apperrors.Validationf("unknown status %q", string(params.Status))
	}

	// An actor id that differs from the current assignee turns the request
	// into a reassignment, with the same window and archival semantics as a
	// direct assignment.
	if params.ActorID != "" {
		current, err := s.repo.GetByID(ctx, params.JobID)
		if err != nil {
			return nil, err
		}
		if current.AssignedActorID() != params.ActorID {
			return s.assignments.Assign(ctx, AssignParams{
				JobID:   params.JobID,
				ActorID: params.ActorID,
				By:      params.By,
			})
		}
	}

	reason := strings.TrimSpace(params.Reason)
	var prevStatus model.JobStatus
	var removedActor string
	job, err := mutateJob(ctx, s.repo, params.JobID, func(ctx context.Context, job *model.Job) error {
		if why, ok := dispatch.ValidateTransition(job.Status, params.Status); !ok {
			return apperrors.InvalidTransition(why)
		}
		now := s.clock.Now()
		prevStatus = job.Status
		removedActor = ""

		switch params.Status {
		case model.JobStatusDispatched:
			at := now
			job.DispatchedAt = &at
		case model.JobStatusEnRoute:
			at := now
			job.EnRouteAt = &at
		case model.JobStatusOnSite:
			at := now
			job.OnSiteAt = &at
		case model.JobStatusCompleted:
			at := now
			job.CompletedAt = &at
		case model.JobStatusCanceled:
			job.CancelReason = reason
		case model.JobStatusWaiting:
			if job.Assigned() {
				removedActor = job.AssignedActorID()
				job.ClearAssignment()
			}
		case model.JobStatusAwaitingApproval:
			if reason == "" {
				return apperrors.ValidationField("reason", "a reason is required to request GOA")
			}
			job.GOAReason = reason
			job.GOAApproval = model.Approval{Status: model.ApprovalPending}
		case model.JobStatusUnsuccessful:
			if reason == "" {
				return apperrors.ValidationField("reason", "a reason is required to report unsuccessful")
			}
			job.UnsuccessfulReason = reason
			job.UnsuccessfulApproval = model.Approval{Status: model.ApprovalPending}
		case model.JobStatusRejected:
			job.RejectionReason = reason
			job.GOAApproval.Status = model.ApprovalRejected
		}

		if eta := strings.TrimSpace(params.ETA); eta != "" {
			job.ETA = eta
		}
		job.Status = params.Status
		job.AppendHistory(params.Status, now, historyActor(params.By), reason)

		if removedActor != "" {
			return s.visibility.Recompute(ctx, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if prevStatus == model.JobStatusPendingAcceptance && job.Status != model.JobStatusPendingAcceptance {
		s.timers.Cancel(job.ID)
	}
	if removedActor != "" {
		releaseVehicle(ctx, s.vehicles, s.logger, removedActor)
	}

	s.logger.InfoContext(ctx, "job status updated",
		"job_id", job.ID, "from", prevStatus, "to", job.Status)

	except := []string{}
	if removedActor != "" {
		s.fanout.Targeted(ctx, removedActor, EventJobRemoved, JobRemovedPayload{
			JobID:  job.ID,
			Reason: "unassigned",
		})
		except = append(except, removedActor)
	}
	s.fanout.Broadcast(ctx, job, EventJobUpdated, JobUpdatedPayload{Job: job}, except...)
	return job, nil
}

// ApprovalParams describes an approval decision on a GOA or unsuccessful
// request.
type ApprovalParams struct {
	JobID      string
	ReviewerID string
	// Reason accompanies denials.
	Reason string
}

// ApproveGOA approves a pending gone-on-arrival request, moving the job to
// the GOA status.
func (s *StatusService) ApproveGOA(ctx context.Context, params ApprovalParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.reviewGOA(ctx, params, true)
	s.emit("approve_goa", model.JobStatusGOA, start, err)
	return job, err
}

// DenyGOA denies a pending gone-on-arrival request, moving the job to the
// Rejected status.
func (s *StatusService) DenyGOA(ctx context.Context, params ApprovalParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.reviewGOA(ctx, params, false)
	s.emit("deny_goa", model.JobStatusRejected, start, err)
	return job, err
}

func (s *StatusService) reviewGOA(ctx context.Context, params ApprovalParams, approve bool) (*model.Job, error) {
	reviewer, err := s.directory.GetUser(ctx, params.ReviewerID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanApproveGOA(reviewer) {
		return nil, apperrors.Forbidden("not permitted to review GOA requests")
	}

	job, err := mutateJob(ctx, s.repo, params.JobID, func(ctx context.Context, job *model.Job) error {
		if job.GOAApproval.Status != model.ApprovalPending {
			return apperrors.InvalidState("no pending GOA request")
		}
		now := s.clock.Now()
		at := now
		if approve {
			job.GOAApproval = model.Approval{
				Status:     model.ApprovalApproved,
				ReviewerID: params.ReviewerID,
				ReviewedAt: &at,
			}
			job.Status = model.JobStatusGOA
			job.AppendHistory(model.JobStatusGOA, now, reviewer.Name, "GOA approved")
			return nil
		}
		job.GOAApproval = model.Approval{
			Status:     model.ApprovalRejected,
			ReviewerID: params.ReviewerID,
			ReviewedAt: &at,
		}
		job.Status = model.JobStatusRejected
		if reason := strings.TrimSpace(params.Reason); reason != "" {
			job.RejectionReason = reason
		}
		job.AppendHistory(model.JobStatusRejected, now, reviewer.Name, "GOA denied")
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := EventGOADenied
	if approve {
		event = EventGOAApproved
	}
	s.notifyReview(ctx, job, event, reviewer.Name, params.Reason)
	return job, nil
}

// ApproveUnsuccessful approves a pending unsuccessful report, leaving the
// job in its terminal Unsuccessful status.
func (s *StatusService) ApproveUnsuccessful(ctx context.Context, params ApprovalParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.reviewUnsuccessful(ctx, params, true)
	s.emit("approve_unsuccessful", model.JobStatusUnsuccessful, start, err)
	return job, err
}

// DenyUnsuccessful denies a pending unsuccessful report and forces the job
// to Canceled.
func (s *StatusService) DenyUnsuccessful(ctx context.Context, params ApprovalParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.reviewUnsuccessful(ctx, params, false)
	s.emit("deny_unsuccessful", model.JobStatusCanceled, start, err)
	return job, err
}

func (s *StatusService) reviewUnsuccessful(ctx context.Context, params ApprovalParams, approve bool) (*model.Job, error) {
	reviewer, err := s.directory.GetUser(ctx, params.ReviewerID)
	if err != nil {
		return nil, err
	}
	if !s.gate.CanApproveUnsuccessful(reviewer) {
		return nil, apperrors.Forbidden("not permitted to review unsuccessful reports")
	}

	job, err := mutateJob(ctx, s.repo, params.JobID, func(ctx context.Context, job *model.Job) error {
		if job.UnsuccessfulApproval.Status != model.ApprovalPending {
			return apperrors.InvalidState("no pending unsuccessful report")
		}
		now := s.clock.Now()
		at := now
		if approve {
			job.UnsuccessfulApproval = model.Approval{
				Status:     model.ApprovalApproved,
				ReviewerID: params.ReviewerID,
				ReviewedAt: &at,
			}
			job.Status = model.JobStatusUnsuccessful
			job.AppendHistory(model.JobStatusUnsuccessful, now, reviewer.Name, "unsuccessful approved")
			return nil
		}
		job.UnsuccessfulApproval = model.Approval{
			Status:     model.ApprovalRejected,
			ReviewerID: params.ReviewerID,
			ReviewedAt: &at,
		}
		job.Status = model.JobStatusCanceled
		if reason := strings.TrimSpace(params.Reason); reason != "" {
			job.CancelReason = reason
		}
		job.AppendHistory(model.JobStatusCanceled, now, reviewer.Name, "unsuccessful denied")
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := EventUnsuccessfulDenied
	if approve {
		event = EventUnsuccessfulApproved
	}
	s.notifyReview(ctx, job, event, reviewer.Name, params.Reason)
	return job, nil
}

// notifyReview tells the assigned actor the decision directly and everyone
// else via the generic update.
func (s *StatusService) notifyReview(ctx context.Context, job *model.Job, event, reviewerName, reason string) {
	payload := JobEventPayload{
		JobID:       job.ID,
		OrderNumber: job.OrderNumber,
		Actor:       reviewerName,
		Reason:      strings.TrimSpace(reason),
		At:          s.clock.Now(),
	}
	except := []string{}
	if actor := job.AssignedActorID(); actor != "" {
		s.fanout.Targeted(ctx, actor, event, payload)
		except = append(except, actor)
	}
	s.fanout.Broadcast(ctx, job, EventJobUpdated, JobUpdatedPayload{Job: job}, except...)
}

func (s *StatusService) emit(op string, status model.JobStatus, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitOperation(s.metrics, metrics.OperationMetric{
		Operation: op,
		Status:    string(status),
		Result:    result,
		Duration:  s.clock.Now().Sub(start),
		Err:       err,
	})
}
