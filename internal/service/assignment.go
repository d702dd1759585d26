package service

import (
	"context"
	"fmt"
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

// AssignmentService assigns and reassigns jobs to service providers and
// drivers, resolving a vehicle and arming the acceptance window.
type AssignmentService struct {
	repo       core.JobRepository
	directory  core.UserDirectory
	vehicles   core.VehicleDirectory
	timers     core.AcceptanceTimers
	visibility *VisibilityResolver
	fanout     *Fanout
	policy     *dispatch.AcceptancePolicy
	clock      core.Clock
	logger     *slog.Logger
	metrics    statsd.Sink
}

// AssignmentServiceOptions configures an AssignmentService.
type AssignmentServiceOptions struct {
	Repo       core.JobRepository
	Directory  core.UserDirectory
	Vehicles   core.VehicleDirectory
	Timers     core.AcceptanceTimers
	Visibility *VisibilityResolver
	Fanout     *Fanout
	Policy     *dispatch.AcceptancePolicy
	Clock      core.Clock
	Logger     *slog.Logger
	Metrics    statsd.Sink
}

// NewAssignmentService creates an AssignmentService with the given options.
func NewAssignmentService(opts AssignmentServiceOptions) (*AssignmentService, error) {
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
	if opts.Policy == nil {
		return nil, apperrors.Validation("acceptance policy is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentService{
		repo:       opts.Repo,
		directory:  opts.Directory,
		vehicles:   opts.Vehicles,
		timers:     opts.Timers,
		visibility: opts.Visibility,
		fanout:     opts.Fanout,
		policy:     opts.Policy,
		clock:      clock,
		logger:     logger.With("component", "assignment_service"),
		metrics:    opts.Metrics,
	}, nil
}

// AssignParams describes an assignment request.
type AssignParams struct {
	JobID   string
	ActorID string
	// VehicleRef names a specific vehicle by id or name. Empty means reuse
	// the actor's bound vehicle or auto-pick one from their vendor's fleet.
	VehicleRef string
	// PreserveAssignmentClock keeps the existing assignedAt on redispatch
	// instead of restamping it.
	PreserveAssignmentClock bool
	// By labels the history entry with who performed the assignment.
	By string
}

// Assign hands a job to an actor and opens their acceptance window. If the
// job is already held by someone else the previous assignment is archived
// and the new window supersedes the old one.
func (s *AssignmentService) Assign(ctx context.Context, params AssignParams) (*model.Job, error) {
	start := s.clock.Now()
	job, err := s.assign(ctx, params)
	s.emit("assign", start, err)
	return job, err
}

func (s *AssignmentService) assign(ctx context.Context, params AssignParams) (*model.Job, error) {
	actor, err := s.directory.GetUser(ctx, params.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.OnDuty {
		return nil, apperrors.InvalidState("actor is not on duty")
	}
	if !actor.Role.ProviderTier() && !actor.CanDrive() {
		return nil, apperrors.InvalidState("actor cannot take assignments")
	}

	var handle core.TimerHandle
	var reassignedFrom string
	job, err := mutateJob(ctx, s.repo, params.JobID, func(ctx context.Context, job *model.Job) error {
		if job.Status.Terminal() {
			return apperrors.InvalidStatef("job is %s", job.Status)
		}
		now := s.clock.Now()

		vehicle, err := s.resolveVehicle(ctx, actor, params.VehicleRef)
		if err != nil {
			return err
		}

		reassignedFrom = ""
		if prior := job.AssignedActorID(); prior != "" && prior != params.ActorID {
			reassignedFrom = prior
			job.PreviousDrivers = append(job.PreviousDrivers, model.PreviousAssignment{
				ActorID:    prior,
				ActorName:  job.AssignedToName,
				Vehicle:    job.AssignedVehicle,
				AssignedAt: job.AssignedAt,
				ReplacedAt: now,
			})
			job.AcceptedAt = nil
		}

		job.AssignedTo = &params.ActorID
		job.AssignedToName = actor.Name
		if vehicle != nil {
			job.AssignedVehicle = vehicle.Name
		} else {
			job.AssignedVehicle = ""
		}
		if !params.PreserveAssignmentClock || job.AssignedAt == nil {
			at := now
			job.AssignedAt = &at
		}
		if job.FirstAssignedAt == nil {
			first := *job.AssignedAt
			job.FirstAssignedAt = &first
		}
		job.Status = model.JobStatusPendingAcceptance
		job.NeedsAcceptance = true

		deadline := s.policy.DeadlineFor(actor.Role, now)
		job.AutoRejectAt = &deadline
		job.AutoRejectSetAt = &now

		note := fmt.Sprintf("assigned to %s", actor.Name)
		if reassignedFrom != "" {
			note = fmt.Sprintf("reassigned to %s", actor.Name)
		}
		job.AppendHistory(model.JobStatusPendingAcceptance, now, historyActor(params.By), note)

		handle = core.TimerHandle{
			JobID:    job.ID,
			ActorID:  params.ActorID,
			ArmedAt:  now,
			Deadline: deadline,
		}
		if vehicle != nil && vehicle.BoundActorID() != params.ActorID {
			if err := s.vehicles.Bind(ctx, vehicle.ID, params.ActorID); err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "bind vehicle")
			}
		}
		return s.visibility.Recompute(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.timers.Arm(handle)

	s.logger.InfoContext(ctx, "job assigned",
		"job_id", job.ID, "actor_id", params.ActorID,
		"deadline", handle.Deadline, "reassigned_from", reassignedFrom)

	s.fanout.Targeted(ctx, params.ActorID, EventJobAssigned, JobAssignedPayload{
		JobID:       job.ID,
		OrderNumber: job.OrderNumber,
		ServiceType: job.ServiceType,
		Address:     job.DisplayAddress,
		ETA:         job.ETA,
		Deadline:    handle.Deadline.Format(time.RFC3339),
	})
	except := []string{params.ActorID}
	if reassignedFrom != "" {
		s.fanout.Targeted(ctx, reassignedFrom, EventJobRemoved, JobRemovedPayload{
			JobID:  job.ID,
			Reason: "reassigned",
		})
		except = append(except, reassignedFrom)
	}
	s.fanout.Broadcast(ctx, job, EventJobUpdated, JobUpdatedPayload{Job: job}, except...)
	return job, nil
}

// resolveVehicle picks the vehicle for an assignment. The actor's currently
// bound vehicle wins unless a different one was explicitly requested; an
// explicit request must name an on-duty vehicle that is free or already the
// actor's own. With nothing bound and nothing requested, the first free
// on-duty vehicle from the actor's vendor is taken. Drivers must end up
// with a vehicle; provider-tier actors may go without.
func (s *AssignmentService) resolveVehicle(ctx context.Context, actor *model.User, ref string) (*model.Vehicle, error) {
	ref = strings.TrimSpace(ref)

	bound, err := s.vehicles.FindBoundTo(ctx, actor.ID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "look up bound vehicle")
	}
	if bound != nil && (ref == "" || ref == bound.ID || ref == bound.Name) {
		return bound, nil
	}

	if ref != "" {
		vehicle, err := s.vehicles.GetVehicle(ctx, ref)
		if err != nil {
			return nil, err
		}
		if !vehicle.OnDuty {
			return nil, apperrors.InvalidState("requested vehicle is off duty")
		}
		if holder := vehicle.BoundActorID(); holder != "" && holder != actor.ID {
			return nil, apperrors.InvalidState("requested vehicle is in use")
		}
		if bound != nil && bound.ID != vehicle.ID {
			if err := s.vehicles.Unbind(ctx, bound.ID); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "release previous vehicle")
			}
		}
		return vehicle, nil
	}

	vehicle, err := s.vehicles.FindAvailable(ctx, actor.VendorID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "find available vehicle")
	}
	if vehicle == nil {
		if actor.Role.ProviderTier() {
			return nil, nil
		}
		return nil, apperrors.Unavailable("no vehicle available for assignment")
	}
	return vehicle, nil
}

func (s *AssignmentService) emit(op string, start time.Time, err error) {
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

func historyActor(by string) string {
	if strings.TrimSpace(by) == "" {
		return "dispatch"
	}
	return by
}
