package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
)

// maxMutationAttempts bounds reload-and-retry on optimistic lock conflicts.
const maxMutationAttempts = 3

type mutator func(ctx context.Context, job *model.Job) error

// mutateJob loads a job, applies fn, and persists it. When the write loses
// the revision race the job is reloaded and fn re-applied against the fresh
// document, so mutators must revalidate their preconditions on every call.
func mutateJob(ctx context.Context, repo core.JobRepository, jobID string, fn mutator) (*model.Job, error) {
	for attempt := 1; ; attempt++ {
		job, err := repo.GetByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if err := fn(ctx, job); err != nil {
			return nil, err
		}
		err = repo.Update(ctx, job)
		if err == nil {
			return job, nil
		}
		if !apperrors.IsConflict(err) || attempt >= maxMutationAttempts {
			return nil, err
		}
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// releaseVehicle frees whatever vehicle is bound to the actor. Best effort:
// a directory failure here must not fail the mutation that triggered it.
func releaseVehicle(ctx context.Context, vehicles core.VehicleDirectory, logger *slog.Logger, actorID string) {
	if actorID == "" {
		return
	}
	vehicle, err := vehicles.FindBoundTo(ctx, actorID)
	if err != nil {
		logger.WarnContext(ctx, "could not look up bound vehicle",
			"actor_id", actorID, "error", err)
		return
	}
	if vehicle == nil {
		return
	}
	if err := vehicles.Unbind(ctx, vehicle.ID); err != nil {
		logger.WarnContext(ctx, "could not release vehicle",
			"vehicle_id", vehicle.ID, "actor_id", actorID, "error", err)
	}
}
