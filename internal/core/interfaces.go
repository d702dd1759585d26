// Package core defines the ports between the dispatch engines and their
// collaborators: the job store, the user and vehicle directories, the
// notification transport, and the acceptance-timer coordinator. Engines
// depend on these interfaces, never on concrete implementations.
package core

import (
	"context"
	"time"

	"github.com/fleetline/dispatch/internal/domain/model"
)

// JobRepository defines the interface for job record persistence.
//
// Update compares the record's Revision against the stored row and fails
// with a Conflict error when another writer got there first; callers reload
// and re-apply their mutation. This is the serialization point for the
// load → mutate → persist cycle every engine follows.
type JobRepository interface {
	Create(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	Delete(ctx context.Context, id string) error
}

// OrderNumberSource issues the human-readable sequential purchase-order
// numbers. Implementations must guarantee uniqueness under concurrent
// creation.
type OrderNumberSource interface {
	Next(ctx context.Context) (string, error)
}

// UserDirectory is the read-only directory capability the engines consume.
// User CRUD lives elsewhere; the engines only look users up.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	// ListActive returns every active directory entry. The visibility
	// calculator rebuilds the entitlement set from this listing.
	ListActive(ctx context.Context) ([]model.User, error)
}

// VehicleDirectory is the fleet capability the assignment engine consumes.
type VehicleDirectory interface {
	// GetVehicle resolves a vehicle by id or by name.
	GetVehicle(ctx context.Context, ref string) (*model.Vehicle, error)
	// FindBoundTo returns the vehicle currently bound to an actor, or nil.
	FindBoundTo(ctx context.Context, actorID string) (*model.Vehicle, error)
	// FindAvailable returns the first on-duty, unbound vehicle for a vendor,
	// or nil when the vendor has none free.
	FindAvailable(ctx context.Context, vendorID string) (*model.Vehicle, error)
	Bind(ctx context.Context, vehicleID, actorID string) error
	Unbind(ctx context.Context, vehicleID string) error
}

// Publisher delivers an event to a specific user's live sessions.
// Publish is strictly best-effort: it reports success but must never
// propagate a transport failure to the caller.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload any) bool
}

// TimerHandle carries the context a fired acceptance timer needs to detect
// its own staleness against the persisted job record.
type TimerHandle struct {
	JobID    string
	ActorID  string
	ArmedAt  time.Time
	Deadline time.Time
}

// AcceptanceTimers is the coordinator for the bounded accept-or-auto-reject
// window. At most one live timer exists per job id; arming supersedes any
// prior timer for the same id, and cancel is idempotent.
type AcceptanceTimers interface {
	Arm(handle TimerHandle)
	Cancel(jobID string)
}

// Clock abstracts the current time so engines can be tested deterministically.
type Clock interface {
	Now() time.Time
}
