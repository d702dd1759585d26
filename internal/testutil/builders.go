// Package testutil provides testing utilities and helpers for the dispatch
// job system.
package testutil

import (
	"time"

	"github.com/fleetline/dispatch/internal/domain/model"
)

// JobBuilder provides a fluent interface for building Job records for testing.
type JobBuilder struct {
	job *model.Job
}

// NewJob creates a JobBuilder with sensible defaults.
func NewJob() *JobBuilder {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &JobBuilder{
		job: &model.Job{
			ID:          "job-1",
			OrderNumber: "00000042",
			ServiceType: "tow",
			CreatedBy:   "dispatcher-1",
			Location: model.Location{
				Street: "500 Main St",
				City:   "Austin",
				State:  "TX",
				Zip:    "78701",
			},
			Status:    model.JobStatusPending,
			CreatedAt: now,
			Revision:  1,
			UpdatedAt: now,
		},
	}
}

// WithID sets the job id.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithStatus sets the job status.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.Status = status
	return b
}

// WithCreator sets the creating user.
func (b *JobBuilder) WithCreator(userID string) *JobBuilder {
	b.job.CreatedBy = userID
	return b
}

// AssignedTo puts the job in pending acceptance for the given actor with a
// deadline relative to the assignment time.
func (b *JobBuilder) AssignedTo(actorID, name string, assignedAt time.Time, window time.Duration) *JobBuilder {
	deadline := assignedAt.Add(window)
	b.job.AssignedTo = &actorID
	b.job.AssignedToName = name
	b.job.AssignedAt = &assignedAt
	if b.job.FirstAssignedAt == nil {
		first := assignedAt
		b.job.FirstAssignedAt = &first
	}
	b.job.AutoRejectAt = &deadline
	b.job.AutoRejectSetAt = &assignedAt
	b.job.NeedsAcceptance = true
	b.job.Status = model.JobStatusPendingAcceptance
	return b
}

// WithVisibleTo sets the visibility set.
func (b *JobBuilder) WithVisibleTo(userIDs ...string) *JobBuilder {
	b.job.VisibleTo = userIDs
	return b
}

// Build returns the job.
func (b *JobBuilder) Build() *model.Job {
	return b.job
}

// UserBuilder provides a fluent interface for building directory users.
type UserBuilder struct {
	user model.User
}

// NewUser creates a UserBuilder with sensible defaults: an active, on-duty
// driver.
func NewUser(id string) *UserBuilder {
	return &UserBuilder{
		user: model.User{
			ID:     id,
			Name:   "User " + id,
			Role:   model.RoleDriver,
			Active: true,
			OnDuty: true,
		},
	}
}

// WithName sets the display name.
func (b *UserBuilder) WithName(name string) *UserBuilder {
	b.user.Name = name
	return b
}

// WithRole sets the role.
func (b *UserBuilder) WithRole(role model.Role) *UserBuilder {
	b.user.Role = role
	return b
}

// WithVendor sets the vendor id.
func (b *UserBuilder) WithVendor(vendorID string) *UserBuilder {
	b.user.VendorID = vendorID
	return b
}

// WithRegionStates sets the covered states.
func (b *UserBuilder) WithRegionStates(states ...string) *UserBuilder {
	b.user.RegionStates = states
	return b
}

// WithCapabilities sets secondary capabilities.
func (b *UserBuilder) WithCapabilities(caps ...string) *UserBuilder {
	b.user.Capabilities = model.NewCapabilitySet(caps...)
	return b
}

// OffDuty marks the user off duty.
func (b *UserBuilder) OffDuty() *UserBuilder {
	b.user.OnDuty = false
	return b
}

// Inactive marks the user inactive.
func (b *UserBuilder) Inactive() *UserBuilder {
	b.user.Active = false
	return b
}

// Build returns the user.
func (b *UserBuilder) Build() model.User {
	return b.user
}
