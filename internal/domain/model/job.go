// Package model defines the core data types and structures used throughout the dispatch job system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current lifecycle status of a service job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be assigned.
	JobStatusPending JobStatus = "pending"
	// JobStatusPendingAcceptance indicates a job is assigned and waiting for the actor to accept.
	JobStatusPendingAcceptance JobStatus = "pending_acceptance"
	// JobStatusScheduled indicates a job is created for a future time window.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusDispatched indicates the assigned actor accepted the job.
	JobStatusDispatched JobStatus = "dispatched"
	// JobStatusEnRoute indicates the assigned actor is driving to the service location.
	JobStatusEnRoute JobStatus = "en_route"
	// JobStatusOnSite indicates the assigned actor arrived at the service location.
	JobStatusOnSite JobStatus = "on_site"
	// JobStatusAwaitingApproval indicates a GOA request is pending review.
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	// JobStatusAccepted is kept for historical records written by older clients.
	JobStatusAccepted JobStatus = "accepted"
	// JobStatusCompleted indicates the job finished successfully. Terminal.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusCanceled indicates the job was canceled. Terminal.
	JobStatusCanceled JobStatus = "canceled"
	// JobStatusWaiting indicates the job is parked with no active assignment.
	JobStatusWaiting JobStatus = "waiting"
	// JobStatusRejected indicates an approval request was denied.
	JobStatusRejected JobStatus = "rejected"
	// JobStatusGOA indicates the customer was gone on arrival.
	JobStatusGOA JobStatus = "goa"
	// JobStatusUnsuccessful indicates the job could not be completed. Terminal.
	JobStatusUnsuccessful JobStatus = "unsuccessful"
)

// jobStatuses is the set of recognized statuses.
var jobStatuses = map[JobStatus]struct{}{
	JobStatusPending:           {},
	JobStatusPendingAcceptance: {},
	JobStatusScheduled:         {},
	JobStatusDispatched:        {},
	JobStatusEnRoute:           {},
	JobStatusOnSite:            {},
	JobStatusAwaitingApproval:  {},
	JobStatusAccepted:          {},
	JobStatusCompleted:         {},
	JobStatusCanceled:          {},
	JobStatusWaiting:           {},
	JobStatusRejected:          {},
	JobStatusGOA:               {},
	JobStatusUnsuccessful:      {},
}

// Valid returns true if the JobStatus is a recognized status.
func (s JobStatus) Valid() bool {
	_, ok := jobStatuses[s]
	return ok
}

// Terminal returns true for statuses that end the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCanceled || s == JobStatusUnsuccessful
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

// RejectionType distinguishes how an assignment was rejected.
type RejectionType string

const (
	// RejectionManual records an explicit rejection by the assigned actor.
	RejectionManual RejectionType = "manual-rejection"
	// RejectionAuto records an auto-rejection after the acceptance window lapsed.
	RejectionAuto RejectionType = "auto-rejection"
)

// ApprovalStatus tracks the review state of a GOA or unsuccessful request.
type ApprovalStatus string

const (
	// ApprovalNone indicates no request has been made.
	ApprovalNone ApprovalStatus = ""
	// ApprovalPending indicates a request is awaiting review.
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved indicates the request was approved.
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected indicates the request was denied.
	ApprovalRejected ApprovalStatus = "rejected"
)

// Location is a structured service or dropoff address.
type Location struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country,omitempty"`
}

// Empty returns true when no field of the location is set.
func (l Location) Empty() bool {
	return l.Street == "" && l.City == "" && l.State == "" && l.Zip == "" && l.Country == ""
}

// StatusEvent is one append-only entry in a job's status history.
type StatusEvent struct {
	Status JobStatus `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Note   string    `json:"note,omitempty"`
}

// RejectionEntry records a manual or automatic rejection of an assignment.
// Entries accumulate for the life of the job and are never cleared.
type RejectionEntry struct {
	ActorID   string        `json:"actor_id"`
	ActorName string        `json:"actor_name,omitempty"`
	Reason    string        `json:"reason"`
	Type      RejectionType `json:"type"`
	At        time.Time     `json:"at"`
}

// PreviousAssignment is a snapshot of an actor who was assigned before a
// reassignment replaced them.
type PreviousAssignment struct {
	ActorID    string     `json:"actor_id"`
	ActorName  string     `json:"actor_name,omitempty"`
	Vehicle    string     `json:"vehicle,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	ReplacedAt time.Time  `json:"replaced_at"`
}

// Approval is the review sub-state for GOA and unsuccessful requests.
// It rides on the job record rather than being a separate entity.
type Approval struct {
	Status     ApprovalStatus `json:"status,omitempty"`
	ReviewerID string         `json:"reviewer_id,omitempty"`
	ReviewedAt *time.Time     `json:"reviewed_at,omitempty"`
}

// Job is the central mutable record for a roadside service job.
//
// Mutations always follow load → mutate in memory → persist; the Revision
// field is compared on persist so interleaved writers cannot silently
// overwrite each other.
type Job struct {
	ID          string `json:"id"           db:"id"`
	OrderNumber string `json:"order_number" db:"order_number"`

	ServiceType  string `json:"service_type"`
	VehicleClass string `json:"vehicle_class,omitempty"`
	PaymentType  string `json:"payment_type,omitempty"`

	CreatedBy       string  `json:"created_by"`
	AssignedTo      *string `json:"assigned_to,omitempty"`
	AssignedToName  string  `json:"assigned_to_name,omitempty"`
	AssignedVehicle string  `json:"assigned_vehicle,omitempty"`

	Location       Location  `json:"location"`
	Dropoff        *Location `json:"dropoff,omitempty"`
	DisplayAddress string    `json:"display_address,omitempty"`

	Status JobStatus `json:"status" db:"status"`
	ETA    string    `json:"eta,omitempty"`

	CreatedAt       time.Time  `json:"created_at"                  db:"created_at"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
	FirstAssignedAt *time.Time `json:"first_assigned_at,omitempty"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	AutoRejectAt    *time.Time `json:"auto_reject_at,omitempty"`
	AutoRejectSetAt *time.Time `json:"auto_reject_set_at,omitempty"`
	DispatchedAt    *time.Time `json:"dispatched_at,omitempty"`
	EnRouteAt       *time.Time `json:"en_route_at,omitempty"`
	OnSiteAt        *time.Time `json:"on_site_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	NeedsAcceptance bool `json:"needs_acceptance"`

	CancelReason       string `json:"cancel_reason,omitempty"`
	RejectionReason    string `json:"rejection_reason,omitempty"`
	GOAReason          string `json:"goa_reason,omitempty"`
	UnsuccessfulReason string `json:"unsuccessful_reason,omitempty"`

	History         []StatusEvent        `json:"history"`
	Rejections      []RejectionEntry     `json:"rejections,omitempty"`
	PreviousDrivers []PreviousAssignment `json:"previous_drivers,omitempty"`
	VisibleTo       []string             `json:"visible_to,omitempty"`

	GOAApproval          Approval `json:"goa_approval,omitempty"`
	UnsuccessfulApproval Approval `json:"unsuccessful_approval,omitempty"`

	Revision  int64     `json:"revision"   db:"revision"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Assigned returns true when the job has an active assignment.
func (j *Job) Assigned() bool {
	return j.AssignedTo != nil && *j.AssignedTo != ""
}

// AssignedActorID returns the assigned actor's id, or "" when unassigned.
func (j *Job) AssignedActorID() string {
	if j.AssignedTo == nil {
		return ""
	}
	return *j.AssignedTo
}

// AppendHistory appends one status-history entry. History is append-only;
// entries are never edited or removed.
func (j *Job) AppendHistory(status JobStatus, at time.Time, actor, note string) {
	j.History = append(j.History, StatusEvent{
		Status: status,
		At:     at,
		Actor:  actor,
		Note:   note,
	})
}

// ClearAssignment removes the active assignment fields. The first-assignment
// timestamp and the rejection log are preserved for historical reporting.
func (j *Job) ClearAssignment() {
	j.AssignedTo = nil
	j.AssignedToName = ""
	j.AssignedVehicle = ""
	j.AssignedAt = nil
	j.AutoRejectAt = nil
	j.AutoRejectSetAt = nil
	j.NeedsAcceptance = false
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	ServiceType  string    `json:"service_type"`
	VehicleClass string    `json:"vehicle_class,omitempty"`
	PaymentType  string    `json:"payment_type,omitempty"`
	CreatedBy    string    `json:"created_by"`
	Location     Location  `json:"location"`
	Dropoff      *Location `json:"dropoff,omitempty"`
	ETA          string    `json:"eta,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.ServiceType) == "" {
		return errors.New("service type is required")
	}
	if strings.TrimSpace(r.CreatedBy) == "" {
		return errors.New("creator is required")
	}
	if r.Location.Empty() {
		return errors.New("service location is required")
	}
	return nil
}
