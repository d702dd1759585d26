package service

import (
	"time"

	"github.com/fleetline/dispatch/internal/domain/model"
)

// Event names published over the per-user channels.
const (
	EventJobAssigned          = "jobAssigned"
	EventJobUpdated           = "jobUpdated"
	EventJobRemoved           = "jobRemoved"
	EventJobAccepted          = "jobAccepted"
	EventJobRejected          = "jobRejected"
	EventJobAutoRejected      = "jobAutoRejected"
	EventGOAApproved          = "goaApproved"
	EventGOADenied            = "goaDenied"
	EventUnsuccessfulApproved = "unsuccessfulApproved"
	EventUnsuccessfulDenied   = "unsuccessfulDenied"
)

// JobAssignedPayload is delivered to the actor a job was just assigned to.
type JobAssignedPayload struct {
	JobID       string `json:"job_id"`
	OrderNumber string `json:"order_number"`
	ServiceType string `json:"service_type"`
	Address     string `json:"address,omitempty"`
	ETA         string `json:"eta,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

// PriorState is the pre-mutation snapshot attached to updates that undid
// an assignment, so clients can reconcile rows they were showing.
type PriorState struct {
	Status          model.JobStatus `json:"status"`
	AssignedTo      string          `json:"assigned_to,omitempty"`
	AssignedVehicle string          `json:"assigned_vehicle,omitempty"`
}

// JobUpdatedPayload carries the full job document plus an optional prior
// snapshot.
type JobUpdatedPayload struct {
	Job   *model.Job  `json:"job"`
	Prior *PriorState `json:"prior,omitempty"`
}

// JobRemovedPayload tells a client to drop a job from its dashboard.
type JobRemovedPayload struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

// JobEventPayload is the generic envelope for accept/reject/approval events.
type JobEventPayload struct {
	JobID       string    `json:"job_id"`
	OrderNumber string    `json:"order_number"`
	Actor       string    `json:"actor,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

func snapshotPrior(job *model.Job) *PriorState {
	prior := &PriorState{
		Status:          job.Status,
		AssignedVehicle: job.AssignedVehicle,
	}
	if job.AssignedTo != nil {
		prior.AssignedTo = *job.AssignedTo
	}
	return prior
}
