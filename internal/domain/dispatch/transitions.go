package dispatch

import (
	"github.com/fleetline/dispatch/internal/domain/model"
)

// ValidateTransition checks whether a job may move from one lifecycle status
// to another. It returns a non-nil reason string when the transition is not
// allowed; callers wrap it in an InvalidTransition error.
//
// The table is deliberately permissive: dispatchers correct job state by hand
// in the field, so most operational moves are legal. The hard rules are:
//   - terminal states are final;
//   - a GOA request (awaiting_approval) is only reachable from on_site.
func ValidateTransition(from, to model.JobStatus) (string, bool) {
	if !to.Valid() {
		return "unknown target status", false
	}
	if from.Terminal() {
		return "job is in a terminal state", false
	}
	if to == model.JobStatusAwaitingApproval && from != model.JobStatusOnSite {
		return "goa may only be requested from on_site", false
	}
	return "", true
}
