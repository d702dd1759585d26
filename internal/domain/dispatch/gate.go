package dispatch

import (
	"slices"

	"github.com/fleetline/dispatch/internal/domain/model"
)

// Gate is the authorization capability check consumed by the engines before
// they mutate anything. It is a pure policy over directory data; the engines
// never inspect roles directly.
type Gate struct {
	// PlatformVendorID identifies the platform's own top-level vendor.
	// Dispatcher/admin users under this vendor may approve unsuccessful
	// reports on behalf of leadership.
	PlatformVendorID string
}

// CanView reports whether a user may observe a job. Privileged tiers see
// everything; everyone else must be in the job's visibility set.
func (g Gate) CanView(user *model.User, job *model.Job) bool {
	if user == nil || job == nil {
		return false
	}
	if user.Role == model.RoleOwner || user.Role == model.RoleAdmin {
		return true
	}
	return slices.Contains(job.VisibleTo, user.ID)
}

// CanManage reports whether one actor may administer another.
func (g Gate) CanManage(actor, target *model.User) bool {
	if actor == nil || target == nil {
		return false
	}
	switch actor.Role {
	case model.RoleOwner, model.RoleAdmin:
		return true
	case model.RoleRegionalManager, model.RoleDispatcher:
		return actor.VendorID != "" && actor.VendorID == target.VendorID
	}
	return actor.ID == target.ID
}

// CanDelete reports whether a user may hard-delete a canceled job.
func (g Gate) CanDelete(user *model.User) bool {
	if user == nil {
		return false
	}
	return user.Role == model.RoleOwner || user.Role == model.RoleAdmin
}

// CanApproveGOA reports whether a user may approve or deny a GOA request.
// Any operational non-driver identity qualifies.
func (g Gate) CanApproveGOA(user *model.User) bool {
	if user == nil {
		return false
	}
	if user.Role == model.RoleNone || user.Role == model.RoleDriver {
		return false
	}
	return true
}

// CanApproveUnsuccessful reports whether a user may approve or deny an
// unsuccessful report. Restricted to leadership, or dispatcher/admin users
// under the platform's own vendor.
func (g Gate) CanApproveUnsuccessful(user *model.User) bool {
	if user == nil {
		return false
	}
	if user.Role.LeadershipTier() {
		return true
	}
	if user.Role == model.RoleDispatcher || user.Role == model.RoleAdmin {
		return g.PlatformVendorID != "" && user.VendorID == g.PlatformVendorID
	}
	return false
}
