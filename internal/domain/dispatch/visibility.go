package dispatch

import (
	"sort"

	"github.com/fleetline/dispatch/internal/domain/model"
)

// ComputeVisibility returns the set of user ids entitled to observe a job.
//
// The set is always rebuilt from scratch against the current directory
// listing; it is never patched incrementally, so a second call with the same
// inputs yields an identical result. Membership rules:
//
//  1. the job creator;
//  2. the currently assigned actor, if any;
//  3. every active owner or service-provider-tier user;
//  4. every active regional manager whose territory covers the job's
//     service-location state;
//  5. every active dispatcher-capability user sharing a vendor with the
//     creator;
//  6. every active dispatcher-capability user sharing a vendor with any
//     owner or regional manager (dispatchers inherit visibility through
//     leadership, not only through the immediate creator).
//
// The returned slice is sorted for deterministic persistence.
func ComputeVisibility(job *model.Job, users []model.User) []string {
	seen := make(map[string]struct{}, len(users))
	add := func(id string) {
		if id != "" {
			seen[id] = struct{}{}
		}
	}

	add(job.CreatedBy)
	add(job.AssignedActorID())

	var creatorVendor string
	leadershipVendors := make(map[string]struct{})
	for i := range users {
		u := &users[i]
		if u.ID == job.CreatedBy {
			creatorVendor = u.VendorID
		}
		if u.Active && u.Role.LeadershipTier() && u.VendorID != "" {
			leadershipVendors[u.VendorID] = struct{}{}
		}
	}

	for i := range users {
		u := &users[i]
		if !u.Active {
			continue
		}

		switch {
		case u.Role == model.RoleOwner || u.Role.ProviderTier():
			add(u.ID)
		case u.Role == model.RoleRegionalManager && u.CoversState(job.Location.State):
			add(u.ID)
		}

		if !u.CanDispatch() {
			continue
		}
		if creatorVendor != "" && u.VendorID == creatorVendor {
			add(u.ID)
		}
		if _, ok := leadershipVendors[u.VendorID]; ok && u.VendorID != "" {
			add(u.ID)
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
