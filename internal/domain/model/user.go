package model

import (
	"strings"
)

// Role is a user's primary role in the directory.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Role string

const (
	// RoleOwner is the top-tier owner role.
	RoleOwner Role = "owner"
	// RoleAdmin is a platform administrator.
	RoleAdmin Role = "admin"
	// RoleDispatcher creates and manages jobs for a vendor.
	RoleDispatcher Role = "dispatcher"
	// RoleRegionalManager oversees jobs within an assigned set of states.
	RoleRegionalManager Role = "regional_manager"
	// RoleServiceProvider is a towing company operator who receives jobs directly.
	RoleServiceProvider Role = "service_provider"
	// RoleDriver operates a vehicle for a vendor.
	RoleDriver Role = "driver"
	// RoleNone marks accounts with no operational role.
	RoleNone Role = "na"
)

// Valid returns true if the Role is recognized.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleDispatcher, RoleRegionalManager,
		RoleServiceProvider, RoleDriver, RoleNone:
		return true
	}
	return false
}

// ProviderTier returns true for roles that receive jobs as service providers.
// Provider-tier actors get the longer acceptance window.
func (r Role) ProviderTier() bool {
	return r == RoleServiceProvider
}

// LeadershipTier returns true for owner and regional-manager roles.
func (r Role) LeadershipTier() bool {
	return r == RoleOwner || r == RoleRegionalManager
}

// Capability is a normalized secondary ability carried by a user.
//
// The directory boundary flattens whatever shape the upstream identity system
// uses for secondary roles into a CapabilitySet, so engines never branch on
// representation.
type Capability string

const (
	// CapabilityDriver allows a user to be assigned jobs as a driver.
	CapabilityDriver Capability = "driver"
	// CapabilityDispatcher allows a user to create and manage jobs.
	CapabilityDispatcher Capability = "dispatcher"
)

// CapabilitySet is a normalized set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from raw capability strings, dropping
// unrecognized values.
func NewCapabilitySet(raw ...string) CapabilitySet {
	set := make(CapabilitySet, len(raw))
	for _, r := range raw {
		switch Capability(strings.ToLower(strings.TrimSpace(r))) {
		case CapabilityDriver:
			set[CapabilityDriver] = struct{}{}
		case CapabilityDispatcher:
			set[CapabilityDispatcher] = struct{}{}
		}
	}
	return set
}

// Has reports whether the capability is present.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// User is a directory entry as seen by the dispatch engines.
type User struct {
	ID           string        `json:"id"            db:"id"`
	Name         string        `json:"name"          db:"name"`
	Role         Role          `json:"role"          db:"role"`
	Active       bool          `json:"active"        db:"active"`
	OnDuty       bool          `json:"on_duty"       db:"on_duty"`
	VendorID     string        `json:"vendor_id"     db:"vendor_id"`
	RegionStates []string      `json:"region_states" db:"region_states"`
	Capabilities CapabilitySet `json:"capabilities"`
}

// CanDrive returns true when the user can be assigned jobs behind the wheel,
// either through the driver role or a secondary driver capability.
func (u *User) CanDrive() bool {
	return u.Role == RoleDriver || u.Capabilities.Has(CapabilityDriver)
}

// CanDispatch returns true when the user can create and manage jobs.
func (u *User) CanDispatch() bool {
	return u.Role == RoleDispatcher || u.Role == RoleAdmin ||
		u.Capabilities.Has(CapabilityDispatcher)
}

// CoversState reports whether a regional manager's territory includes the
// given state. Matching ignores case and surrounding whitespace.
func (u *User) CoversState(state string) bool {
	want := strings.ToLower(strings.TrimSpace(state))
	if want == "" {
		return false
	}
	for _, s := range u.RegionStates {
		if strings.ToLower(strings.TrimSpace(s)) == want {
			return true
		}
	}
	return false
}
