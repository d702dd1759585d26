// Package dispatch holds the pure domain logic of the job assignment core:
// acceptance windows, lifecycle transition rules, visibility calculation,
// and the authorization gate. Nothing in this package touches I/O.
package dispatch

import (
	"errors"
	"time"

	"github.com/fleetline/dispatch/internal/domain/model"
)

// Default acceptance windows. Provider-tier actors run a dispatch desk and
// get a longer window than drivers, who are expected to respond quickly.
const (
	DefaultDriverAcceptWindow   = 2 * time.Minute
	DefaultProviderAcceptWindow = 10 * time.Minute
)

// ErrInvalidAcceptWindow indicates a configured acceptance window is not positive.
var ErrInvalidAcceptWindow = errors.New("acceptance window must be positive")

// AcceptancePolicy resolves how long an assigned actor has to accept a job
// before the assignment is automatically rejected.
type AcceptancePolicy struct {
	driverWindow   time.Duration
	providerWindow time.Duration
}

// NewAcceptancePolicy constructs an AcceptancePolicy. Zero durations fall
// back to the package defaults; negative durations are rejected.
func NewAcceptancePolicy(driverWindow, providerWindow time.Duration) (*AcceptancePolicy, error) {
	if driverWindow < 0 || providerWindow < 0 {
		return nil, ErrInvalidAcceptWindow
	}
	if driverWindow == 0 {
		driverWindow = DefaultDriverAcceptWindow
	}
	if providerWindow == 0 {
		providerWindow = DefaultProviderAcceptWindow
	}
	return &AcceptancePolicy{
		driverWindow:   driverWindow,
		providerWindow: providerWindow,
	}, nil
}

// WindowFor returns the acceptance window for an actor with the given role.
func (p *AcceptancePolicy) WindowFor(role model.Role) time.Duration {
	if p == nil {
		return DefaultDriverAcceptWindow
	}
	if role.ProviderTier() {
		return p.providerWindow
	}
	return p.driverWindow
}

// DeadlineFor returns the acceptance deadline for an actor assigned at the
// given instant.
func (p *AcceptancePolicy) DeadlineFor(role model.Role, assignedAt time.Time) time.Time {
	return assignedAt.Add(p.WindowFor(role))
}
