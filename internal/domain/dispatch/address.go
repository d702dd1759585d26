package dispatch

import (
	"strings"

	"github.com/fleetline/dispatch/internal/domain/model"
)

// DisplayAddress derives the single-line display string for a structured
// location. The string is never stored independently of its source fields;
// every structured update re-derives it through this function so the two
// representations cannot drift.
func DisplayAddress(loc model.Location) string {
	parts := make([]string, 0, 4)
	if s := strings.TrimSpace(loc.Street); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(loc.City); s != "" {
		parts = append(parts, s)
	}
	stateZip := strings.TrimSpace(strings.TrimSpace(loc.State) + " " + strings.TrimSpace(loc.Zip))
	if stateZip != "" {
		parts = append(parts, stateZip)
	}
	if s := strings.TrimSpace(loc.Country); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}
