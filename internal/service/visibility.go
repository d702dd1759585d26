package service

import (
	"context"
	"fmt"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/domain/dispatch"
	"github.com/fleetline/dispatch/internal/domain/model"
)

// VisibilityResolver recomputes a job's visibility set from the live user
// directory. The set is always rebuilt from scratch rather than patched.
type VisibilityResolver struct {
	directory core.UserDirectory
}

// NewVisibilityResolver creates a resolver backed by the given directory.
func NewVisibilityResolver(directory core.UserDirectory) *VisibilityResolver {
	return &VisibilityResolver{directory: directory}
}

// Recompute replaces job.VisibleTo with the current visibility set.
func (r *VisibilityResolver) Recompute(ctx context.Context, job *model.Job) error {
	users, err := r.directory.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	job.VisibleTo = dispatch.ComputeVisibility(job, users)
	return nil
}
