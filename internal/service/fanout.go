package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/domain/model"
	apperrors "github.com/fleetline/dispatch/internal/errors"
	"github.com/fleetline/dispatch/internal/observability/statsd"
)

// Fanout distributes job events to the users a job is visible to. Delivery
// is best effort: a miss is logged and counted, never surfaced to the
// operation that triggered it.
type Fanout struct {
	publisher core.Publisher
	logger    *slog.Logger
	metrics   statsd.Sink
}

// FanoutOptions configures a Fanout.
type FanoutOptions struct {
	Publisher core.Publisher
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// NewFanout creates a Fanout with the given options.
func NewFanout(opts FanoutOptions) (*Fanout, error) {
	if opts.Publisher == nil {
		return nil, apperrors.Validation("publisher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		publisher: opts.Publisher,
		logger:    logger.With("component", "fanout"),
		metrics:   opts.Metrics,
	}, nil
}

// Targeted sends a single event to one user.
func (f *Fanout) Targeted(ctx context.Context, userID, event string, payload any) {
	if userID == "" {
		return
	}
	if !f.publisher.Publish(ctx, userID, event, payload) {
		f.logger.WarnContext(ctx, "targeted notification not delivered",
			"user_id", userID, "event", event)
	}
	f.count(event)
}

// Broadcast sends an event to every user in the job's visibility set,
// skipping ids in except. Recipients already covered by a more specific
// targeted event are passed in except by the caller.
func (f *Fanout) Broadcast(ctx context.Context, job *model.Job, event string, payload any, except ...string) {
	delivered := 0
	for _, userID := range job.VisibleTo {
		if slices.Contains(except, userID) {
			continue
		}
		if f.publisher.Publish(ctx, userID, event, payload) {
			delivered++
		}
	}
	f.logger.DebugContext(ctx, "broadcast complete",
		"job_id", job.ID, "event", event,
		"recipients", len(job.VisibleTo), "delivered", delivered)
	f.count(event)
}

func (f *Fanout) count(event string) {
	if f.metrics == nil {
		return
	}
	f.metrics.Count("dispatch.event_fanout", 1, map[string]string{"event": event})
}
