// Package redis provides Redis-based adapters for the dispatch system.
package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetline/dispatch/internal/core"
	"github.com/fleetline/dispatch/internal/observability/statsd"
)

// publishTimeout bounds a single publish so a slow broker cannot stall the
// mutating operation that triggered the notification.
const publishTimeout = 2 * time.Second

// Envelope is the wire format delivered to a user's session channel. The
// realtime gateway subscribed to the channel forwards the payload to every
// live session for the user.
type Envelope struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

// Publisher delivers events to per-user Redis pub/sub channels. Publish is
// strictly best-effort: every failure path is caught, logged, and reported
// as a false return value, never an error.
type Publisher struct {
	client  redis.UniversalClient
	prefix  string
	logger  *slog.Logger
	metrics statsd.Sink
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Client  redis.UniversalClient // Required: redis connection
	Prefix  string                // Optional: channel prefix, defaults to "user:"
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink
}

// NewPublisher creates a Publisher.
func NewPublisher(opts PublisherOptions) *Publisher {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "user:"
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "notification_publisher")
	}
	return &Publisher{
		client:  opts.Client,
		prefix:  prefix,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

var _ core.Publisher = (*Publisher)(nil)

// Channel returns the pub/sub channel name for a user id.
func (p *Publisher) Channel(userID string) string {
	return p.prefix + userID + ":events"
}

// Publish sends one event to the user's channel and reports delivery to the
// broker. It never returns an error; notification is advisory relative to
// the state mutation that triggered it.
func (p *Publisher) Publish(ctx context.Context, userID, event string, payload any) bool {
	if userID == "" || p.client == nil {
		return false
	}

	data, err := json.Marshal(Envelope{
		Event:   event,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		p.logFailure(ctx, userID, event, err)
		return false
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.client.Publish(pubCtx, p.Channel(userID), data).Err(); err != nil {
		p.logFailure(ctx, userID, event, err)
		return false
	}

	if p.metrics != nil {
		p.metrics.Count("dispatch.notify_published", 1, map[string]string{"event": event})
	}
	return true
}

func (p *Publisher) logFailure(ctx context.Context, userID, event string, err error) {
	if p.metrics != nil {
		p.metrics.Count("dispatch.notify_failed", 1, map[string]string{"event": event})
	}
	if p.logger != nil {
		p.logger.WarnContext(ctx, "notification publish failed",
			"user_id", userID,
			"event", event,
			"error", err,
		)
	}
}
