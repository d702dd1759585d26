// Package metrics defines shared metric conventions for the dispatch engines.
package metrics

import (
	"time"

	obserrors "github.com/fleetline/dispatch/internal/observability/errors"
	"github.com/fleetline/dispatch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Timer outcome constants for acceptance-timer metrics.
const (
	TimerFired      = "fired"
	TimerStale      = "stale"
	TimerSuperseded = "superseded"
	TimerRecovered  = "recovered"
)

// OperationMetric captures one dispatch engine operation for emission.
type OperationMetric struct {
	Operation string
	Status    string
	Result    string
	Duration  time.Duration
	Err       error
}

// EmitOperation emits standardised dispatch operation metrics.
func EmitOperation(sink statsd.Sink, in OperationMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    in.Result,
	}
	if in.Status != "" {
		tags["status"] = in.Status
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("dispatch.operation", 1, tags)

	if in.Duration > 0 {
		sink.Timing("dispatch.operation_duration", in.Duration, CloneTags(tags))
	}
}

// EmitTimerOutcome records what happened when an acceptance timer fired.
func EmitTimerOutcome(sink statsd.Sink, outcome, reason string) {
	if sink == nil {
		return
	}
	tags := map[string]string{"outcome": outcome}
	if reason != "" {
		tags["reason"] = reason
	}
	sink.Count("dispatch.acceptance_timer", 1, tags)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
