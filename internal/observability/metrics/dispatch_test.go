package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fleetline/dispatch/internal/errors"
)

// recordingSink captures emissions for assertion.
type recordingSink struct {
	counts  []recorded
	timings []recorded
}

type recorded struct {
	name  string
	value int64
	tags  map[string]string
}

func (s *recordingSink) Count(name string, value int64, tags map[string]string) {
	s.counts = append(s.counts, recorded{name: name, value: value, tags: tags})
}

func (s *recordingSink) Gauge(string, float64, map[string]string) {}

func (s *recordingSink) Timing(name string, value time.Duration, tags map[string]string) {
	s.timings = append(s.timings, recorded{name: name, value: int64(value), tags: tags})
}

func TestEmitOperationSuccess(t *testing.T) {
	sink := &recordingSink{}

	EmitOperation(sink, OperationMetric{
		Operation: "assign",
		Result:    ResultSuccess,
		Duration:  120 * time.Millisecond,
	})

	require.Len(t, sink.counts, 1)
	c := sink.counts[0]
	assert.Equal(t, "dispatch.operation", c.name)
	assert.Equal(t, map[string]string{"operation": "assign", "result": ResultSuccess}, c.tags)

	require.Len(t, sink.timings, 1)
	assert.Equal(t, "dispatch.operation_duration", sink.timings[0].name)
	assert.Equal(t, c.tags, sink.timings[0].tags, "timing carries the same tags")
}

func TestEmitOperationErrorClass(t *testing.T) {
	sink := &recordingSink{}

	EmitOperation(sink, OperationMetric{
		Operation: "update_status",
		Status:    "canceled",
		Result:    ResultError,
		Err:       apperrors.Conflict("revision mismatch"),
	})

	require.Len(t, sink.counts, 1)
	tags := sink.counts[0].tags
	assert.Equal(t, "update_status", tags["operation"])
	assert.Equal(t, "canceled", tags["status"])
	assert.Equal(t, "app_conflict", tags["error_class"])
	assert.Empty(t, sink.timings, "no timing without a duration")
}

func TestEmitOperationNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitOperation(nil, OperationMetric{Operation: "assign", Result: ResultSuccess})
	})
}

func TestEmitTimerOutcome(t *testing.T) {
	sink := &recordingSink{}

	EmitTimerOutcome(sink, TimerStale, "superseded_callback")
	EmitTimerOutcome(sink, TimerFired, "")

	require.Len(t, sink.counts, 2)
	assert.Equal(t, "dispatch.acceptance_timer", sink.counts[0].name)
	assert.Equal(t, map[string]string{"outcome": TimerStale, "reason": "superseded_callback"}, sink.counts[0].tags)
	assert.Equal(t, map[string]string{"outcome": TimerFired}, sink.counts[1].tags)
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))

	src := map[string]string{"a": "1"}
	clone := CloneTags(src)
	clone["a"] = "2"
	assert.Equal(t, "1", src["a"])
}
