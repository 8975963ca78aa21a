package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcreliability/engine/trace"
)

func TestRunSpanAttributes_ReflectsRunOptions(t *testing.T) {
	opts := RunOptions{
		RunID:       "r1",
		Domain:      "finance",
		Version:     "v2",
		Records:     []trace.Record{trace.NewStringRecord("a"), trace.NewStringRecord("b")},
		RunFlywheel: true,
	}

	attrs := runSpanAttributes(opts)

	byKey := make(map[string]any, len(attrs))
	for _, a := range attrs {
		byKey[string(a.Key)] = a.Value.AsInterface()
	}

	assert.Equal(t, "r1", byKey["run.id"])
	assert.Equal(t, "finance", byKey["run.domain"])
	assert.Equal(t, "v2", byKey["run.version"])
	assert.Equal(t, int64(2), byKey["run.record_count"])
	assert.Equal(t, true, byKey["run.flywheel"])
}

func TestTracer_ReturnsNonNilTracer(t *testing.T) {
	assert.NotNil(t, tracer())
}
