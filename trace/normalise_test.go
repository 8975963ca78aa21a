package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFramework(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want Framework
	}{
		{"plain string", NewStringRecord("hello"), FrameworkGeneric},
		{"langchain", NewMapRecord(map[string]any{"intermediate_steps": []any{}, "output": "x"}), FrameworkLangChain},
		{"crewai crew_output", NewMapRecord(map[string]any{"crew_output": "x"}), FrameworkCrewAI},
		{"crewai tasks_output", NewMapRecord(map[string]any{"tasks_output": []any{"x"}}), FrameworkCrewAI},
		{"openai", NewMapRecord(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "x"}}},
		}), FrameworkOpenAI},
		{"anthropic", NewMapRecord(map[string]any{"content": "x", "role": "assistant"}), FrameworkAnthropic},
		{"generic map", NewMapRecord(map[string]any{"response": "x"}), FrameworkGeneric},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, DetectFramework(c.rec))
		})
	}
}

func TestNormaliseBatch_AllFrameworks(t *testing.T) {
	n := New(nil)

	records := []Record{
		NewStringRecord("a plain response"),
		NewMapRecord(map[string]any{"intermediate_steps": []any{}, "output": "langchain says hi"}),
		NewMapRecord(map[string]any{"crew_output": "crew says hi"}),
		NewMapRecord(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "openai says hi"}}},
		}),
		NewMapRecord(map[string]any{"content": "anthropic says hi", "role": "assistant"}),
		NewMapRecord(map[string]any{"response": "generic says hi"}),
	}

	outputs, err := n.NormaliseBatch(records)
	require.NoError(t, err)
	require.Len(t, outputs, len(records))

	assert.Equal(t, "a plain response", outputs[0].Response)
	assert.Equal(t, FrameworkGeneric, outputs[0].Framework)

	assert.Equal(t, "langchain says hi", outputs[1].Response)
	assert.Equal(t, FrameworkLangChain, outputs[1].Framework)

	assert.Equal(t, "crew says hi", outputs[2].Response)
	assert.Equal(t, FrameworkCrewAI, outputs[2].Framework)

	assert.Equal(t, "openai says hi", outputs[3].Response)
	assert.Equal(t, FrameworkOpenAI, outputs[3].Framework)

	assert.Equal(t, "anthropic says hi", outputs[4].Response)
	assert.Equal(t, FrameworkAnthropic, outputs[4].Framework)

	assert.Equal(t, "generic says hi", outputs[5].Response)
	assert.Equal(t, FrameworkGeneric, outputs[5].Framework)

	for _, o := range outputs {
		assert.NotEmpty(t, o.ID)
	}
}

func TestNormaliseBatch_FailsLoudlyOnMalformedRequiredField(t *testing.T) {
	n := New(nil)

	_, err := n.NormaliseBatch([]Record{
		NewMapRecord(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": 42}}},
		}),
	})
	require.Error(t, err)
}

func TestNormaliseBatch_FailsOnMissingRequiredField(t *testing.T) {
	n := New(nil)

	_, err := n.NormaliseBatch([]Record{
		NewMapRecord(map[string]any{"intermediate_steps": []any{}}),
	})
	require.Error(t, err)
}

func TestNormaliseIsIdempotentModuloTimestamp(t *testing.T) {
	n := New(nil)
	record := NewMapRecord(map[string]any{"content": "stable text", "role": "assistant"})

	first, err := n.NormaliseBatch([]Record{record})
	require.NoError(t, err)
	second, err := n.NormaliseBatch([]Record{record})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)

	// IDs are freshly minted per call, so compare everything else.
	a, b := first[0], second[0]
	a.ID, b.ID = "", ""
	a.CreatedAt, b.CreatedAt = a.CreatedAt, a.CreatedAt
	assert.True(t, a.Equal(b))
}

func TestExtractMetricsAndTrace(t *testing.T) {
	n := New(nil)
	rec := NewMapRecord(map[string]any{
		"response": "ok",
		"performance_metrics": map[string]any{
			"latency_ms":    120,
			"input_tokens":  10,
			"output_tokens": 20,
			"cost_usd":      0.002,
		},
		"trace": []any{
			map[string]any{"kind": "tool_call", "payload": map[string]any{"name": "search"}},
			map[string]any{"kind": "tool_result", "payload": "found"},
		},
	})

	outputs, err := n.NormaliseBatch([]Record{rec})
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	out := outputs[0]
	require.NotNil(t, out.Metrics)
	assert.Equal(t, int64(120), out.Metrics.LatencyMS)
	assert.Equal(t, 10, out.Metrics.InputTokens)
	assert.Equal(t, 20, out.Metrics.OutputTokens)
	assert.InDelta(t, 0.002, out.Metrics.CostUSD, 1e-9)

	require.Len(t, out.Trace, 2)
	assert.Equal(t, StepToolCall, out.Trace[0].Kind)
	assert.Equal(t, StepToolResult, out.Trace[1].Kind)
}

func TestFrameworkCoverage_SumsToOutputCount(t *testing.T) {
	outputs := []Output{
		{ID: "o1", Framework: FrameworkOpenAI},
		{ID: "o2", Framework: FrameworkOpenAI},
		{ID: "o3", Framework: FrameworkGeneric},
	}
	h := FrameworkCoverage(outputs)
	assert.Equal(t, 2, h[FrameworkOpenAI])
	assert.Equal(t, 1, h[FrameworkGeneric])

	total := 0
	for _, n := range h {
		total += n
	}
	assert.Equal(t, len(outputs), total)
}
