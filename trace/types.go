// Package trace converts heterogeneous raw agent output into the
// canonical NormalisedOutput shape the rest of the engine consumes.
package trace

import "time"

// Framework tags the agent framework a raw record was produced by. The
// enum is open — unrecognised shapes fall back to Generic rather than
// failing.
type Framework string

const (
	FrameworkLangChain  Framework = "langchain"
	FrameworkCrewAI     Framework = "crewai"
	FrameworkOpenAI     Framework = "openai"
	FrameworkAnthropic  Framework = "anthropic"
	FrameworkGeneric    Framework = "generic"
)

// FrameworkCoverage counts outputs by detected framework, summing to
// len(outputs).
func FrameworkCoverage(outputs []Output) map[Framework]int {
	h := make(map[Framework]int, len(outputs))
	for _, o := range outputs {
		h[o.Framework]++
	}
	return h
}

// StepKind categorises one entry in a structured trace.
type StepKind string

const (
	StepReasoning   StepKind = "reasoning"
	StepToolCall    StepKind = "tool_call"
	StepToolResult  StepKind = "tool_result"
)

// Step is one entry in a normalised, ordered trace of agent activity.
type Step struct {
	Kind     StepKind      `json:"kind"`
	Payload  any           `json:"payload,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Metrics carries optional performance data about a single agent run.
type Metrics struct {
	LatencyMS     int64   `json:"latency_ms,omitempty"`
	InputTokens   int     `json:"input_tokens,omitempty"`
	OutputTokens  int     `json:"output_tokens,omitempty"`
	CostUSD       float64 `json:"cost_usd,omitempty"`
}

// Output is the canonical unit fed into evaluation, created by
// Normaliser.NormaliseBatch.
type Output struct {
	// ID identifies this output. NormaliseBatch mints a fresh UUID for
	// each record on every call.
	ID string `json:"id"`

	// Response is the free-text final response. Invariant: non-empty.
	Response string `json:"response"`

	// ScenarioAffinity optionally targets evaluation to a specific scenario id.
	ScenarioAffinity string `json:"scenario_affinity,omitempty"`

	// Framework is the detected source framework, Generic if undetected.
	Framework Framework `json:"framework"`

	// Trace is the optional ordered sequence of intermediate steps.
	Trace []Step `json:"trace,omitempty"`

	// Metrics is optional performance data attached at ingest time.
	Metrics *Metrics `json:"metrics,omitempty"`

	// CreatedAt is a timestamp field that Normaliser leaves unset (zero).
	// Excluded from idempotence comparisons by design (see Equal).
	CreatedAt time.Time `json:"created_at"`
}

// Equal compares ID, Response, ScenarioAffinity, Framework, and the kind
// of each trace step, ignoring CreatedAt, Metrics, and step payloads.
// Since NormaliseBatch mints a fresh ID per call, two normalisations of
// the same record compare equal only once their IDs are cleared.
func (o Output) Equal(other Output) bool {
	if o.ID != other.ID || o.Response != other.Response ||
		o.ScenarioAffinity != other.ScenarioAffinity || o.Framework != other.Framework {
		return false
	}
	if len(o.Trace) != len(other.Trace) {
		return false
	}
	for i := range o.Trace {
		if o.Trace[i].Kind != other.Trace[i].Kind {
			return false
		}
	}
	return true
}

// Record is one raw input item: either a plain string (interpreted as the
// final response) or a mapping with framework-specific shape.
type Record struct {
	// String, when non-empty and Map is nil, is treated as the raw response text.
	String string

	// Map is a framework-shaped record (OpenAI/Anthropic/LangChain/CrewAI/generic).
	Map map[string]any
}

// NewStringRecord wraps a plain-text record.
func NewStringRecord(s string) Record { return Record{String: s} }

// NewMapRecord wraps a structured record.
func NewMapRecord(m map[string]any) Record { return Record{Map: m} }

func (r Record) isMap() bool { return r.Map != nil }
