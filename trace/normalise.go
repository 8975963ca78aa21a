package trace

import (
	"fmt"
	"log/slog"

	"github.com/arcreliability/engine/input"
	"github.com/arcreliability/engine/opserr"
	"github.com/google/uuid"
)

// NewNormalisationError builds the opserr.Error for an unparsable record.
// Per the core spec, the normaliser fails loudly rather than inventing
// content: this is returned, never swallowed.
func NewNormalisationError(reason string, record any) *opserr.Error {
	return opserr.New("trace", "normalise", opserr.CodeInputUnparsable, reason).
		WithDetails(map[string]any{"record": fmt.Sprintf("%v", record)})
}

// Normaliser converts raw records into canonical Output values. It is pure
// and restartable: no I/O beyond reading its input slice.
type Normaliser struct {
	logger *slog.Logger
}

// New creates a Normaliser. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Normaliser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normaliser{logger: logger}
}

// NormaliseBatch converts a list of raw records into NormalisedOutputs.
// It stops at the first unparsable record — normalisation failures are
// never silent.
func (n *Normaliser) NormaliseBatch(records []Record) ([]Output, error) {
	outputs := make([]Output, 0, len(records))
	for i, r := range records {
		out, err := n.normaliseOne(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (n *Normaliser) normaliseOne(r Record) (Output, error) {
	fw := DetectFramework(r)

	response, err := extractResponse(r, fw)
	if err != nil {
		return Output{}, err
	}
	if response == "" {
		return Output{}, NewNormalisationError("normalised response text is empty", r)
	}

	out := Output{
		ID:        uuid.NewString(),
		Response:  response,
		Framework: fw,
	}

	if r.isMap() {
		out.ScenarioAffinity = input.GetString(r.Map, "scenario_id", "")
		if m := extractMetrics(r.Map); m != nil {
			out.Metrics = m
		}
		if steps := extractTrace(r.Map); steps != nil {
			out.Trace = steps
		}
	}

	return out, nil
}

// extractResponse picks the canonical response string per detected
// framework. Extraction failure when the required field exists but is
// malformed is fatal, matching the core spec's "fail loudly" contract.
func extractResponse(r Record, fw Framework) (string, error) {
	if !r.isMap() {
		return r.String, nil
	}
	m := r.Map

	switch fw {
	case FrameworkLangChain:
		if v, ok := m["output"]; ok {
			s, ok := v.(string)
			if !ok {
				return "", NewNormalisationError("langchain record has non-string output field", r)
			}
			return s, nil
		}
		return "", NewNormalisationError("langchain record missing output field", r)

	case FrameworkCrewAI:
		if v, ok := m["crew_output"]; ok {
			s, ok := v.(string)
			if !ok {
				return "", NewNormalisationError("crewai record has non-string crew_output field", r)
			}
			return s, nil
		}
		if v, ok := m["tasks_output"]; ok {
			list, ok := v.([]any)
			if !ok || len(list) == 0 {
				return "", NewNormalisationError("crewai record has empty or malformed tasks_output", r)
			}
			last, ok := list[len(list)-1].(string)
			if !ok {
				return "", NewNormalisationError("crewai tasks_output entries must be strings", r)
			}
			return last, nil
		}
		return "", NewNormalisationError("crewai record missing crew_output/tasks_output", r)

	case FrameworkOpenAI:
		choices, _ := m["choices"].([]any)
		if len(choices) == 0 {
			return "", NewNormalisationError("openai record has empty choices", r)
		}
		first, ok := choices[0].(map[string]any)
		if !ok {
			return "", NewNormalisationError("openai record choices[0] is not an object", r)
		}
		message, ok := first["message"].(map[string]any)
		if !ok {
			return "", NewNormalisationError("openai record choices[0].message is not an object", r)
		}
		content, ok := message["content"].(string)
		if !ok {
			return "", NewNormalisationError("openai record choices[0].message.content is not a string", r)
		}
		return content, nil

	case FrameworkAnthropic:
		content, ok := m["content"].(string)
		if ok {
			return content, nil
		}
		// Anthropic content blocks can arrive as a list of {"type","text"} objects.
		if blocks, ok := m["content"].([]any); ok {
			text := ""
			for _, b := range blocks {
				block, ok := b.(map[string]any)
				if !ok {
					continue
				}
				if t, ok := block["text"].(string); ok {
					text += t
				}
			}
			if text == "" {
				return "", NewNormalisationError("anthropic record content blocks contain no text", r)
			}
			return text, nil
		}
		return "", NewNormalisationError("anthropic record content field is malformed", r)

	default:
		for _, key := range []string{"response", "output", "text", "content"} {
			if s := input.GetString(m, key, ""); s != "" {
				return s, nil
			}
		}
		return "", NewNormalisationError("generic record has no recognised response field", r)
	}
}

func extractMetrics(m map[string]any) *Metrics {
	raw, ok := m["performance_metrics"].(map[string]any)
	if !ok {
		return nil
	}
	return &Metrics{
		LatencyMS:    int64(input.GetInt(raw, "latency_ms", 0)),
		InputTokens:  input.GetInt(raw, "input_tokens", 0),
		OutputTokens: input.GetInt(raw, "output_tokens", 0),
		CostUSD:      input.GetFloat64(raw, "cost_usd", 0),
	}
}

func extractTrace(m map[string]any) []Step {
	raw, ok := m["trace"].([]any)
	if !ok {
		return nil
	}
	steps := make([]Step, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		steps = append(steps, Step{
			Kind:    StepKind(input.GetString(entry, "kind", string(StepReasoning))),
			Payload: entry["payload"],
		})
	}
	return steps
}
