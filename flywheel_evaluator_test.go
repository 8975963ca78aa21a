package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/pattern"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/scenario"
	"github.com/arcreliability/engine/store"
	"github.com/arcreliability/engine/trace"
)

// keywordBackend fails the judgement unless the response contains a
// magic word, letting a test-level improvement strategy "fix" the
// output between flywheel iterations and observe the pass rate move.
type keywordBackend struct {
	keyword string
}

func (b *keywordBackend) Name() string { return "test-backend" }

func (b *keywordBackend) Complete(ctx context.Context, req provider.Request, opts ...provider.Option) (*provider.Response, error) {
	var prompt string
	for _, m := range req.Messages {
		prompt += m.Content
	}
	passed := len(prompt) > 0 && containsWord(prompt, b.keyword)
	body, _ := json.Marshal(map[string]any{
		"passed":   passed,
		"score":    map[bool]float64{true: 0.95, false: 0.1}[passed],
		"feedback": "missing required disclosure: " + b.keyword,
		"evidence": []string{},
		"reward":   0.0,
	})
	return &provider.Response{Content: string(body), ModelID: req.Model}, nil
}

func (b *keywordBackend) CostPerToken(model string) float64  { return 0 }
func (b *keywordBackend) DowngradeModel(model string) string { return "" }

func containsWord(haystack, word string) bool {
	for i := 0; i+len(word) <= len(haystack); i++ {
		if haystack[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

func TestFlywheelEvaluator_ImprovementStrategyRewritesFailingOutputsBetweenIterations(t *testing.T) {
	backend := &keywordBackend{keyword: "DISCLOSED"}
	adapter := provider.New(provider.Config{}, nil, backend)
	judgeEng := judge.New(judge.Config{Backend: "test-backend", Model: "x"}, adapter, nil)

	bundle := &scenario.Bundle{
		Domain:  "finance",
		Version: "v1",
		Scenarios: []scenario.Scenario{{
			ID:                "s1",
			Name:               "must disclose fee",
			Severity:           scenario.SeverityHigh,
			Category:           "disclosure",
			TestType:           scenario.TestNegative,
			ExpectedBehaviour:  "response must disclose the fee",
			FailureIndicators:  []string{"hidden fee"},
		}},
	}
	outputs := []trace.Output{{ID: "o1", Response: "the fee is not mentioned here"}}

	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	eventLog, err := store.OpenEventLog(logPath)
	require.NoError(t, err)
	defer eventLog.Close()

	ledger := store.NewCostLedger("run-1", 0, eventLog)
	bank := pattern.New(nil)

	evaluator := &flywheelEvaluator{
		judgeEng: judgeEng,
		bank:     bank,
		domain:   "finance",
		bundle:   bundle,
		outputs:  outputs,
		eventLog: eventLog,
		ledger:   ledger,
	}

	first, err := evaluator.Evaluate(context.Background(), []string{"disclosure"}, curriculum.ImprovementStrategy{})
	require.NoError(t, err)
	require.Equal(t, 0.0, first.OverallPassRate)

	appendDisclosure := func(outputs []string, feedback []string) []string {
		out := make([]string, len(outputs))
		for i := range outputs {
			out[i] = outputs[i] + " DISCLOSED"
		}
		return out
	}
	strategy := curriculum.ImprovementStrategy{FocusArea: "disclosure", Apply: appendDisclosure}

	second, err := evaluator.Evaluate(context.Background(), []string{"disclosure"}, strategy)
	require.NoError(t, err)
	require.Equal(t, 1.0, second.OverallPassRate)
	require.Contains(t, evaluator.outputs[0].Response, "DISCLOSED")
}

func TestFlywheelEvaluator_NilApplyLeavesOutputsUntouched(t *testing.T) {
	backend := &keywordBackend{keyword: "DISCLOSED"}
	adapter := provider.New(provider.Config{}, nil, backend)
	judgeEng := judge.New(judge.Config{Backend: "test-backend", Model: "x"}, adapter, nil)

	bundle := &scenario.Bundle{
		Domain:  "finance",
		Version: "v1",
		Scenarios: []scenario.Scenario{{
			ID:                 "s1",
			Name:               "must disclose fee",
			Severity:           scenario.SeverityHigh,
			Category:           "disclosure",
			TestType:           scenario.TestNegative,
			ExpectedBehaviour:  "response must disclose the fee",
			FailureIndicators:  []string{"hidden fee"},
		}},
	}
	outputs := []trace.Output{{ID: "o1", Response: "no disclosure here"}}

	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	eventLog, err := store.OpenEventLog(logPath)
	require.NoError(t, err)
	defer eventLog.Close()

	ledger := store.NewCostLedger("run-1", 0, eventLog)
	bank := pattern.New(nil)

	evaluator := &flywheelEvaluator{
		judgeEng: judgeEng,
		bank:     bank,
		domain:   "finance",
		bundle:   bundle,
		outputs:  outputs,
		eventLog: eventLog,
		ledger:   ledger,
	}

	_, err = evaluator.Evaluate(context.Background(), []string{"disclosure"}, curriculum.ImprovementStrategy{})
	require.NoError(t, err)

	second, err := evaluator.Evaluate(context.Background(), []string{"disclosure"}, curriculum.ImprovementStrategy{FocusArea: "disclosure"})
	require.NoError(t, err)
	require.Equal(t, 0.0, second.OverallPassRate)
	require.Equal(t, "no disclosure here", evaluator.outputs[0].Response)
}
