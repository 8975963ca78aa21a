package predictor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/arcreliability/engine/compliance"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/trace"
	"github.com/stretchr/testify/require"
)

type scriptedRiskBackend struct {
	name      string
	riskScore float64
	rationale string
	logprobs  []provider.Logprob
}

func (b *scriptedRiskBackend) Name() string { return b.name }

func (b *scriptedRiskBackend) Complete(ctx context.Context, req provider.Request, opts ...provider.Option) (*provider.Response, error) {
	body, _ := json.Marshal(map[string]any{
		"risk_score": b.riskScore,
		"rationale":  b.rationale,
	})
	return &provider.Response{Content: string(body), ModelID: req.Model, Logprobs: b.logprobs}, nil
}

func (b *scriptedRiskBackend) CostPerToken(model string) float64  { return 0 }
func (b *scriptedRiskBackend) DowngradeModel(model string) string { return "" }

func fullyCompliantConfig() compliance.AgentConfig {
	return compliance.AgentConfig{
		HasPIIDetectionTool: true, HasDataProtectionSection: true,
		HasInputValidation: true, HasAccessControl: true, HasEncryptionFlag: true,
		HasAuditLogging: true, HasApprovalWorkflow: true, RetentionPolicySet: true,
		HasEncryptionAtRest: true, HasEncryptionInTransit: true, HasDataClassification: true,
	}
}

func TestPredict_FusesRuleAndLLMScoresByFixedWeights(t *testing.T) {
	backend := &scriptedRiskBackend{
		name: "anthropic", riskScore: 0.2, rationale: "low risk observed",
		logprobs: []provider.Logprob{{Token: "LOW", LogProb: -0.01}, {Token: "HIGH", LogProb: -5.0}},
	}
	adapter := provider.New(provider.Config{}, nil, backend)
	rules, err := compliance.NewEngine()
	require.NoError(t, err)
	eng := New(Config{Backend: "anthropic", Model: "x"}, adapter, rules, nil)

	outputs := []trace.Output{{ID: "o1", Response: "ok", Framework: trace.FrameworkOpenAI}}
	results := []judge.Result{{ScenarioID: "s1", OutputID: "o1", Passed: true, Score: 0.9}}

	pred, err := eng.Predict(context.Background(), "finance", fullyCompliantConfig(), outputs, results)
	require.NoError(t, err)

	want := roundTo3(0.4*pred.Rule.Score + 0.6*pred.LLM.Score)
	require.Equal(t, want, pred.Combined)
	require.Equal(t, RiskLow, pred.RiskLevel)
}

func TestPredict_RiskLevelMonotonicity(t *testing.T) {
	cases := []struct {
		score float64
		want  RiskLevel
	}{
		{0.1, RiskLow}, {0.4, RiskLow},
		{0.41, RiskMedium}, {0.7, RiskMedium},
		{0.71, RiskHigh}, {1.0, RiskHigh},
	}
	for _, c := range cases {
		require.Equal(t, c.want, riskLevelFor(c.score), "score %v", c.score)
	}
}

func TestPredict_LowConfidenceNeverSuppressesOutput(t *testing.T) {
	backend := &scriptedRiskBackend{name: "anthropic", riskScore: 0.5, rationale: "uncertain"}
	adapter := provider.New(provider.Config{}, nil, backend)
	rules, err := compliance.NewEngine()
	require.NoError(t, err)
	eng := New(Config{Backend: "anthropic", Model: "x"}, adapter, rules, nil)

	pred, err := eng.Predict(context.Background(), "finance", compliance.AgentConfig{}, nil, nil)
	require.NoError(t, err)
	require.True(t, pred.LowConfidence)
	require.Greater(t, pred.Combined, 0.0)
}

func TestPredict_DeterministicAtFixedInputs(t *testing.T) {
	backend := &scriptedRiskBackend{
		name: "anthropic", riskScore: 0.3333333, rationale: "stable",
		logprobs: []provider.Logprob{{Token: "LOW", LogProb: -0.02}, {Token: "HIGH", LogProb: -4.0}},
	}
	adapter := provider.New(provider.Config{}, nil, backend)
	rules, err := compliance.NewEngine()
	require.NoError(t, err)
	eng := New(Config{Backend: "anthropic", Model: "x"}, adapter, rules, nil)

	outputs := []trace.Output{{ID: "o1", Response: "ok", Framework: trace.FrameworkAnthropic}}
	results := []judge.Result{{ScenarioID: "s1", OutputID: "o1", Passed: true, Score: 0.8}}

	p1, err := eng.Predict(context.Background(), "finance", fullyCompliantConfig(), outputs, results)
	require.NoError(t, err)
	p2, err := eng.Predict(context.Background(), "finance", fullyCompliantConfig(), outputs, results)
	require.NoError(t, err)
	require.Equal(t, p1.Combined, p2.Combined)
}
