package predictor

import (
	"context"
	"log/slog"

	"github.com/arcreliability/engine/compliance"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/opserr"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/trace"
)

// Config controls the predictor's provider usage.
type Config struct {
	Backend string
	Model   string

	// Temperature defaults to 0 for deterministic risk estimation.
	Temperature float64
}

func (c Config) withDefaults() Config {
	return c
}

// Engine is the hybrid reliability predictor (C6): a weighted fusion of
// the deterministic compliance rule engine and a calibrated LLM risk
// estimator.
type Engine struct {
	cfg      Config
	adapter  *provider.Adapter
	rules    *compliance.Engine
	logger   *slog.Logger
}

// New constructs a predictor engine.
func New(cfg Config, adapter *provider.Adapter, rules *compliance.Engine, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg.withDefaults(), adapter: adapter, rules: rules, logger: logger}
}

// Predict runs the full C6 algorithm: rule score from C4, an analysis
// digest from outputs+judgements, an LLM risk estimate, weighted fusion,
// and a confidence-gated re-run with an expanded digest when needed.
func (e *Engine) Predict(ctx context.Context, domain string, agentCfg compliance.AgentConfig, outputs []trace.Output, results []judge.Result) (Prediction, error) {
	report, err := e.rules.CheckAll(agentCfg)
	if err != nil {
		return Prediction{}, err
	}

	digest := buildDigest(outputs, results)

	llmScore, rationale, confidence, err := e.estimate(ctx, domain, digest)
	if err != nil {
		return Prediction{}, opserr.New("predictor", "predict", opserr.CodeProviderTransient,
			"risk estimation call failed").WithCause(err)
	}

	lowConfidence := false
	if confidence < confidenceRetryThreshold {
		expanded := digest.expand(results)
		retryScore, retryRationale, retryConfidence, retryErr := e.estimate(ctx, domain, expanded)
		if retryErr == nil {
			llmScore, rationale, confidence = retryScore, retryRationale, retryConfidence
		}
		if confidence < confidenceRetryThreshold {
			lowConfidence = true
		}
	}

	// report.Score measures compliance (1 = fully compliant); the rule
	// component of the fused risk is its complement.
	ruleRisk := 1 - report.Score
	combined := ruleWeight*ruleRisk + llmWeight*llmScore

	violations := make([]string, 0, len(report.Violations))
	for _, v := range report.Violations {
		violations = append(violations, v.Kind)
	}

	return Prediction{
		Combined:  roundTo3(combined),
		RiskLevel: riskLevelFor(combined),
		Rule: RuleComponent{
			Score:      ruleRisk,
			Violations: violations,
			Weight:     ruleWeight,
		},
		LLM: LLMComponent{
			Score:     llmScore,
			Rationale: rationale,
			Weight:    llmWeight,
		},
		Confidence:    confidence,
		LowConfidence: lowConfidence,
		Impact:        businessImpact(combined, report),
	}, nil
}

// estimate issues one risk-estimation call and returns the LLM score,
// rationale, and an overall confidence figure.
func (e *Engine) estimate(ctx context.Context, domain string, d Digest) (score float64, rationale string, confidence float64, err error) {
	temp := e.cfg.Temperature
	req := provider.Request{
		Model: e.cfg.Model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: riskSystemPrompt},
			{Role: provider.RoleUser, Content: composeRiskPrompt(domain, d)},
		},
		Temperature: &temp,
	}

	resp, callErr := e.adapter.Call(ctx, e.cfg.Backend, req, provider.WithLogprobs("RISK_DECISION"))
	if callErr != nil {
		return 0, "", 0, callErr
	}

	parsed, parseErr := parseRiskResponse(resp.Content)
	if parseErr != nil {
		return 0, "", 0, parseErr
	}

	var logprobMargin *float64
	if riskLP, safeLP, ok := findDecisionLogprobs(resp.Logprobs); ok {
		m := calibrateFromLogprobs(riskLP, safeLP)
		logprobMargin = &m
	}

	knownFraction := knownFrameworkFraction(d)
	confidence = overallConfidence(logprobMargin, d.completeness(), knownFraction)

	return parsed.RiskScore, parsed.Rationale, confidence, nil
}

func knownFrameworkFraction(d Digest) float64 {
	total := 0
	unknown := 0
	for fw, count := range d.FrameworkCounts {
		total += count
		if fw == string(trace.FrameworkGeneric) {
			unknown += count
		}
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(unknown)/float64(total)
}

// businessImpact derives a heuristic failure-prevention estimate from
// the combined risk score; no cost delta is estimated without external
// cost-of-failure input.
func businessImpact(combined float64, report compliance.RuleReport) BusinessImpact {
	return BusinessImpact{
		FailurePreventionPct: roundTo3(combined * 100 * (1 - report.Score)),
	}
}

// roundTo3 rounds to 3 decimal places, satisfying the determinism
// contract: identical inputs at temperature=0 must produce a Combined
// score stable to 3 decimals across runs on the same model version.
func roundTo3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
