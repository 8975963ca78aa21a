package opserr

// This file registers default recovery hints for the engine's own
// components. init() runs automatically on import so every component has
// sensible fallback guidance registered without explicit wiring.

func init() {
	registerProviderHints()
	registerJudgeHints()
	registerPersistenceHints()
}

func registerProviderHints() {
	Register("provider", CodeRateLimited,
		RecoveryHint{
			Strategy:   StrategyRetryWithBackoff,
			Reason:     "token bucket refills on a fixed interval; backoff and retry within the bounded wait",
			Confidence: 0.8,
			Priority:   1,
		},
	)

	Register("provider", CodeProviderTransient,
		RecoveryHint{
			Strategy:   StrategyRetryWithBackoff,
			Reason:     "network errors and 5xx responses are usually transient",
			Confidence: 0.7,
			Priority:   1,
		},
		RecoveryHint{
			Strategy:   StrategyDowngradeModel,
			Reason:     "a cheaper model tier may have more available capacity",
			Confidence: 0.4,
			Priority:   2,
		},
	)

	Register("provider", CodeCostCeiling,
		RecoveryHint{
			Strategy:   StrategySkip,
			Reason:     "cost ceiling is a hard stop; no retry can succeed without raising the ceiling",
			Confidence: 1.0,
			Priority:   1,
		},
	)
}

func registerJudgeHints() {
	Register("judge", CodeJudgementMalformed,
		RecoveryHint{
			Strategy:   StrategyRetry,
			Reason:     "a tighter prompt reiterating the required JSON shape often resolves one-off malformed output",
			Confidence: 0.6,
			Priority:   1,
		},
		RecoveryHint{
			Strategy:   StrategySkip,
			Reason:     "after the retry budget is exhausted the scenario is recorded as a sentinel failure, not retried further",
			Confidence: 1.0,
			Priority:   2,
		},
	)

	Register("judge", CodeProviderTransient,
		RecoveryHint{
			Strategy:   StrategyFallbackFastTrack,
			Reason:     "a partial batch failure falls back to the fast track for the affected items",
			Confidence: 0.75,
			Priority:   1,
		},
	)
}

func registerPersistenceHints() {
	Register("store", CodePersistenceWrite,
		RecoveryHint{
			Strategy:   StrategyRetryWithBackoff,
			Reason:     "disk or etcd contention is usually short-lived",
			Confidence: 0.5,
			Priority:   1,
		},
	)
}
