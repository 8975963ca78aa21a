package judge

// BatchQuality classifies the outcome of one batch-track submission
// before the engine decides how much of it to fall back to fast-track.
type BatchQuality string

const (
	// BatchFull means every job in the batch returned a parseable
	// response: no fallback needed.
	BatchFull BatchQuality = "full"
	// BatchPartial means some jobs failed or returned unparseable
	// output; only those items fall back to fast-track.
	BatchPartial BatchQuality = "partial"
	// BatchEmpty means the batch produced no usable results at all.
	BatchEmpty BatchQuality = "empty"
	// BatchSuspect means the batch nominally succeeded but its scores
	// are anomalous enough (every item identical, a classic sign of a
	// stuck or echoed provider response) that none of it should be
	// trusted — the whole batch falls back to fast-track instead of
	// just the explicitly failed items.
	BatchSuspect BatchQuality = "suspect"
)

// classifyBatch assesses a completed batch-track submission, given how
// many jobs produced a usable Result versus how many need fast-track
// fallback.
func classifyBatch(succeeded, failed int, results []Result) BatchQuality {
	total := succeeded + failed
	if total == 0 || succeeded == 0 {
		return BatchEmpty
	}
	if failed > 0 {
		return BatchPartial
	}
	if suspectScores(results) {
		return BatchSuspect
	}
	return BatchFull
}

// suspectScores flags a batch where every succeeded result carries the
// exact same score: a provider returning one cached/echoed completion
// for every job in the batch rather than judging each independently.
func suspectScores(results []Result) bool {
	if len(results) < 3 {
		return false
	}
	first := results[0].Score
	for _, r := range results[1:] {
		if r.Score != first {
			return false
		}
	}
	return true
}
