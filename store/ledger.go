package store

import (
	"sync"

	"github.com/arcreliability/engine/opserr"
)

// CostLedger enforces the cost-ceiling invariant at the persistence
// boundary: no run persists a judgement whose cumulative accounted cost
// exceeds the configured ceiling. This is independent of (and a
// backstop for) the provider adapter's own pre-call ceiling check —
// the adapter can only see cost it already knows about; the ledger is
// the single source of truth for what has actually been written.
type CostLedger struct {
	mu         sync.Mutex
	ceilingUSD float64
	spentUSD   float64
	log        *EventLog
	runID      string
}

// NewCostLedger constructs a ledger bound to a run and, optionally, an
// event log that cost transitions are appended to.
func NewCostLedger(runID string, ceilingUSD float64, log *EventLog) *CostLedger {
	return &CostLedger{runID: runID, ceilingUSD: ceilingUSD, log: log}
}

// Record accounts for an additional cost delta. It returns
// CodeCostCeiling without mutating spentUSD if the delta would push
// cumulative spend past the ceiling, so a rejected record never gets
// silently half-applied.
func (l *CostLedger) Record(deltaUSD float64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ceilingUSD > 0 && l.spentUSD+deltaUSD > l.ceilingUSD {
		return opserr.New("store", "record_cost", opserr.CodeCostCeiling,
			"recording this cost would exceed the run's cost ceiling").
			WithDetails(map[string]any{
				"ceiling_usd": l.ceilingUSD,
				"spent_usd":   l.spentUSD,
				"delta_usd":   deltaUSD,
			})
	}

	l.spentUSD += deltaUSD
	if l.log != nil {
		return l.log.Append(EventCost, CostEvent{
			RunID: l.runID, DeltaUSD: deltaUSD, CumulativeUSD: l.spentUSD, Reason: reason,
		})
	}
	return nil
}

// Spent returns the cumulative accounted cost so far.
func (l *CostLedger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spentUSD
}
