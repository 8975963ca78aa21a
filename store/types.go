// Package store is the persistence layer (C9): an append-only
// JSON-lines event log, a keyed curriculum-checkpoint store, and the
// final run report writer. No database is required — any store
// exposing append-only byte streams plus keyed puts suffices.
package store

import "time"

// EventKind tags one record in the append-only event log.
type EventKind string

const (
	EventJudgement  EventKind = "judgement"
	EventPrediction EventKind = "prediction"
	EventCheckpoint EventKind = "checkpoint"
	EventCost       EventKind = "cost"
)

// Event is one append-only log record. Payload carries the kind-specific
// body (a judge.Result, predictor.Prediction, curriculum.State snapshot,
// or a CostEvent). It is marshalled together with the event, and decoding
// an Event yields generic JSON values for it, so reads never need this
// package to know every upstream type.
type Event struct {
	Kind      EventKind   `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CostEvent records one cost-accounting transition, enough to
// reconstruct the cumulative-cost invariant independently of the
// in-memory provider adapter.
type CostEvent struct {
	RunID         string  `json:"run_id"`
	DeltaUSD      float64 `json:"delta_usd"`
	CumulativeUSD float64 `json:"cumulative_usd"`
	Reason        string  `json:"reason"`
}
