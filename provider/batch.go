package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// batchState tracks one in-flight batch's jobs and completed results.
type batchState struct {
	mu      sync.Mutex
	jobs    []BatchJob
	results map[string]BatchResult
	status  BatchStatus
}

// SubmitBatch assembles one batch job per request and dispatches them
// for async execution against backendName. It returns immediately with a
// handle; call Poll to retrieve progress and results.
//
// This is a cost/latency optimisation over Call, not a semantic change:
// every job ultimately produces the same Response shape a synchronous
// Call would.
func (a *Adapter) SubmitBatch(ctx context.Context, backendName string, jobs []BatchJob) (BatchHandle, error) {
	handle := BatchHandle{ID: uuid.NewString()}
	state := &batchState{
		jobs:    jobs,
		results: make(map[string]BatchResult, len(jobs)),
		status:  BatchRunning,
	}

	a.batchesMu.Lock()
	a.batches[handle.ID] = state
	a.batchesMu.Unlock()

	go a.runBatch(ctx, backendName, state)

	return handle, nil
}

func (a *Adapter) runBatch(ctx context.Context, backendName string, state *batchState) {
	var wg sync.WaitGroup
	for _, job := range state.jobs {
		wg.Add(1)
		go func(job BatchJob) {
			defer wg.Done()
			resp, err := a.Call(ctx, backendName, job.Request)
			state.mu.Lock()
			state.results[job.ID] = BatchResult{JobID: job.ID, Response: resp, Err: err}
			state.mu.Unlock()
		}(job)
	}
	wg.Wait()

	state.mu.Lock()
	state.status = BatchCompleted
	state.mu.Unlock()
}

// Poll reports the status of a submitted batch and whatever results are
// available so far. Partial failures are reported per-job, not as a
// failure of the whole batch: the caller (the judge engine) decides
// whether to fall back to the fast track for failed items.
func (a *Adapter) Poll(handle BatchHandle) (BatchStatus, []BatchResult, error) {
	a.batchesMu.Lock()
	state, ok := a.batches[handle.ID]
	a.batchesMu.Unlock()
	if !ok {
		return BatchFailed, nil, nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	results := make([]BatchResult, 0, len(state.results))
	for _, r := range state.results {
		results = append(results, r)
	}
	return state.status, results, nil
}
