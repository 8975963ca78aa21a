package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcreliability/engine/opserr"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/scenario"
	"github.com/arcreliability/engine/trace"
)

// Mode selects which track evaluates a request. ModeAuto defers to the
// |S| <= FastTrackCeiling rule.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeFastTrack  Mode = "fast_track"
	ModeBatchTrack Mode = "batch_track"
)

// Config controls judge engine policy. Zero values fall back to the
// recognised defaults.
type Config struct {
	// FastTrackCeiling is F: |S| <= F selects the fast track. Default 50.
	FastTrackCeiling int

	// FastTrackParallelism is W, the bounded concurrency for fast-track
	// calls. Default 10.
	FastTrackParallelism int

	// VerificationThreshold is τ: judgements with confidence below this
	// are re-run through the verification pass. Default 0.6.
	VerificationThreshold float64

	// Backend/Model name the primary judge call. VerificationBackend/
	// VerificationModel, when set, name a stronger/more expensive model
	// used only for the verification pass.
	Backend             string
	Model               string
	VerificationBackend string
	VerificationModel   string

	// PollInterval bounds how often batch-track jobs are polled.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.FastTrackCeiling <= 0 {
		c.FastTrackCeiling = 50
	}
	if c.FastTrackParallelism <= 0 {
		c.FastTrackParallelism = 10
	}
	if c.VerificationThreshold <= 0 {
		c.VerificationThreshold = defaultVerificationThreshold
	}
	if c.VerificationBackend == "" {
		c.VerificationBackend = c.Backend
	}
	if c.VerificationModel == "" {
		c.VerificationModel = c.Model
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	return c
}

// Engine is the dual-track judge engine.
type Engine struct {
	cfg     Config
	adapter *provider.Adapter
	logger  *slog.Logger
}

// New creates an Engine bound to a provider adapter.
func New(cfg Config, adapter *provider.Adapter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg.withDefaults(), adapter: adapter, logger: logger}
}

// pair is one (scenario, output) unit of work.
type pair struct {
	scenario scenario.Scenario
	output   trace.Output
}

// Evaluate judges every (scenario, output) pair from the scenario and
// output sets, selecting fast or batch track per Config and the forced
// mode override, then returns the stably-ordered results plus the
// aggregate summary including post-hoc bias warnings.
func (e *Engine) Evaluate(ctx context.Context, scenarios []scenario.Scenario, outputs []trace.Output, force Mode) ([]Result, Summary, error) {
	pairs := crossProduct(scenarios, outputs)
	outputByID := make(map[string]trace.Output, len(outputs))
	for _, o := range outputs {
		outputByID[o.ID] = o
	}

	mode := force
	if mode == "" || mode == ModeAuto {
		if len(scenarios) <= e.cfg.FastTrackCeiling {
			mode = ModeFastTrack
		} else {
			mode = ModeBatchTrack
		}
	}

	var results []Result
	var err error
	switch mode {
	case ModeFastTrack:
		results, err = e.runFastTrack(ctx, pairs)
	case ModeBatchTrack:
		results, err = e.runBatchTrack(ctx, pairs)
	default:
		return nil, Summary{}, fmt.Errorf("unknown judge mode %q", mode)
	}
	if err != nil {
		return nil, Summary{}, err
	}

	stableOrder(results)
	summary := summarize(results)
	summary.Warnings = checkBiases(results, outputByID)

	return results, summary, nil
}

func crossProduct(scenarios []scenario.Scenario, outputs []trace.Output) []pair {
	pairs := make([]pair, 0, len(scenarios)*len(outputs))
	for _, s := range scenarios {
		for _, o := range outputs {
			pairs = append(pairs, pair{scenario: s, output: o})
		}
	}
	return pairs
}

// runFastTrack evaluates every pair concurrently with bounded
// parallelism W. Ordering of completion is irrelevant; stableOrder
// restores scenario-id ordering afterward. A fatal error (cost ceiling,
// permanent provider rejection) from any pair cancels the remaining
// in-flight calls and aborts the whole track; ordinary per-scenario
// failures never do.
func (e *Engine) runFastTrack(ctx context.Context, pairs []pair) ([]Result, error) {
	sem := make(chan struct{}, e.cfg.FastTrackParallelism)
	results := make([]Result, len(pairs))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var once sync.Once
	var fatalErr error

	for i, p := range pairs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, p pair) {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := e.evaluateOne(ctx, p)
			if err != nil {
				once.Do(func() {
					fatalErr = err
					cancel()
				})
				return
			}
			results[i] = r
		}(i, p)
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	return results, nil
}

// isFatal reports whether err is an engine-level failure — a tripped
// cost ceiling or a permanent (non-retryable) provider rejection — that
// must propagate and abort the run rather than being folded into a
// per-scenario sentinel result alongside ordinary judging failures.
func isFatal(err error) bool {
	var opErr *opserr.Error
	if !errors.As(err, &opErr) {
		return false
	}
	return opErr.Class == opserr.ErrorClassPermanent
}

// evaluateOne runs the five-step fast-track pipeline for a single pair.
// Ordinary per-scenario failures (malformed judge output, a parse
// error) are isolated as a sentinel result with a nil error; a fatal
// error (see isFatal) is returned instead and must abort the run.
func (e *Engine) evaluateOne(ctx context.Context, p pair) (Result, error) {
	start := time.Now()

	prompt := composePrompt(p.scenario, p.output)
	req := provider.Request{
		Model: e.cfg.Model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: judgeSystemPrompt},
			{Role: provider.RoleUser, Content: prompt},
		},
	}
	resp, err := e.adapter.Call(ctx, e.cfg.Backend, req, provider.WithLogprobs("PASS_FAIL_DECISION"))
	if err != nil {
		if isFatal(err) {
			return Result{}, err
		}
		return newSentinelResult(p.scenario.ID, p.output.ID, err.Error()), nil
	}

	parsed, err := parseJudgeResponse(resp.Content)
	if err != nil {
		// Malformed judge output gets exactly one retry with a tighter
		// correction prompt; a second failure becomes a sentinel result.
		retryReq := req
		retryReq.Messages = append(append([]provider.Message{}, req.Messages...),
			provider.Message{Role: provider.RoleAssistant, Content: resp.Content},
			provider.Message{Role: provider.RoleUser, Content: "That response was not valid JSON matching the required shape. " +
				"Respond with nothing but the JSON object described in the system prompt."},
		)
		resp2, rerr := e.adapter.Call(ctx, e.cfg.Backend, retryReq)
		if rerr != nil {
			if isFatal(rerr) {
				return Result{}, rerr
			}
			return newSentinelResult(p.scenario.ID, p.output.ID, err.Error()), nil
		}
		parsed, err = parseJudgeResponse(resp2.Content)
		if err != nil {
			return newSentinelResult(p.scenario.ID, p.output.ID, err.Error()), nil
		}
		resp = resp2
	}

	result := Result{
		ScenarioID: p.scenario.ID,
		OutputID:   p.output.ID,
		Passed:     parsed.Score >= p.scenario.EffectivePassThreshold(),
		Score:      parsed.Score,
		Reward:     parsed.Reward,
		Feedback:   parsed.Feedback,
		Evidence:   parsed.Evidence,
		ModelID:    resp.ModelID,
		Latency:    time.Since(start),
		CostUSD:    resp.CostUSD,
		State:      StateSucceeded,
	}

	confidence, err := e.calibrate(ctx, p, resp, result)
	if err != nil {
		return Result{}, err
	}
	result.Confidence = confidence

	if result.Confidence < e.cfg.VerificationThreshold {
		verified, ok, err := e.verify(ctx, p)
		if err != nil {
			return Result{}, err
		}
		if ok {
			verified.Verified = true
			verified.State = StateVerified
			return verified, nil
		}
	}

	return result, nil
}

// calibrate derives confidence from decision-token logprobs when the
// provider returned them, otherwise falls back to a cheap
// self-consistency pass at a higher temperature. A non-fatal secondary
// call failure degrades to a low static confidence rather than
// aborting the judgement; a fatal one still propagates.
func (e *Engine) calibrate(ctx context.Context, p pair, resp *provider.Response, primary Result) (float64, error) {
	if len(resp.Logprobs) > 0 {
		lps := make([]tokenLogprob, len(resp.Logprobs))
		for i, lp := range resp.Logprobs {
			lps[i] = tokenLogprob{Token: lp.Token, LogProb: lp.LogProb}
		}
		if passLP, failLP, ok := findDecisionLogprobs(lps); ok {
			return calibrateFromLogprobs(passLP, failLP), nil
		}
	}

	secondaryTemp := 0.7
	secondary, err := e.adapter.Call(ctx, e.cfg.Backend, provider.Request{
		Model:       e.cfg.Model,
		Temperature: &secondaryTemp,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: judgeSystemPrompt},
			{Role: provider.RoleUser, Content: composePrompt(p.scenario, p.output)},
		},
	})
	if err != nil {
		if isFatal(err) {
			return 0, err
		}
		return 0.3, nil
	}
	secondaryParsed, err := parseJudgeResponse(secondary.Content)
	if err != nil {
		return 0.3, nil
	}
	secondaryPassed := secondaryParsed.Score >= p.scenario.EffectivePassThreshold()

	return calibrateFromSelfConsistency(primary.Passed, secondaryPassed, primary.Score, secondaryParsed.Score), nil
}

// verify re-runs a low-confidence judgement through the stronger
// verification backend/model. Returns ok=false if verification itself
// fails with a non-fatal error, in which case the caller keeps the
// original (low-confidence) result rather than losing the judgement
// entirely; a fatal error still propagates.
func (e *Engine) verify(ctx context.Context, p pair) (Result, bool, error) {
	start := time.Now()
	resp, err := e.adapter.Call(ctx, e.cfg.VerificationBackend, provider.Request{
		Model: e.cfg.VerificationModel,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: judgeSystemPrompt},
			{Role: provider.RoleUser, Content: composePrompt(p.scenario, p.output)},
		},
	})
	if err != nil {
		if isFatal(err) {
			return Result{}, false, err
		}
		return Result{}, false, nil
	}
	parsed, err := parseJudgeResponse(resp.Content)
	if err != nil {
		return Result{}, false, nil
	}
	return Result{
		ScenarioID: p.scenario.ID,
		OutputID:   p.output.ID,
		Passed:     parsed.Score >= p.scenario.EffectivePassThreshold(),
		Score:      parsed.Score,
		Reward:     parsed.Reward,
		Feedback:   parsed.Feedback,
		Evidence:   parsed.Evidence,
		Confidence: 0.9,
		ModelID:    resp.ModelID,
		Latency:    time.Since(start),
		CostUSD:    resp.CostUSD,
	}, true, nil
}

// runBatchTrack submits one batch job per pair, polls at PollInterval,
// and falls back to the fast-track pipeline for any item the batch
// reports as failed.
func (e *Engine) runBatchTrack(ctx context.Context, pairs []pair) ([]Result, error) {
	jobs := make([]provider.BatchJob, len(pairs))
	jobByID := make(map[string]pair, len(pairs))
	for i, p := range pairs {
		jobID := fmt.Sprintf("%s::%s", p.scenario.ID, p.output.ID)
		jobs[i] = provider.BatchJob{
			ID:    jobID,
			Model: e.cfg.Model,
			Request: provider.Request{
				Model: e.cfg.Model,
				Messages: []provider.Message{
					{Role: provider.RoleSystem, Content: judgeSystemPrompt},
					{Role: provider.RoleUser, Content: composePrompt(p.scenario, p.output)},
				},
			},
		}
		jobByID[jobID] = p
	}

	handle, err := e.adapter.SubmitBatch(ctx, e.cfg.Backend, jobs)
	if err != nil {
		return nil, err
	}

	var batchResults []provider.BatchResult
	for {
		status, partial, perr := e.adapter.Poll(handle)
		if perr != nil {
			return nil, perr
		}
		if status == provider.BatchCompleted || status == provider.BatchFailed {
			batchResults = partial
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}

	results := make([]Result, 0, len(batchResults))
	var fallback []pair
	for _, br := range batchResults {
		p := jobByID[br.JobID]
		if br.Err != nil || br.Response == nil {
			fallback = append(fallback, p)
			continue
		}
		parsed, perr := parseJudgeResponse(br.Response.Content)
		if perr != nil {
			fallback = append(fallback, p)
			continue
		}
		results = append(results, Result{
			ScenarioID: p.scenario.ID,
			OutputID:   p.output.ID,
			Passed:     parsed.Score >= p.scenario.EffectivePassThreshold(),
			Score:      parsed.Score,
			Reward:     parsed.Reward,
			Feedback:   parsed.Feedback,
			Evidence:   parsed.Evidence,
			Confidence: 0.7,
			ModelID:    br.Response.ModelID,
			CostUSD:    br.Response.CostUSD,
			State:      StateSucceeded,
		})
	}

	quality := classifyBatch(len(results), len(fallback), results)
	if quality == BatchSuspect {
		e.logger.Info("batch track results suspect, discarding and falling back to fast track",
			"count", len(batchResults))
		fallback = pairsFor(jobByID, batchResults)
		results = nil
	}

	if len(fallback) > 0 {
		e.logger.Info("batch track partial failure, falling back to fast track",
			"quality", string(quality), "count", len(fallback))
		fbResults, err := e.runFastTrack(ctx, fallback)
		if err != nil {
			return nil, err
		}
		results = append(results, fbResults...)
	}

	return results, nil
}

// pairsFor recovers the original (scenario, output) pairs for every job
// in a batch, used when the whole batch is discarded as suspect rather
// than just its explicitly failed items.
func pairsFor(jobByID map[string]pair, batchResults []provider.BatchResult) []pair {
	pairs := make([]pair, 0, len(batchResults))
	for _, br := range batchResults {
		pairs = append(pairs, jobByID[br.JobID])
	}
	return pairs
}

func stableOrder(results []Result) {
	// insertion sort is fine here: result sets are bounded by scenario
	// catalog size, not by traffic volume.
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && less(results[j], results[j-1]); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func less(a, b Result) bool {
	if a.ScenarioID != b.ScenarioID {
		return a.ScenarioID < b.ScenarioID
	}
	return a.OutputID < b.OutputID
}

func summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	var scoreSum, costSum float64
	for _, r := range results {
		if r.Passed {
			s.Passed++
		}
		scoreSum += r.Score
		costSum += r.CostUSD
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
		s.MeanScore = scoreSum / float64(s.Total)
		s.MeanCost = costSum / float64(s.Total)
	}
	return s
}
