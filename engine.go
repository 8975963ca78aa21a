// Package engine is the public entry point for the agent reliability
// evaluation platform: it wires the trace normaliser, scenario store,
// provider adapter, compliance rule engine, dual-track judge engine,
// reliability predictor, pattern learner, ACL flywheel controller, and
// persistence layer behind a single Run call.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/arcreliability/engine/compliance"
	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/opserr"
	"github.com/arcreliability/engine/pattern"
	"github.com/arcreliability/engine/predictor"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/scenario"
	"github.com/arcreliability/engine/store"
	"github.com/arcreliability/engine/trace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Engine evaluates batches of agent traces against a scenario bundle
// and, optionally, drives the ACL flywheel on top of the result.
type Engine interface {
	// Run normalises opts.Records, judges them against the targeted
	// scenario bundle, predicts a reliability risk, persists everything
	// under the configured persistence root, and returns the assembled
	// report. When opts.RunFlywheel is set, the ACL controller runs
	// afterward and its report is attached.
	Run(ctx context.Context, opts RunOptions) (*store.RunReport, error)

	// Close releases resources the engine holds across runs (currently,
	// the etcd checkpoint lease when one is configured).
	Close() error
}

// defaultEngine is the sole Engine implementation, built by NewEngine.
type defaultEngine struct {
	cfg Config

	normaliser *trace.Normaliser
	scenarios  *scenario.Store
	adapter    *provider.Adapter
	rules      *compliance.Engine
	judgeEng   *judge.Engine
	predictEng *predictor.Engine
	bank       *pattern.Bank

	etcdCkpt *store.EtcdCheckpointer

	logger *slog.Logger
}

// NewEngine builds an Engine from built-in defaults, an optional
// engine.yaml discovered in the working directory, and the supplied
// Options, applied in that priority order (explicit option wins).
func NewEngine(opts ...Option) (Engine, error) {
	cfg := defaultConfig()
	if discovered, err := discoverYAMLConfig(); err != nil {
		return nil, NewConfigurationError("NewEngine", err)
	} else {
		applyYAMLConfig(&cfg, discovered)
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ScenarioDir == "" {
		return nil, NewConfigurationError("NewEngine", ErrScenarioDirRequired)
	}
	if len(cfg.Backends) == 0 {
		return nil, NewConfigurationError("NewEngine", ErrNoBackendsConfigured)
	}
	// Mirror provider.Config.withDefaults() here too: the cost ledger
	// reads cfg.ProviderConfig.CostCeilingUSD directly, independent of
	// the adapter's own internal default, and the two must agree.
	if cfg.ProviderConfig.CostCeilingUSD <= 0 {
		cfg.ProviderConfig.CostCeilingUSD = 10
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rules, err := compliance.NewEngine()
	if err != nil {
		return nil, wrapOpErr("NewEngine", err)
	}

	adapter := provider.New(cfg.ProviderConfig, cfg.Limiter, cfg.Backends...)
	judgeEng := judge.New(cfg.JudgeConfig, adapter, logger)
	predictEng := predictor.New(cfg.PredictorConfig, adapter, rules, logger)
	bank := pattern.New(time.Now)

	eng := &defaultEngine{
		cfg:        cfg,
		normaliser: trace.New(logger),
		scenarios:  scenario.NewStore(cfg.ScenarioDir),
		adapter:    adapter,
		rules:      rules,
		judgeEng:   judgeEng,
		predictEng: predictEng,
		bank:       bank,
		logger:     logger,
	}

	if cfg.EtcdClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		ckpt, err := store.NewEtcdCheckpointer(ctx, cfg.EtcdClient, cfg.EtcdNamespace, cfg.EtcdTTLSec)
		if err != nil {
			return nil, wrapOpErr("NewEngine", err)
		}
		eng.etcdCkpt = ckpt
	}

	return eng, nil
}

// Close revokes the etcd checkpoint lease, if one was created.
func (e *defaultEngine) Close() error {
	if e.etcdCkpt == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.etcdCkpt.Close(ctx)
}

// Run executes the single-pass pipeline C1->C2->C5->C6, persists the
// result, and — when requested — drives the C8 flywheel on top.
func (e *defaultEngine) Run(ctx context.Context, opts RunOptions) (*store.RunReport, error) {
	opts = opts.withDefaults()

	ctx, span := tracer().Start(ctx, "engine.Run", oteltrace.WithAttributes(runSpanAttributes(opts)...))
	defer span.End()

	fail := func(report *store.RunReport, err error) (*store.RunReport, error) {
		wrapped := wrapOpErr("Engine.Run", err)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return report, wrapped
	}

	if opts.Domain == "" {
		return fail(nil, opserr.New("engine", "run", opserr.CodeUnknownDomain, ErrDomainRequired.Error()))
	}

	outputs, err := e.normaliser.NormaliseBatch(opts.Records)
	if err != nil {
		return fail(nil, err)
	}

	bundle, err := e.scenarios.Load(opts.Domain, opts.Version)
	if err != nil {
		return fail(nil, err)
	}
	targeted := bundle.Targeted(outputs)

	runDir := runPath(e.cfg.PersistenceDir, opts.RunID)
	if err := os.MkdirAll(filepath.Join(runDir, "checkpoints"), 0755); err != nil {
		return fail(nil, opserr.New("store", "mkdir", opserr.CodePersistenceWrite,
			fmt.Sprintf("failed to create run directory %s", runDir)).WithCause(err))
	}

	eventLog, err := store.OpenEventLog(filepath.Join(runDir, "events.jsonl"))
	if err != nil {
		return fail(nil, err)
	}
	defer CloseWithLog(eventLog, e.logger, "event log")

	ledger := store.NewCostLedger(opts.RunID, e.cfg.ProviderConfig.CostCeilingUSD, eventLog)

	results, _, err := e.judgeEng.Evaluate(ctx, targeted, outputs, opts.ForceMode)
	if err != nil {
		return fail(nil, err)
	}
	for _, r := range results {
		if err := eventLog.Append(store.EventJudgement, r); err != nil {
			e.logger.Warn("failed to persist judgement", "scenario_id", r.ScenarioID, "error", err)
		}
	}
	if err := ledger.Record(e.adapter.Usage().CostUSD, "single_pass_evaluate"); err != nil {
		return fail(nil, err)
	}

	categoryByScenario, frameworkByOutput := indexMetadata(targeted, outputs)
	e.bank.Observe(opts.Domain, results, categoryByScenario, frameworkByOutput)

	prediction, err := e.predictEng.Predict(ctx, opts.Domain, opts.AgentConfig, outputs, results)
	if err != nil {
		return fail(nil, err)
	}
	if err := eventLog.Append(store.EventPrediction, prediction); err != nil {
		e.logger.Warn("failed to persist prediction", "error", err)
	}

	report := &store.RunReport{
		Domain:     opts.Domain,
		Judgements: results,
		Summary:    store.BuildRunSummary(outputs, targeted, results, ledger.Spent()),
		Prediction: &prediction,
	}

	if opts.RunFlywheel {
		flywheelReport, err := e.runFlywheel(ctx, opts, bundle, outputs, eventLog, ledger)
		if err != nil {
			return fail(report, err)
		}
		report.Flywheel = flywheelReport
	}

	if err := store.WriteFinalReport(filepath.Join(runDir, "final_report.json"), *report); err != nil {
		return fail(report, err)
	}

	span.SetAttributes(
		attribute.Int("run.judgement_count", len(results)),
		attribute.Float64("run.cost_usd", ledger.Spent()),
	)
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// runFlywheel wires the curriculum controller on top of the already-
// judged bundle: a flywheelEvaluator replays judge.Evaluate per chosen
// category, and pattern-derived boosts seed the bandit scheduler.
func (e *defaultEngine) runFlywheel(ctx context.Context, opts RunOptions, bundle *scenario.Bundle, outputs []trace.Output, eventLog *store.EventLog, ledger *store.CostLedger) (*curriculum.Report, error) {
	ctx, span := tracer().Start(ctx, "engine.runFlywheel")
	defer span.End()

	if e.cfg.StrategyProvider == nil {
		err := fmt.Errorf("flywheel run requested without a configured strategy provider")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	ckpt, err := e.checkpointer(opts.RunID)
	if err != nil {
		return nil, err
	}

	evaluator := &flywheelEvaluator{
		judgeEng: e.judgeEng,
		bank:     e.bank,
		domain:   opts.Domain,
		bundle:   bundle,
		outputs:  outputs,
		eventLog: eventLog,
		ledger:   ledger,
	}

	controller := curriculum.New(e.cfg.CurriculumConfig, evaluator, e.cfg.StrategyProvider, ckpt, e.logger, nil)

	categories := opts.FlywheelCategories
	if len(categories) == 0 {
		categories = distinctCategories(bundle.Scenarios)
	}
	boost := categoryBoost(e.bank.EmergingPatterns())

	state, report, err := controller.Run(ctx, opts.Domain, categories, boost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := eventLog.Append(store.EventCheckpoint, state); err != nil {
		e.logger.Warn("failed to persist final curriculum state", "error", err)
	}
	span.SetAttributes(attribute.Int("flywheel.iterations", report.Iterations))
	span.SetStatus(codes.Ok, "")
	return &report, nil
}

// checkpointer returns the configured curriculum.Checkpointer: the
// shared etcd-backed one when an etcd client was wired, otherwise a
// fresh file-based one scoped to this run's directory.
func (e *defaultEngine) checkpointer(runID string) (curriculum.Checkpointer, error) {
	if e.etcdCkpt != nil {
		return e.etcdCkpt, nil
	}
	dir := filepath.Join(runPath(e.cfg.PersistenceDir, runID), "checkpoints")
	return store.NewFileCheckpointer(dir)
}

// indexMetadata builds scenario-id->category and output-id->framework
// lookups for the pattern learner, which only sees flat judge.Results.
func indexMetadata(scenarios []scenario.Scenario, outputs []trace.Output) (map[string]string, map[string]string) {
	categoryByScenario := make(map[string]string, len(scenarios))
	for _, s := range scenarios {
		categoryByScenario[s.ID] = s.Category
	}
	frameworkByOutput := make(map[string]string, len(outputs))
	for _, o := range outputs {
		frameworkByOutput[o.ID] = string(o.Framework)
	}
	return categoryByScenario, frameworkByOutput
}

// distinctCategories returns the unique categories present in scenarios,
// in first-seen order, for a flywheel run that didn't pin its own set.
func distinctCategories(scenarios []scenario.Scenario) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range scenarios {
		if s.Category == "" || seen[s.Category] {
			continue
		}
		seen[s.Category] = true
		out = append(out, s.Category)
	}
	return out
}

// categoryBoost turns boosted patterns into a per-category sampling
// boost for the bandit scheduler: each boosted pattern contributes a
// fixed increment to its category, proportional to how many distinct
// patterns recur there rather than raw failure count, so one noisy
// scenario can't dominate a category's weight.
func categoryBoost(patterns []pattern.Pattern) map[string]float64 {
	boost := make(map[string]float64)
	for _, p := range patterns {
		if !p.Boosted() {
			continue
		}
		boost[p.Category] += 0.1
	}
	return boost
}
