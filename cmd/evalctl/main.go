// evalctl is a minimal flag-driven runner for the evaluation engine: it
// loads a batch of agent traces plus an optional agent config, judges
// them against a scenario bundle, and prints the resulting report. The
// interactive dashboard/TUI equivalents stay external to this repo.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/arcreliability/engine"
	"github.com/arcreliability/engine/compliance"
	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/health"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/provider"
	"github.com/arcreliability/engine/trace"
)

func main() {
	var (
		scenarioDir    = flag.String("scenario-dir", "", "directory of scenario bundle YAML files (required)")
		persistenceDir = flag.String("persistence-dir", "./runs", "root directory for per-run artifacts")
		domain         = flag.String("domain", "", "scenario bundle domain (required)")
		version        = flag.String("version", "latest", "scenario bundle version")
		recordsPath    = flag.String("records", "", "path to a JSON file holding the batch of agent records (required)")
		agentConfigPath = flag.String("agent-config", "", "optional path to a JSON compliance.AgentConfig file")
		backendName    = flag.String("backend", "openai", "name reported by the configured backend")
		model          = flag.String("model", "gpt-4o", "model id passed to the backend on every judge call")
		apiKeyEnv      = flag.String("api-key-env", "OPENAI_API_KEY", "environment variable holding the backend API key")
		baseURL        = flag.String("base-url", "", "override the backend's chat completions URL")
		mode           = flag.String("mode", "auto", "judge track: auto, fast_track, or batch_track")
		runFlywheel    = flag.Bool("flywheel", false, "drive the ACL flywheel after the single-pass evaluation")
		costCeiling    = flag.Float64("cost-ceiling-usd", 10, "per-run cost ceiling in USD")
		passRateTarget = flag.Float64("pass-rate-target", curriculum.DefaultPassRateTarget, "flywheel termination pass-rate target")
	)
	flag.Parse()

	if *scenarioDir == "" || *domain == "" || *recordsPath == "" {
		fmt.Fprintln(os.Stderr, "evalctl: -scenario-dir, -domain, and -records are required")
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if status := health.FileCheck(*scenarioDir); !status.IsHealthy() {
		logger.Error("scenario directory preflight failed", "status", status.Status, "message", status.Message)
		os.Exit(1)
	}

	records, err := loadRecords(*recordsPath)
	if err != nil {
		logger.Error("failed to load records", "error", err)
		os.Exit(1)
	}

	agentConfig, err := loadAgentConfig(*agentConfigPath)
	if err != nil {
		logger.Error("failed to load agent config", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv(*apiKeyEnv)
	if apiKey == "" {
		logger.Warn("api key environment variable is empty, calls will likely be rejected by the backend", "env", *apiKeyEnv)
	}
	backend := newOpenAIBackend(*backendName, apiKey, *baseURL)

	opts := []engine.Option{
		engine.WithScenarioDir(*scenarioDir),
		engine.WithPersistenceDir(*persistenceDir),
		engine.WithBackends(backend),
		engine.WithJudgeConfig(judge.Config{Backend: *backendName, Model: *model}),
		engine.WithLogger(logger),
	}
	opts = append(opts, engine.WithProviderConfig(provider.Config{CostCeilingUSD: *costCeiling}))
	if *runFlywheel {
		opts = append(opts,
			engine.WithCurriculumConfig(curriculum.Config{PassRateTarget: *passRateTarget, CostBudgetUSD: *costCeiling}),
			engine.WithStrategyProvider(curriculum.FuncStrategyProvider(staticFocusStrategy)),
		)
	}

	eng, err := engine.NewEngine(opts...)
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	runOpts := engine.NewRunOptions(
		engine.WithRunID(fmt.Sprintf("cli-%d", time.Now().Unix())),
		engine.WithDomain(*domain),
		engine.WithVersion(*version),
		engine.WithRecords(records),
		engine.WithAgentConfig(agentConfig),
		engine.WithForceMode(judge.Mode(*mode)),
	)
	if *runFlywheel {
		runOpts.RunFlywheel = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := eng.Run(ctx, runOpts)
	if err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("failed to encode report", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func loadRecords(path string) ([]trace.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("records file must be a JSON array: %w", err)
	}
	records := make([]trace.Record, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			records = append(records, trace.NewStringRecord(s))
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(r, &m); err != nil {
			return nil, fmt.Errorf("record entry is neither a string nor an object: %w", err)
		}
		records = append(records, trace.NewMapRecord(m))
	}
	return records, nil
}

func loadAgentConfig(path string) (compliance.AgentConfig, error) {
	if path == "" {
		return compliance.AgentConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return compliance.AgentConfig{}, err
	}
	var cfg compliance.AgentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return compliance.AgentConfig{}, fmt.Errorf("agent config file must decode into compliance.AgentConfig: %w", err)
	}
	return cfg, nil
}

// staticFocusStrategy is the in-process fallback strategy provider used
// when evalctl drives the flywheel without a dedicated rewriting
// service: it always names the lowest-pass-rate category as the focus
// area and leaves outputs untouched, which still exercises the
// termination and bandit logic end to end.
func staticFocusStrategy(ctx context.Context, req curriculum.StrategyRequest) (curriculum.ImprovementStrategy, error) {
	focus := "general"
	lowest := 1.1
	for cat, rate := range req.PassRates {
		if rate < lowest {
			lowest = rate
			focus = cat
		}
	}
	return curriculum.ImprovementStrategy{
		FocusArea: focus,
		Rationale: fmt.Sprintf("lowest observed pass rate at iteration %d", req.Iteration),
	}, nil
}
