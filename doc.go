// Package engine evaluates batches of AI-agent execution traces for
// reliability risk against a library of compliance scenarios, and
// optionally drives an Automated Curriculum Learning flywheel that
// re-evaluates and improves iteratively until a target pass rate is
// reached.
//
// # Core Concepts
//
//   - Trace normalisation: heterogeneous raw agent records (LangChain,
//     CrewAI, OpenAI, Anthropic, or plain text) become a canonical
//     NormalisedOutput.
//   - Scenarios: versioned, per-domain bundles of compliance checks an
//     output is judged against.
//   - Judgement: each (scenario, output) pair is evaluated by a
//     deterministic rule pass plus an LLM-as-judge call, fast-track or
//     batch-track depending on volume.
//   - Prediction: a severity-weighted rule score and a calibrated LLM
//     risk estimate are fused into a single reliability risk level.
//   - Flywheel: a bandit-scheduled curriculum repeatedly judges,
//     improves, and re-judges until the target pass rate, a cost
//     budget, max iterations, or a plateau is reached.
//
// # Getting Started
//
//	eng, err := engine.NewEngine(
//		engine.WithScenarioDir("./scenarios"),
//		engine.WithBackends(openaiBackend, anthropicBackend),
//		engine.WithPersistenceDir("./runs"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer eng.Close()
//
//	report, err := eng.Run(ctx, engine.NewRunOptions(
//		engine.WithDomain("finance"),
//		engine.WithRecords(records),
//	))
//
// # Error Handling
//
// Run returns a structured *engine.Error wrapping the underlying
// opserr.Error raised by whichever component failed first:
//
//	if err != nil {
//		var engErr *engine.Error
//		if errors.As(err, &engErr) && engErr.Kind == engine.KindProvider {
//			// handle a provider-layer failure
//		}
//	}
//
// Per-scenario failures never reach this boundary — they are captured
// as failed JudgementResults and still appear in a successful report.
package engine
