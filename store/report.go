package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/arcreliability/engine/curriculum"
	"github.com/arcreliability/engine/judge"
	"github.com/arcreliability/engine/opserr"
	"github.com/arcreliability/engine/predictor"
	"github.com/arcreliability/engine/scenario"
	"github.com/arcreliability/engine/trace"
)

// RunSummary aggregates pass/fail counts and spend for one evaluation
// run, independent of whether a flywheel ran on top of it.
type RunSummary struct {
	TotalOutputs int     `json:"total_outputs"`
	TotalChecks  int     `json:"total_checks"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	PassRate     float64 `json:"pass_rate"`
	TotalCostUSD float64 `json:"total_cost_usd"`

	// SeverityHistogram counts the scenarios evaluated this run by
	// severity; it sums to the scenario count, not the judgement count.
	SeverityHistogram map[scenario.Severity]int `json:"severity_histogram"`

	// FrameworkCoverage counts the judged outputs by detected framework;
	// it sums to TotalOutputs.
	FrameworkCoverage map[trace.Framework]int `json:"framework_coverage"`
}

// RunReport is the final_report.json contract: every judgement produced
// by the run, the aggregate summary, the reliability prediction, and the
// flywheel report when the ACL controller ran.
type RunReport struct {
	Domain     string                `json:"domain"`
	Judgements []judge.Result        `json:"judgements"`
	Summary    RunSummary            `json:"summary"`
	Prediction *predictor.Prediction `json:"prediction,omitempty"`
	Flywheel   *curriculum.Report    `json:"flywheel,omitempty"`
}

// BuildRunSummary aggregates the raw judgements into pass/fail counts
// and a pass rate, without re-deriving it from the flywheel's history
// (which only covers categories it sampled, not every judgement).
// scenarios and outputs are the bundle and batch this run evaluated,
// used only for the severity/framework histograms.
func BuildRunSummary(outputs []trace.Output, scenarios []scenario.Scenario, results []judge.Result, totalCostUSD float64) RunSummary {
	s := RunSummary{
		TotalOutputs:      len(outputs),
		TotalChecks:       len(results),
		TotalCostUSD:      totalCostUSD,
		SeverityHistogram: scenario.SeverityHistogram(scenarios),
		FrameworkCoverage: trace.FrameworkCoverage(outputs),
	}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	if s.TotalChecks > 0 {
		s.PassRate = float64(s.Passed) / float64(s.TotalChecks)
	}
	return s
}

// WriteFinalReport marshals report to path as indented JSON. Indentation
// trades a larger file for a report a human can open directly, which
// matters more for a terminal run artifact than it would for a
// high-volume log.
func WriteFinalReport(path string, report RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return opserr.New("store", "write_final_report", opserr.CodePersistenceWrite,
			"failed to marshal final report").WithCause(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return opserr.New("store", "write_final_report", opserr.CodePersistenceWrite,
			fmt.Sprintf("failed to write final report to %s", path)).WithCause(err)
	}
	return nil
}

// ReadFinalReport loads a previously written final_report.json, mainly
// useful for tests and post-hoc inspection tooling.
func ReadFinalReport(path string) (RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunReport{}, opserr.New("store", "read_final_report", opserr.CodePersistenceWrite,
			fmt.Sprintf("failed to read final report from %s", path)).WithCause(err)
	}
	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return RunReport{}, opserr.New("store", "read_final_report", opserr.CodePersistenceWrite,
			"failed to parse final report").WithCause(err)
	}
	return report, nil
}
