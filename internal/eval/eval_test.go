package eval_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raysh454/rivalscope/internal/classifier"
	"github.com/raysh454/rivalscope/internal/eval"
	"github.com/raysh454/rivalscope/internal/inference"
	"github.com/raysh454/rivalscope/internal/model"
	"github.com/raysh454/rivalscope/internal/testutil"
)

func localHarness() *eval.Harness {
	c := classifier.New(inference.NewLocalBackend(), classifier.Config{BatchDelay: -1}, nil)
	return eval.New(c, nil)
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, string, string, model.PageFingerprint, model.PageFingerprint) model.ClassificationResult {
	panic("classifier blew up")
}

// ─── Score ─────────────────────────────────────────────────────────────

func TestScore(t *testing.T) {
	t.Parallel()
	pricingHigh := eval.Expectation{HasSignificantChange: true, ChangeType: model.ChangePricing, ImpactLevel: model.LevelHigh}
	noChange := eval.Expectation{HasSignificantChange: false, ChangeType: model.ChangeOther, ImpactLevel: model.LevelLow}

	result := func(sig bool, ct model.ChangeType, impact model.Level) model.ClassificationResult {
		return model.ClassificationResult{HasSignificantChange: sig, ChangeType: ct, Details: model.ChangeDetails{ImpactLevel: impact}}
	}

	tests := []struct {
		name       string
		exp        eval.Expectation
		act        model.ClassificationResult
		want       float64
		mismatches int
	}{
		{"exact match", pricingHigh, result(true, model.ChangePricing, model.LevelHigh), 1.0, 0},
		{"flag only", pricingHigh, result(true, model.ChangeOther, model.LevelLow), 0.4, 2},
		{"flag and type", pricingHigh, result(true, model.ChangePricing, model.LevelLow), 0.7, 1},
		{"missed change", pricingHigh, result(false, model.ChangePricing, model.LevelHigh), 0.6, 1},
		{"nothing right", pricingHigh, result(false, model.ChangeOther, model.LevelLow), 0, 3},
		{"no change expected and none found", noChange, result(false, model.ChangeFeatures, model.LevelHigh), 1.0, 0},
		{"false alarm", noChange, result(true, model.ChangeOther, model.LevelLow), 0, 1},
	}
	for _, tt := range tests {
		got, mm := eval.Score(tt.exp, tt.act)
		if got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("%s: Score = %v, want %v", tt.name, got, tt.want)
		}
		if len(mm) != tt.mismatches {
			t.Errorf("%s: mismatches = %q", tt.name, mm)
		}
	}
}

// ─── Built-in scenarios ────────────────────────────────────────────────

func TestBuiltinScenarios_PassWithLocalBackend(t *testing.T) {
	t.Parallel()
	h := localHarness()

	results := h.RunAll(context.Background())
	if len(results) < 5 {
		t.Fatalf("expected at least 5 built-ins, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed || r.Accuracy != 1.0 {
			t.Errorf("%s: accuracy %.2f, mismatches %q, actual %+v", r.ScenarioID, r.Accuracy, r.Mismatches, r.Actual)
		}
	}

	report := eval.Summarize(results)
	if report.Total != len(results) || report.Passed != report.Total || report.Failed != 0 || report.AverageAccuracy != 1.0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunScenario_PricingIncrease(t *testing.T) {
	t.Parallel()
	r, err := localHarness().RunScenario(context.Background(), "pricing-increase")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Actual.HasSignificantChange || r.Actual.ChangeType != model.ChangePricing || r.Actual.Details.ImpactLevel != model.LevelHigh {
		t.Errorf("actual = %+v", r.Actual)
	}
	if r.Actual.Details.OldValue != "$29, $79" || r.Actual.Details.NewValue != "$39, $99" {
		t.Errorf("details = %+v", r.Actual.Details)
	}
}

func TestRunScenario_MinorUpdate(t *testing.T) {
	t.Parallel()
	r, err := localHarness().RunScenario(context.Background(), "minor-update")
	if err != nil {
		t.Fatal(err)
	}
	if r.Actual.HasSignificantChange {
		t.Errorf("minor update flagged as significant: %+v", r.Actual)
	}
}

func TestRunScenario_UnknownID(t *testing.T) {
	t.Parallel()
	_, err := localHarness().RunScenario(context.Background(), "nope")
	if !errors.Is(err, eval.ErrUnknownScenario) {
		t.Errorf("expected ErrUnknownScenario, got %v", err)
	}
}

// ─── Failure handling ──────────────────────────────────────────────────

func TestRunAll_PanicBecomesFailedResult(t *testing.T) {
	t.Parallel()
	logger := &testutil.DummyLogger{}
	h := eval.New(panickingClassifier{}, logger)

	results := h.RunAll(context.Background())
	if len(results) != len(eval.BuiltinScenarios()) {
		t.Fatalf("batch aborted: %d results", len(results))
	}
	for _, r := range results {
		if r.Passed || r.Accuracy != 0 || !strings.Contains(r.Error, "classifier blew up") {
			t.Errorf("%s: %+v", r.ScenarioID, r)
		}
	}
	if len(logger.Errors) != len(results) {
		t.Errorf("expected one error log per scenario, got %d", len(logger.Errors))
	}

	report := eval.Summarize(results)
	if report.Failed != report.Total || report.AverageAccuracy != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunAll_FailingBackendStillScores(t *testing.T) {
	t.Parallel()
	c := classifier.New(&testutil.FailingBackend{Err: errors.New("offline")}, classifier.Config{BatchDelay: -1}, nil)
	results := eval.New(c, nil).RunAll(context.Background())

	for _, r := range results {
		if r.Error != "" {
			t.Errorf("%s: fallback should not surface as an execution error: %s", r.ScenarioID, r.Error)
		}
		if r.Actual.Confidence != model.LevelLow || !r.Actual.HasSignificantChange {
			t.Errorf("%s: expected fallback verdict, got %+v", r.ScenarioID, r.Actual)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()
	if r := eval.Summarize(nil); r.Total != 0 || r.AverageAccuracy != 0 {
		t.Errorf("report = %+v", r)
	}
}

// ─── Loading ───────────────────────────────────────────────────────────

const extraScenarios = `
scenarios:
  - id: integration-added
    name: New integration listed
    page_type: integrations
    competitor: Taskly
    before_html: "<ul><li>Slack integration</li></ul>"
    after_html: "<ul><li>Slack integration</li><li>Salesforce integration</li></ul>"
    expected:
      has_significant_change: true
      change_type: integration
      impact_level: medium
  - id: no-op
    before_html: "<p>a</p>"
    after_html: "<p>a </p>"
    expected:
      has_significant_change: false
`

func TestLoadScenarios(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(extraScenarios), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := eval.LoadScenarios(path)
	if err != nil {
		t.Fatalf("LoadScenarios: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d scenarios", len(got))
	}
	if got[0].Expected.ChangeType != model.ChangeIntegration || got[0].Expected.ImpactLevel != model.LevelMedium || got[0].PageType != "integrations" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "no-op" || got[1].Expected.ChangeType != model.ChangeOther || got[1].Expected.ImpactLevel != model.LevelLow {
		t.Errorf("defaults not applied: %+v", got[1])
	}

	h := localHarness()
	if err := h.Add(got...); err != nil {
		t.Fatal(err)
	}
	if len(h.Scenarios()) != len(eval.BuiltinScenarios())+2 {
		t.Errorf("scenarios = %d", len(h.Scenarios()))
	}
	if _, err := h.RunScenario(context.Background(), "integration-added"); err != nil {
		t.Errorf("added scenario not runnable: %v", err)
	}
}

func TestParseScenarios_Invalid(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"missing id":      "scenarios:\n  - before_html: a\n    after_html: b\n    expected: {has_significant_change: true}\n",
		"missing flag":    "scenarios:\n  - id: x\n    before_html: a\n    after_html: b\n",
		"bad change type": "scenarios:\n  - id: x\n    before_html: a\n    after_html: b\n    expected: {has_significant_change: true, change_type: rebrand}\n",
		"bad impact":      "scenarios:\n  - id: x\n    before_html: a\n    after_html: b\n    expected: {has_significant_change: true, impact_level: extreme}\n",
		"duplicate id":    "scenarios:\n  - {id: x, before_html: a, after_html: b, expected: {has_significant_change: true}}\n  - {id: x, before_html: a, after_html: b, expected: {has_significant_change: true}}\n",
		"unknown key":     "scenarios:\n  - id: x\n    before: a\n",
		"not yaml":        "scenarios: [",
	}
	for name, in := range tests {
		if _, err := eval.ParseScenarios([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadScenarios_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := eval.LoadScenarios(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHarness_AddReplacesExisting(t *testing.T) {
	t.Parallel()
	h := localHarness()
	replacement := eval.BuiltinScenarios()[0]
	replacement.Name = "Renamed"
	if err := h.Add(replacement); err != nil {
		t.Fatal(err)
	}
	if len(h.Scenarios()) != len(eval.BuiltinScenarios()) || h.Scenarios()[0].Name != "Renamed" {
		t.Errorf("replacement not applied in place")
	}
	if err := h.Add(eval.Scenario{}); err == nil {
		t.Error("expected error for empty id")
	}
}
