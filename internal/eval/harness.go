// Package eval runs labeled before/after scenarios through normalization
// and classification and scores the verdicts.
package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raysh454/rivalscope/internal/htmltext"
	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
	"github.com/raysh454/rivalscope/internal/normalizer"
)

// ErrUnknownScenario is returned by RunScenario for an id the harness does
// not know.
var ErrUnknownScenario = errors.New("unknown scenario")

// ScenarioExecutionError wraps a failure while running one scenario. It is
// recorded on the TestResult, never returned.
type ScenarioExecutionError struct {
	ScenarioID string
	Err        error
}

func (e *ScenarioExecutionError) Error() string {
	return fmt.Sprintf("scenario %s: %v", e.ScenarioID, e.Err)
}

func (e *ScenarioExecutionError) Unwrap() error { return e.Err }

// Classifier is the part of classifier.Classifier the harness drives.
type Classifier interface {
	Classify(ctx context.Context, competitor, pageType string, prev, cur model.PageFingerprint) model.ClassificationResult
}

// TestResult is one scored scenario.
type TestResult struct {
	ScenarioID string                     `json:"scenarioId"`
	Name       string                     `json:"name"`
	Passed     bool                       `json:"passed"`
	Accuracy   float64                    `json:"accuracy"`
	Expected   Expectation                `json:"expected"`
	Actual     model.ClassificationResult `json:"actual"`
	Mismatches []string                   `json:"mismatches,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Duration   time.Duration              `json:"duration"`
}

// Report aggregates a run.
type Report struct {
	Total           int          `json:"total"`
	Passed          int          `json:"passed"`
	Failed          int          `json:"failed"`
	AverageAccuracy float64      `json:"averageAccuracy"`
	Results         []TestResult `json:"results"`
}

// Harness holds an ordered scenario set.
type Harness struct {
	classifier Classifier
	logger     logging.Logger
	scenarios  []Scenario
	byID       map[string]int
}

// New returns a harness preloaded with BuiltinScenarios.
func New(c Classifier, logger logging.Logger) *Harness {
	h := &Harness{
		classifier: c,
		logger:     logging.OrNop(logger).With(logging.Field{Key: "component", Value: "eval"}),
		byID:       map[string]int{},
	}
	for _, s := range BuiltinScenarios() {
		h.byID[s.ID] = len(h.scenarios)
		h.scenarios = append(h.scenarios, s)
	}
	return h
}

// Add registers extra scenarios. An id that already exists is replaced in
// place.
func (h *Harness) Add(scenarios ...Scenario) error {
	for _, s := range scenarios {
		if s.ID == "" {
			return errors.New("scenario id is required")
		}
		if i, ok := h.byID[s.ID]; ok {
			h.scenarios[i] = s
			continue
		}
		h.byID[s.ID] = len(h.scenarios)
		h.scenarios = append(h.scenarios, s)
	}
	return nil
}

// Scenarios returns the registered scenarios in run order.
func (h *Harness) Scenarios() []Scenario {
	return append([]Scenario(nil), h.scenarios...)
}

// RunScenario runs one scenario by id. The only error is ErrUnknownScenario;
// execution failures are reported on the result.
func (h *Harness) RunScenario(ctx context.Context, id string) (TestResult, error) {
	i, ok := h.byID[id]
	if !ok {
		return TestResult{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	return h.run(ctx, h.scenarios[i]), nil
}

// RunAll runs every scenario in order.
func (h *Harness) RunAll(ctx context.Context) []TestResult {
	results := make([]TestResult, 0, len(h.scenarios))
	for _, s := range h.scenarios {
		results = append(results, h.run(ctx, s))
	}
	return results
}

func (h *Harness) run(ctx context.Context, s Scenario) (res TestResult) {
	start := time.Now()
	res = TestResult{ScenarioID: s.ID, Name: s.Name, Expected: s.Expected}

	defer func() {
		if r := recover(); r != nil {
			err := &ScenarioExecutionError{ScenarioID: s.ID, Err: fmt.Errorf("panic: %v", r)}
			h.logger.Error("scenario failed", logging.Field{Key: "scenario", Value: s.ID}, logging.Field{Key: "error", Value: err.Error()})
			res = TestResult{
				ScenarioID: s.ID,
				Name:       s.Name,
				Expected:   s.Expected,
				Error:      err.Error(),
				Duration:   time.Since(start),
			}
		}
	}()

	before := normalizer.Normalize(s.BeforeHTML, htmltext.StripTags(s.BeforeHTML))
	after := normalizer.Normalize(s.AfterHTML, htmltext.StripTags(s.AfterHTML))
	res.Actual = h.classifier.Classify(ctx, s.Competitor, s.PageType, before, after)

	res.Accuracy, res.Mismatches = Score(s.Expected, res.Actual)
	res.Passed = res.Accuracy >= PassThreshold
	res.Duration = time.Since(start)

	h.logger.Debug("scenario scored",
		logging.Field{Key: "scenario", Value: s.ID},
		logging.Field{Key: "accuracy", Value: res.Accuracy},
		logging.Field{Key: "passed", Value: res.Passed})
	return res
}

// Summarize aggregates results. An empty run has zero average accuracy.
func Summarize(results []TestResult) Report {
	r := Report{Total: len(results), Results: results}
	var sum float64
	for _, res := range results {
		if res.Passed {
			r.Passed++
		} else {
			r.Failed++
		}
		sum += res.Accuracy
	}
	if r.Total > 0 {
		r.AverageAccuracy = sum / float64(r.Total)
	}
	return r
}
