// Package classifier decides whether two page fingerprints differ in a
// business-relevant way and labels the change. Inference backends are
// consulted when hashes differ; any backend failure degrades to rule-based
// heuristics, so classification never returns an error.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raysh454/rivalscope/internal/inference"
	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
)

const (
	DefaultBatchDelay   = time.Second
	DefaultExcerptChars = 500
)

// Config is fixed at construction.
type Config struct {
	// BatchDelay separates backend calls in ClassifyBatch. Negative disables it.
	BatchDelay   time.Duration `koanf:"batch_delay"`
	ExcerptChars int           `koanf:"excerpt_chars"`
}

func (c Config) withDefaults() Config {
	if c.BatchDelay == 0 {
		c.BatchDelay = DefaultBatchDelay
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.ExcerptChars <= 0 {
		c.ExcerptChars = DefaultExcerptChars
	}
	return c
}

var tracer = otel.Tracer("internal/classifier")

// Classifier is immutable after New and safe for concurrent use when its
// backend is.
type Classifier struct {
	backend inference.Backend
	cfg     Config
	logger  logging.Logger
}

// New builds a classifier. A nil backend means the local rule backend.
func New(backend inference.Backend, cfg Config, logger logging.Logger) *Classifier {
	if backend == nil {
		backend = inference.NewLocalBackend()
	}
	return &Classifier{
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  logging.OrNop(logger).With(logging.Field{Key: "component", Value: "classifier"}),
	}
}

// Backend reports the backend name.
func (c *Classifier) Backend() string { return c.backend.Name() }

// Unchanged is the hash fast-path verdict.
func Unchanged() model.ClassificationResult {
	return model.ClassificationResult{
		HasSignificantChange: false,
		ChangeType:           model.ChangeOther,
		ChangeSummary:        "Content hash unchanged",
		Details:              model.ChangeDetails{ImpactLevel: model.LevelLow},
		Confidence:           model.LevelHigh,
		Source:               model.SourceHash,
	}
}

// Classify compares prev and cur. Identical hashes return Unchanged without
// calling the backend; backend errors, panics and unusable replies fall
// back to Fallback.
func (c *Classifier) Classify(ctx context.Context, competitor, pageType string, prev, cur model.PageFingerprint) model.ClassificationResult {
	ctx, span := tracer.Start(ctx, "classifier.classify", trace.WithAttributes(
		attribute.String("competitor", competitor),
		attribute.String("page_type", pageType),
		attribute.String("backend", c.backend.Name()),
	))
	defer span.End()

	if prev.ContentHash == cur.ContentHash {
		span.SetAttributes(attribute.String("source", string(model.SourceHash)))
		return Unchanged()
	}

	prompt := c.BuildPrompt(competitor, pageType, prev, cur)
	raw, err := c.analyze(ctx, prompt)
	if err == nil {
		var res model.ClassificationResult
		if res, err = parseResult(raw); err == nil {
			span.SetAttributes(attribute.String("source", string(model.SourceInference)))
			return res
		}
		err = &inference.ParseError{Backend: c.backend.Name(), Raw: fmt.Sprint(raw), Err: err}
	}

	fields := []logging.Field{
		{Key: "backend", Value: c.backend.Name()},
		{Key: "competitor", Value: competitor},
		{Key: "page_type", Value: pageType},
		{Key: "error", Value: err.Error()},
	}
	var pe *inference.ParseError
	if errors.As(err, &pe) {
		fields = append(fields, logging.Field{Key: "raw", Value: truncate(pe.Raw, 200)})
	}
	c.logger.Warn("inference failed, using rule-based fallback", fields...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("source", string(model.SourceFallback)))

	res := Fallback(pageType, prev, cur)
	res.Error = err.Error()
	return res
}

func (c *Classifier) analyze(ctx context.Context, prompt string) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference backend %s panicked: %v", c.backend.Name(), r)
		}
	}()
	return c.backend.Analyze(ctx, prompt)
}

// parseResult maps a backend reply onto a ClassificationResult. The only
// hard requirement is a boolean hasSignificantChange; other fields default
// to other / medium / medium.
func parseResult(raw map[string]any) (model.ClassificationResult, error) {
	sig, ok := raw["hasSignificantChange"].(bool)
	if !ok {
		return model.ClassificationResult{}, errors.New("hasSignificantChange missing or not a boolean")
	}

	ct, _ := model.ParseChangeType(stringField(raw, "changeType"))
	res := model.ClassificationResult{
		HasSignificantChange: sig,
		ChangeType:           ct,
		ChangeSummary:        stringField(raw, "changeSummary"),
		Details:              model.ChangeDetails{ImpactLevel: model.LevelMedium},
		Confidence:           model.ParseLevel(stringField(raw, "confidence"), model.LevelMedium),
		CompetitiveAnalysis:  stringField(raw, "competitiveAnalysis"),
		Source:               model.SourceInference,
	}
	if details, ok := raw["details"].(map[string]any); ok {
		res.Details.OldValue = stringField(details, "oldValue")
		res.Details.NewValue = stringField(details, "newValue")
		res.Details.ImpactLevel = model.ParseLevel(stringField(details, "impactLevel"), model.LevelMedium)
	}
	if res.ChangeSummary == "" && sig {
		res.ChangeSummary = summaries[ct]
	}
	return res, nil
}

// stringField tolerates numbers and other scalars where a string was asked for.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
