// Package monitor runs a detection sweep: each page is fetched, fingerprinted,
// compared with its previous fingerprint and, when the change is judged
// significant, turned into a ChangeRecord for the configured sinks.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/raysh454/rivalscope/internal/fetcher"
	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
	"github.com/raysh454/rivalscope/internal/normalizer"
	"github.com/raysh454/rivalscope/internal/notify"
)

// PageFetcher is the part of *fetcher.Fetcher the runner uses.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string, opts fetcher.Options) *fetcher.Result
}

// Classifier is the part of *classifier.Classifier the runner uses.
type Classifier interface {
	Classify(ctx context.Context, competitor, pageType string, prev, cur model.PageFingerprint) model.ClassificationResult
}

// ChangeSink receives every significant change. Delivery failures are
// logged by the runner and never fail the page.
type ChangeSink interface {
	Publish(ctx context.Context, rec model.ChangeRecord) error
}

// FingerprintStore remembers the latest fingerprint per page.
// LatestFingerprint returns nil, nil for a page seen for the first time.
type FingerprintStore interface {
	LatestFingerprint(ctx context.Context, pageID string) (*model.PageFingerprint, error)
	SaveFingerprint(ctx context.Context, page model.PageCheck, fp model.PageFingerprint, at time.Time) error
}

// Config wires the optional collaborators.
type Config struct {
	Fetch fetcher.Options
	// Store is consulted when a PageCheck carries no Previous fingerprint
	// and receives every new fingerprint. Optional.
	Store FingerprintStore
	Sinks []ChangeSink
	// DiffChars bounds the diff excerpt on each record.
	DiffChars int

	Now   func() time.Time
	NewID func() string
}

const defaultDiffChars = 500

var tracer = otel.Tracer("internal/monitor")

// Runner processes pages strictly one at a time in caller order.
type Runner struct {
	fetcher    PageFetcher
	classifier Classifier
	cfg        Config
	logger     logging.Logger
}

func NewRunner(f PageFetcher, c Classifier, cfg Config, logger logging.Logger) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.DiffChars <= 0 {
		cfg.DiffChars = defaultDiffChars
	}
	return &Runner{
		fetcher:    f,
		classifier: c,
		cfg:        cfg,
		logger:     logging.OrNop(logger).With(logging.Field{Key: "component", Value: "monitor"}),
	}
}

// Run sweeps pages and returns the finished run. Per-page failures are
// recorded as outcomes; Run itself never fails.
func (r *Runner) Run(ctx context.Context, pages []model.PageCheck) *model.DetectionRun {
	run := model.NewDetectionRun(r.cfg.NewID(), r.cfg.Now())
	ctx, span := tracer.Start(ctx, "monitor.run", trace.WithAttributes(
		attribute.String("run_id", run.ID),
		attribute.Int("pages", len(pages)),
	))
	defer span.End()

	log := r.logger.With(logging.Field{Key: "run_id", Value: run.ID})
	log.Info("detection run started", logging.Field{Key: "pages", Value: len(pages)})

	for _, page := range pages {
		out := r.checkPage(ctx, log, page)
		run.Record(out)
	}
	run.Finish(r.cfg.Now())

	span.SetAttributes(
		attribute.String("status", string(run.Status)),
		attribute.Int("changes", run.ChangesFound),
		attribute.Int("errors", run.Errors),
	)
	log.Info("detection run finished",
		logging.Field{Key: "status", Value: run.Status},
		logging.Field{Key: "pages_checked", Value: run.PagesChecked},
		logging.Field{Key: "changes_found", Value: run.ChangesFound},
		logging.Field{Key: "errors", Value: run.Errors})
	return run
}

func (r *Runner) checkPage(ctx context.Context, log logging.Logger, page model.PageCheck) (out model.PageOutcome) {
	ctx, span := tracer.Start(ctx, "monitor.page", trace.WithAttributes(
		attribute.String("page_id", page.PageID),
		attribute.String("url", page.URL),
	))
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(out.Status)))
		if out.Status == model.OutcomeError {
			span.SetStatus(codes.Error, out.Error)
		}
		span.End()
	}()

	log = log.With(logging.Field{Key: "page_id", Value: page.PageID})
	out = model.PageOutcome{PageID: page.PageID, URL: page.URL}

	res := r.fetcher.FetchPage(ctx, page.URL, r.cfg.Fetch)
	if res.RobotsBlocked {
		log.Info("page blocked by robots.txt")
		out.Status, out.Error = model.OutcomeBlocked, res.Error
		return out
	}
	if !res.OK() {
		log.Warn("fetch failed", logging.Field{Key: "error", Value: res.Error})
		out.Status, out.Error = model.OutcomeError, res.Error
		return out
	}

	fp := normalizer.Normalize(res.HTML, res.ExtractedText)
	out.Fingerprint = &fp

	prev := page.Previous
	if prev == nil && r.cfg.Store != nil {
		var err error
		if prev, err = r.cfg.Store.LatestFingerprint(ctx, page.PageID); err != nil {
			log.Error("load previous fingerprint", logging.Field{Key: "error", Value: err.Error()})
			out.Status, out.Error = model.OutcomeError, fmt.Sprintf("load previous fingerprint: %v", err)
			return out
		}
	}
	defer r.saveFingerprint(ctx, log, page, fp)

	if prev == nil {
		log.Info("baseline fingerprint recorded")
		out.Status = model.OutcomeBaseline
		return out
	}

	cls := r.classifier.Classify(ctx, page.CompetitorName, page.PageType, *prev, fp)
	switch {
	case cls.Source == model.SourceHash:
		out.Status = model.OutcomeUnchanged
		return out
	case !cls.HasSignificantChange:
		log.Debug("change judged insignificant", logging.Field{Key: "summary", Value: cls.ChangeSummary})
		out.Status = model.OutcomeNoChange
		return out
	}

	rec := model.NewChangeRecord(r.cfg.NewID(), page, cls, r.cfg.Now())
	rec.Priority = string(notify.Prioritize(rec))
	rec.DiffExcerpt = DiffExcerpt(prev.CleanedText, fp.CleanedText, r.cfg.DiffChars)

	log.Info("significant change detected",
		logging.Field{Key: "change_id", Value: rec.ID},
		logging.Field{Key: "change_type", Value: rec.ChangeType},
		logging.Field{Key: "impact", Value: rec.ImpactLevel},
		logging.Field{Key: "priority", Value: rec.Priority})

	for _, sink := range r.cfg.Sinks {
		if err := sink.Publish(ctx, rec); err != nil {
			log.Warn("change sink failed",
				logging.Field{Key: "change_id", Value: rec.ID},
				logging.Field{Key: "sink", Value: fmt.Sprintf("%T", sink)},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	out.Status = model.OutcomeChanged
	out.ChangeRecordID = rec.ID
	return out
}

func (r *Runner) saveFingerprint(ctx context.Context, log logging.Logger, page model.PageCheck, fp model.PageFingerprint) {
	if r.cfg.Store == nil {
		return
	}
	if err := r.cfg.Store.SaveFingerprint(ctx, page, fp, r.cfg.Now()); err != nil {
		log.Warn("save fingerprint", logging.Field{Key: "error", Value: err.Error()})
	}
}
