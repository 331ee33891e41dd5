package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
)

// BatchItem is one comparison in a batch.
type BatchItem struct {
	ID         string
	Competitor string
	PageType   string
	Previous   model.PageFingerprint
	Current    model.PageFingerprint
}

// BatchResult pairs an item id with its classification.
type BatchResult struct {
	ID     string                     `json:"id"`
	Result model.ClassificationResult `json:"result"`
}

// ClassifyBatch classifies items in order, waiting BatchDelay between
// backend calls. An item that fails or is cut short by ctx is recorded with
// low confidence and the batch carries on.
func (c *Classifier) ClassifyBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, 0, len(items))
	calledBackend := false

	for _, item := range items {
		if calledBackend && c.cfg.BatchDelay > 0 {
			if err := sleep(ctx, c.cfg.BatchDelay); err != nil {
				c.logger.Warn("batch item skipped", logging.Field{Key: "id", Value: item.ID}, logging.Field{Key: "error", Value: err.Error()})
				results = append(results, BatchResult{ID: item.ID, Result: failed(err)})
				continue
			}
		}

		res := c.classifySafe(ctx, item)
		calledBackend = res.Source == model.SourceInference || res.Source == model.SourceFallback
		results = append(results, BatchResult{ID: item.ID, Result: res})
	}
	return results
}

func (c *Classifier) classifySafe(ctx context.Context, item BatchItem) (res model.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("classification panicked: %v", r)
			c.logger.Error("batch item failed", logging.Field{Key: "id", Value: item.ID}, logging.Field{Key: "error", Value: err.Error()})
			res = failed(err)
		}
	}()
	return c.Classify(ctx, item.Competitor, item.PageType, item.Previous, item.Current)
}

func failed(err error) model.ClassificationResult {
	return model.ClassificationResult{
		HasSignificantChange: false,
		ChangeType:           model.ChangeOther,
		ChangeSummary:        "Classification failed: " + err.Error(),
		Details:              model.ChangeDetails{ImpactLevel: model.LevelLow},
		Confidence:           model.LevelLow,
		Source:               model.SourceError,
		Error:                err.Error(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
