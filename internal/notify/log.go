package notify

import (
	"context"

	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
)

// LogSink writes one structured log line per change record.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger).With(logging.Field{Key: "component", Value: "notify.log"})}
}

func (s *LogSink) Publish(_ context.Context, rec model.ChangeRecord) error {
	s.logger.Info("competitor change detected",
		logging.Field{Key: "id", Value: rec.ID},
		logging.Field{Key: "competitor", Value: rec.CompetitorName},
		logging.Field{Key: "url", Value: rec.URL},
		logging.Field{Key: "change_type", Value: rec.ChangeType},
		logging.Field{Key: "impact", Value: rec.ImpactLevel},
		logging.Field{Key: "confidence", Value: rec.Confidence},
		logging.Field{Key: "priority", Value: rec.Priority},
		logging.Field{Key: "summary", Value: rec.ChangeSummary},
	)
	return nil
}
