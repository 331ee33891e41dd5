// Package notify ranks change records and hands them to downstream
// delivery (NATS subjects or the structured log).
package notify

import "github.com/raysh454/rivalscope/internal/model"

// Priority orders change records for delivery.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var (
	impactWeight     = map[model.Level]int{model.LevelHigh: 3, model.LevelMedium: 2, model.LevelLow: 1}
	confidenceWeight = map[model.Level]int{model.LevelHigh: 2, model.LevelMedium: 1, model.LevelLow: 0}
	typeWeight       = map[model.ChangeType]int{
		model.ChangePricing:   2,
		model.ChangeProduct:   1,
		model.ChangeFeatures:  1,
		model.ChangeMessaging: 1,
	}
)

// Prioritize scores impact, confidence and change type. A confident
// high-impact pricing change is urgent; a low-confidence low-impact edit
// is low.
func Prioritize(rec model.ChangeRecord) Priority {
	score := impactWeight[rec.ImpactLevel] + confidenceWeight[rec.Confidence] + typeWeight[rec.ChangeType]
	switch {
	case score >= 7:
		return PriorityUrgent
	case score >= 5:
		return PriorityHigh
	case score >= 3:
		return PriorityNormal
	default:
		return PriorityLow
	}
}
