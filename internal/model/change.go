package model

import (
	"strings"
	"time"
)

// ChangeType is the business category of a detected change.
type ChangeType string

const (
	ChangePricing     ChangeType = "pricing"
	ChangeFeatures    ChangeType = "features"
	ChangeMessaging   ChangeType = "messaging"
	ChangeProduct     ChangeType = "product"
	ChangeIntegration ChangeType = "integration"
	ChangeOther       ChangeType = "other"
)

// ChangeTypes lists every valid ChangeType.
var ChangeTypes = []ChangeType{ChangePricing, ChangeFeatures, ChangeMessaging, ChangeProduct, ChangeIntegration, ChangeOther}

// ParseChangeType maps s onto a ChangeType. ok is false when s is not one of
// the enumerated values; the returned type is then ChangeOther.
func ParseChangeType(s string) (ChangeType, bool) {
	ct := ChangeType(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ChangeTypes {
		if v == ct {
			return ct, true
		}
	}
	return ChangeOther, false
}

// Level is the shared high/medium/low bucket used for impact and confidence.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// ParseLevel maps s onto a Level, returning def when s is not valid.
func ParseLevel(s string, def Level) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelHigh:
		return LevelHigh
	case LevelMedium:
		return LevelMedium
	case LevelLow:
		return LevelLow
	default:
		return def
	}
}

// Source records which path produced a ClassificationResult.
type Source string

const (
	SourceHash      Source = "hash"
	SourceInference Source = "inference"
	SourceFallback  Source = "fallback"
	SourceError     Source = "error"
)

// ChangeDetails carries before/after values and the impact bucket.
type ChangeDetails struct {
	OldValue    string `json:"oldValue,omitempty"`
	NewValue    string `json:"newValue,omitempty"`
	ImpactLevel Level  `json:"impactLevel"`
}

// ClassificationResult is the outcome of comparing two fingerprints.
type ClassificationResult struct {
	HasSignificantChange bool          `json:"hasSignificantChange"`
	ChangeType           ChangeType    `json:"changeType"`
	ChangeSummary        string        `json:"changeSummary"`
	Details              ChangeDetails `json:"details"`
	Confidence           Level         `json:"confidence"`
	CompetitiveAnalysis  string        `json:"competitiveAnalysis,omitempty"`
	Source               Source        `json:"source"`
	Error                string        `json:"error,omitempty"`
}

// ChangeRecord is emitted only when content hashes differ and the
// classifier judged the difference significant.
type ChangeRecord struct {
	ID                  string     `json:"id"`
	PageID              string     `json:"pageId"`
	URL                 string     `json:"url,omitempty"`
	CompetitorName      string     `json:"competitorName,omitempty"`
	ChangeType          ChangeType `json:"changeType"`
	ChangeSummary       string     `json:"changeSummary"`
	OldValue            *string    `json:"oldValue,omitempty"`
	NewValue            *string    `json:"newValue,omitempty"`
	ImpactLevel         Level      `json:"impactLevel"`
	Confidence          Level      `json:"confidence"`
	CompetitiveAnalysis *string    `json:"competitiveAnalysis,omitempty"`
	Priority            string     `json:"priority,omitempty"`
	DiffExcerpt         string     `json:"diffExcerpt,omitempty"`
	DetectedAt          time.Time  `json:"detectedAt"`
}

// NewChangeRecord builds a record from a significant classification.
// Empty optional strings stay nil.
func NewChangeRecord(id string, page PageCheck, res ClassificationResult, at time.Time) ChangeRecord {
	return ChangeRecord{
		ID:                  id,
		PageID:              page.PageID,
		URL:                 page.URL,
		CompetitorName:      page.CompetitorName,
		ChangeType:          res.ChangeType,
		ChangeSummary:       res.ChangeSummary,
		OldValue:            optional(res.Details.OldValue),
		NewValue:            optional(res.Details.NewValue),
		ImpactLevel:         res.Details.ImpactLevel,
		Confidence:          res.Confidence,
		CompetitiveAnalysis: optional(res.CompetitiveAnalysis),
		DetectedAt:          at.UTC(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
