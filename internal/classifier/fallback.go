package classifier

import (
	"fmt"
	"strings"

	"github.com/raysh454/rivalscope/internal/model"
)

var summaries = map[model.ChangeType]string{
	model.ChangePricing:     "Pricing information changed",
	model.ChangeFeatures:    "Feature list changed",
	model.ChangeMessaging:   "Messaging or positioning changed",
	model.ChangeProduct:     "Product announcement or update detected",
	model.ChangeIntegration: "Integration information changed",
	model.ChangeOther:       "Page content changed",
}

var fallbackImpact = map[model.ChangeType]model.Level{
	model.ChangePricing:     model.LevelHigh,
	model.ChangeFeatures:    model.LevelMedium,
	model.ChangeMessaging:   model.LevelMedium,
	model.ChangeProduct:     model.LevelMedium,
	model.ChangeIntegration: model.LevelLow,
	model.ChangeOther:       model.LevelLow,
}

var pageTypeDefaults = map[string]model.ChangeType{
	"pricing":      model.ChangePricing,
	"features":     model.ChangeFeatures,
	"product":      model.ChangeFeatures,
	"blog":         model.ChangeProduct,
	"news":         model.ChangeProduct,
	"changelog":    model.ChangeProduct,
	"homepage":     model.ChangeMessaging,
	"landing":      model.ChangeMessaging,
	"integrations": model.ChangeIntegration,
}

// Fallback classifies without a backend from the extracted signals alone.
// It always reports a significant change with low confidence: once hashes
// differ, a change is never dropped silently.
func Fallback(pageType string, prev, cur model.PageFingerprint) model.ClassificationResult {
	ct := model.ChangeOther
	var oldV, newV string

	switch {
	case pricingDiffers(prev.Extracted.Pricing, cur.Extracted.Pricing):
		ct = model.ChangePricing
		oldV, newV = priceList(prev.Extracted.Pricing), priceList(cur.Extracted.Pricing)
	case abs(len(cur.Extracted.Features)-len(prev.Extracted.Features)) > 2:
		ct = model.ChangeFeatures
		oldV = fmt.Sprintf("%d features", len(prev.Extracted.Features))
		newV = fmt.Sprintf("%d features", len(cur.Extracted.Features))
	case !sameSet(prev.Extracted.Headlines, cur.Extracted.Headlines):
		ct = model.ChangeMessaging
		oldV, newV = first(prev.Extracted.Headlines), first(cur.Extracted.Headlines)
	default:
		if def, ok := pageTypeDefaults[strings.ToLower(strings.TrimSpace(pageType))]; ok {
			ct = def
		}
	}

	return model.ClassificationResult{
		HasSignificantChange: true,
		ChangeType:           ct,
		ChangeSummary:        summaries[ct],
		Details: model.ChangeDetails{
			OldValue:    oldV,
			NewValue:    newV,
			ImpactLevel: fallbackImpact[ct],
		},
		Confidence: model.LevelLow,
		Source:     model.SourceFallback,
	}
}

func pricingDiffers(a, b []model.PricingEntry) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i].Price != b[i].Price {
			return true
		}
	}
	return false
}

func priceList(entries []model.PricingEntry) string {
	prices := make([]string, 0, len(entries))
	for _, e := range entries {
		prices = append(prices, e.Price)
	}
	return strings.Join(prices, ", ")
}

func sameSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
		other[s] = struct{}{}
	}
	return len(set) == len(other)
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
