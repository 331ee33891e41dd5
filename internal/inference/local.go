package inference

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Section headers shared with the prompt builder.
const (
	PreviousHeader = "PREVIOUS VERSION"
	CurrentHeader  = "CURRENT VERSION"
)

// longPromptChars is the size above which the local backend treats an
// otherwise unrecognized comparison as significant.
const longPromptChars = 3000

var (
	dollarRe   = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`)
	dateRe     = regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}\b`)
	countRe    = regexp.MustCompile(`(?i)\b\d[\d,]*\+?\s+(?:customers|users|companies|teams|businesses|clients)\b`)
	minorVeto  = regexp.MustCompile(`(?i)feature|capabilit|pricing|price|announc|launch|introduc`)
	productRe  = regexp.MustCompile(`(?i)announcing|platform update|product launch`)
	upmarketRe = regexp.MustCompile(`(?i)enterprise|large organi[sz]ations|fortune 500`)
	smallRe    = regexp.MustCompile(`(?i)small (?:teams?|business(?:es)?)|startups?|freelancers?|individuals`)
	featureRe  = regexp.MustCompile(`(?i)feature|capabilit`)
	newnessRe  = regexp.MustCompile(`(?i)\bnew\b|introduc`)
	pricingRe  = regexp.MustCompile(`(?i)price|pricing|plan`)
)

// LocalBackend is a deterministic keyword-rule classifier used when no
// hosted backend is configured. It needs no network.
type LocalBackend struct{}

func NewLocalBackend() *LocalBackend { return &LocalBackend{} }

func (LocalBackend) Name() string { return ProviderLocal }

func (LocalBackend) Analyze(ctx context.Context, prompt string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Backend: ProviderLocal, Err: err}
	}

	content := prompt
	if i := strings.Index(prompt, InstructionsHeader); i >= 0 {
		content = prompt[:i]
	}
	before, after := splitVersions(content)

	// Rules are checked in order; the first match wins.
	if amounts := dollarRe.FindAllString(content, -1); len(amounts) >= 2 && pricingRe.MatchString(content) {
		impact := "medium"
		if len(distinct(amounts)) >= 2 {
			impact = "high"
		}
		oldV := strings.Join(distinct(dollarRe.FindAllString(before, -1)), ", ")
		newV := strings.Join(distinct(dollarRe.FindAllString(after, -1)), ", ")
		return verdict(true, "pricing", fmt.Sprintf("Pricing changed from %s to %s", orNone(oldV), orNone(newV)),
			oldV, newV, impact, "high",
			"Competitor repriced; review our positioning against the new price points."), nil
	}

	if (dateRe.MatchString(content) || countRe.MatchString(content)) && !minorVeto.MatchString(content) {
		return verdict(false, "other", "Only dates or customer counts changed",
			"", "", "low", "high", ""), nil
	}

	if m := productRe.FindString(content); m != "" {
		return verdict(true, "product", "Competitor published a product announcement",
			"", firstLineWith(after, m), "high", "high",
			"A new product release may shift buyer expectations."), nil
	}

	if upmarketRe.MatchString(content) && smallRe.MatchString(content) {
		return verdict(true, "messaging", "Target audience messaging shifted between small teams and enterprise",
			firstLineWith(before, ""), firstLineWith(after, ""), "high", "medium",
			"Competitor is repositioning its target segment."), nil
	}

	if featureRe.MatchString(content) && newnessRe.MatchString(content) {
		return verdict(true, "features", "New feature introduced",
			"", "", "medium", "medium", ""), nil
	}

	if len(prompt) > longPromptChars {
		return verdict(true, "other", "Substantial content change", "", "", "medium", "low", ""), nil
	}
	return verdict(false, "other", "No significant change detected", "", "", "low", "low", ""), nil
}

func verdict(significant bool, changeType, summary, oldV, newV, impact, confidence, analysis string) map[string]any {
	out := map[string]any{
		"hasSignificantChange": significant,
		"changeType":           changeType,
		"changeSummary":        summary,
		"details": map[string]any{
			"oldValue":    oldV,
			"newValue":    newV,
			"impactLevel": impact,
		},
		"confidence": confidence,
	}
	if analysis != "" {
		out["competitiveAnalysis"] = analysis
	}
	return out
}

func splitVersions(content string) (before, after string) {
	i := strings.Index(content, CurrentHeader)
	if i < 0 {
		return content, content
	}
	before = content[:i]
	if j := strings.Index(before, PreviousHeader); j >= 0 {
		before = before[j:]
	}
	return before, content[i:]
}

// firstLineWith returns the first "Headlines:" or "Excerpt:" value in
// section containing needle (any line when needle is empty).
func firstLineWith(section, needle string) string {
	for _, line := range strings.Split(section, "\n") {
		_, val, ok := strings.Cut(line, ": ")
		if !ok || (!strings.HasPrefix(line, "Headlines:") && !strings.HasPrefix(line, "Excerpt:")) {
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(val), strings.ToLower(needle)) {
			return snippet(strings.TrimSpace(val), 120)
		}
	}
	return ""
}

func distinct(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.ReplaceAll(s, " ", "")
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
