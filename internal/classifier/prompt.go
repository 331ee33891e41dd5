package classifier

import (
	"fmt"
	"strings"

	"github.com/raysh454/rivalscope/internal/inference"
	"github.com/raysh454/rivalscope/internal/model"
)

const (
	promptHeadlines = 3
	promptPlans     = 5
	promptFeatures  = 5
)

// BuildPrompt renders the comparison prompt sent to the backend.
func (c *Classifier) BuildPrompt(competitor, pageType string, prev, cur model.PageFingerprint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Competitor: %s\n", competitor)
	fmt.Fprintf(&b, "Page type: %s\n", pageType)
	fmt.Fprintf(&b, "Similarity: %.2f\n\n", Similarity(prev, cur))

	writeSnapshot(&b, inference.PreviousHeader, prev, c.cfg.ExcerptChars)
	writeSnapshot(&b, inference.CurrentHeader, cur, c.cfg.ExcerptChars)

	b.WriteString(inference.ResponseInstructions)
	b.WriteString("\n")
	return b.String()
}

func writeSnapshot(b *strings.Builder, header string, fp model.PageFingerprint, excerptChars int) {
	b.WriteString(header)
	b.WriteString("\n")
	fmt.Fprintf(b, "Headlines: %s\n", orNone(strings.Join(head(fp.Extracted.Headlines, promptHeadlines), " | ")))

	var plans []string
	for _, p := range fp.Extracted.Pricing {
		if p.Currency == "" {
			continue
		}
		s := p.Plan + " " + p.Price
		if p.BillingPeriod != "" {
			s += "/" + p.BillingPeriod
		}
		plans = append(plans, s)
		if len(plans) == promptPlans {
			break
		}
	}
	fmt.Fprintf(b, "Plans: %s\n", orNone(strings.Join(plans, "; ")))

	var items []string
	for _, f := range fp.Extracted.Features {
		s := f.Title
		if f.Description != "" {
			s += ": " + f.Description
		}
		items = append(items, s)
		if len(items) == promptFeatures {
			break
		}
	}
	fmt.Fprintf(b, "Items: %s\n", orNone(strings.Join(items, "; ")))

	excerpt := strings.ReplaceAll(fp.CleanedText, "\n", " ")
	fmt.Fprintf(b, "Excerpt: %s\n\n", orNone(truncate(excerpt, excerptChars)))
}

// Similarity is the ratio of the smaller to the larger word count; 1 when
// both are empty.
func Similarity(prev, cur model.PageFingerprint) float64 {
	a, b := prev.Extracted.WordCount, cur.Extracted.WordCount
	if a == 0 && b == 0 {
		return 1
	}
	lo, hi := min(a, b), max(a, b)
	return float64(lo) / float64(hi)
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
