// Package normalizer turns fetched markup and text into a PageFingerprint.
// Everything here is pure: the same input always yields the same output.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raysh454/rivalscope/internal/htmltext"
	"github.com/raysh454/rivalscope/internal/model"
)

const (
	maxFeatures        = 20
	maxHeadlines       = 10
	titleScanLines     = 50
	languageSampleSize = 100
)

// Normalize fingerprints one fetch. The hash covers the raw markup so any
// byte-level change invalidates the unchanged fast path. When text is empty
// it is extracted from html.
func Normalize(html, text string) model.PageFingerprint {
	if strings.TrimSpace(text) == "" {
		text = htmltext.Extract(html)
	}
	cleaned := CleanText(text)
	words := strings.Fields(cleaned)

	return model.PageFingerprint{
		ContentHash: Hash(html),
		CleanedText: cleaned,
		Extracted: model.ExtractedSignals{
			Pricing:   ExtractPricing(cleaned),
			Features:  ExtractFeatures(cleaned),
			Headlines: ExtractHeadlines(html, cleaned),
			WordCount: len(words),
			Language:  DetectLanguage(words),
		},
	}
}

// Hash is the hex SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// CleanText strips volatile fragments (dates, times, counters, cookie
// banners, loading placeholders) and collapses whitespace line by line.
// It is a projection: CleanText(CleanText(x)) == CleanText(x).
func CleanText(text string) string {
	// Removing one fragment can splice together a new match, so iterate
	// to a fixed point.
	cur := htmltext.Tidy(text)
	for range 8 {
		next := cur
		for _, r := range cleanRules {
			next = r.re.ReplaceAllString(next, " ")
		}
		next = htmltext.Tidy(next)
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

// ExtractPricing returns one entry per price or price keyword, in text order.
func ExtractPricing(cleaned string) []model.PricingEntry {
	lines := strings.Split(cleaned, "\n")
	var out []model.PricingEntry

	for i, line := range lines {
		type hit struct {
			start int
			entry model.PricingEntry
		}
		var hits []hit

		for _, m := range priceRe.FindAllStringSubmatchIndex(line, -1) {
			symbol := line[m[2]:m[3]]
			period := strings.ToLower(line[m[6]:m[7]])
			hits = append(hits, hit{m[0], model.PricingEntry{
				Plan:          planName(lines, i, line[:m[0]]),
				Price:         symbol + line[m[4]:m[5]],
				BillingPeriod: periods[period],
				Currency:      currencies[symbol],
			}})
		}
		for _, m := range priceKeywordRe.FindAllStringIndex(line, -1) {
			hits = append(hits, hit{m[0], model.PricingEntry{
				Plan:  planName(lines, i, line[:m[0]]),
				Price: strings.ToLower(line[m[0]:m[1]]),
			}})
		}

		sort.SliceStable(hits, func(a, b int) bool { return hits[a].start < hits[b].start })
		for _, h := range hits {
			out = append(out, h.entry)
		}
	}
	return out
}

// planName resolves the plan a price belongs to: a short label before it on
// the same line, else a short title line just above, else UnknownPlan.
func planName(lines []string, idx int, prefix string) string {
	if p := strings.Trim(prefix, " :-–|"); isPlanLabel(p) {
		return p
	}
	if idx > 0 {
		prev := lines[idx-1]
		if bulletRe.MatchString(prev) || numberedRe.MatchString(prev) || priceRe.MatchString(prev) {
			return model.UnknownPlan
		}
		if p := strings.Trim(prev, " :-–|"); isPlanLabel(p) {
			return p
		}
	}
	return model.UnknownPlan
}

// isPlanLabel accepts short title-case labels such as "Starter" or
// "Pro Plus".
func isPlanLabel(s string) bool {
	if s == "" || len(s) > 40 || strings.ContainsAny(s, "$€£.!?,") {
		return false
	}
	words := strings.Fields(s)
	if len(words) > 4 {
		return false
	}
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ExtractFeatures applies the bullet, numbered and label rules per line,
// keeping matches of 10-200 characters. The list marker does not count
// towards the length. No deduplication.
func ExtractFeatures(cleaned string) []model.FeatureEntry {
	var out []model.FeatureEntry
	for _, line := range strings.Split(cleaned, "\n") {
		if len(out) == maxFeatures {
			break
		}
		entry, ok := matchFeature(line)
		if !ok {
			continue
		}
		if n := utf8.RuneCountInString(featureText(entry)); n < 10 || n > 200 {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func featureText(e model.FeatureEntry) string {
	if e.Description == "" {
		return e.Title
	}
	return e.Title + ": " + e.Description
}

func matchFeature(line string) (model.FeatureEntry, bool) {
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return model.FeatureEntry{Title: strings.TrimSpace(m[1])}, true
	}
	if m := numberedRe.FindStringSubmatch(line); m != nil {
		return model.FeatureEntry{Title: strings.TrimSpace(m[1])}, true
	}
	if m := labelRe.FindStringSubmatch(line); m != nil {
		return model.FeatureEntry{Title: strings.TrimSpace(m[1]), Description: strings.TrimSpace(m[2])}, true
	}
	return model.FeatureEntry{}, false
}

// ExtractHeadlines collects h1-h6 text (5-200 chars) followed by title-like
// lines from the top of the cleaned text, deduplicated, capped at 10.
func ExtractHeadlines(html, cleaned string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(s string) {
		if len(out) == maxHeadlines {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, h := range htmltext.Headings(html) {
		if n := utf8.RuneCountInString(h); n >= 5 && n <= 200 {
			add(h)
		}
	}

	lines := strings.Split(cleaned, "\n")
	if len(lines) > titleScanLines {
		lines = lines[:titleScanLines]
	}
	for _, line := range lines {
		if isTitleLike(line) {
			add(line)
		}
	}
	return out
}

func isTitleLike(line string) bool {
	n := utf8.RuneCountInString(line)
	if n < 10 || n > 100 || strings.Contains(line, ".") {
		return false
	}
	return startsUpper(line) && len(strings.Fields(line)) < 15
}

// DetectLanguage reports "en" when more than 10% of the first 100 words are
// common English stopwords.
func DetectLanguage(words []string) string {
	if len(words) > languageSampleSize {
		words = words[:languageSampleSize]
	}
	if len(words) == 0 {
		return "unknown"
	}
	hits := 0
	for _, w := range words {
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) }))
		if _, ok := englishStopwords[w]; ok {
			hits++
		}
	}
	if float64(hits)/float64(len(words)) > 0.10 {
		return "en"
	}
	return "unknown"
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
