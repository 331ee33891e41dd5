package normalizer

import "regexp"

// cleanRule removes volatile fragments from page text. Rules run in order;
// a rule that matches a whole line leaves an empty line that is dropped
// afterwards.
type cleanRule struct {
	name string
	re   *regexp.Regexp
}

const (
	monthName = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?`
	datePat   = `(?:\d{4}-\d{2}-\d{2}(?:t[\d:.]+z?)?` +
		`|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}` +
		`|` + monthName + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
		`|\d{1,2}(?:st|nd|rd|th)?\s+` + monthName + `,?\s+\d{4})`
	agoPat = `\d+\s+(?:seconds?|minutes?|mins?|hours?|hrs?|days?|weeks?|months?|years?)\s+ago`
)

var cleanRules = []cleanRule{
	{"timestamp phrase", regexp.MustCompile(`(?i)\b(?:last\s+)?(?:updated|posted|published|modified)(?:\s+(?:on|at))?\s*:?\s*(?:` + datePat + `|` + agoPat + `)`)},
	{"relative time", regexp.MustCompile(`(?i)\b` + agoPat + `\b`)},
	{"date", regexp.MustCompile(`(?i)\b` + datePat + `\b`)},
	{"time", regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?::\d{2})?(?:\s*[ap]\.?m\.?)?(?:\s*(?:utc|gmt|[ecmp][sd]t))?\b`)},
	{"engagement counter", regexp.MustCompile(`(?i)\b\d[\d,.]*\s*[km]?\s*(?:views?|likes?|shares?|comments?|reactions?|followers?)\b`)},
	{"cookie boilerplate", regexp.MustCompile(`(?im)^.*\b(?:we use cookies|this (?:site|website) uses cookies|accept (?:all )?cookies|cookie (?:policy|settings|preferences))\b.*$`)},
	{"privacy boilerplate", regexp.MustCompile(`(?im)^.*\b(?:privacy policy|terms of (?:service|use)|all rights reserved)\b.*$`)},
	{"copyright", regexp.MustCompile(`(?i)(?:©|\(c\)|copyright)\s*\d{4}(?:\s*[-–]\s*\d{4})?`)},
	{"loading placeholder", regexp.MustCompile(`(?i)\b(?:loading|please wait)\s*(?:\.{2,}|…)`)},
}

// Pricing extraction. Amount rules capture symbol, amount and period; the
// keyword rule captures words that stand in for a price.
var (
	priceRe        = regexp.MustCompile(`(?i)([$€£])\s?(\d[\d,]*(?:\.\d{1,2})?)\s*(?:/\s*|per\s+|a\s+)(month|mo|year|yr|annum|week|wk|day|user|seat)\b`)
	priceKeywordRe = regexp.MustCompile(`(?i)\b(free trial|contact sales|free|trial|demo|custom|enterprise)\b`)
)

var currencies = map[string]string{"$": "USD", "€": "EUR", "£": "GBP"}

var periods = map[string]string{
	"month": "month", "mo": "month",
	"year": "year", "yr": "year", "annum": "year",
	"week": "week", "wk": "week",
	"day": "day",
	"user": "user", "seat": "user",
}

// Feature extraction, tried in order per line.
var (
	bulletRe   = regexp.MustCompile(`^[•\-*–·✓✔►▪]\s*(.+)$`)
	numberedRe = regexp.MustCompile(`^\d{1,2}[.)]\s+(.+)$`)
	labelRe    = regexp.MustCompile(`^([A-Z][\w &/+-]{1,40}):\s+(.+)$`)
)

var englishStopwords = map[string]struct{}{
	"a": {}, "about": {}, "all": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "but": {}, "by": {}, "can": {}, "do": {}, "for": {}, "from": {}, "get": {},
	"has": {}, "have": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "its": {}, "more": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "out": {}, "so": {}, "than": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {},
	"up": {}, "us": {}, "was": {}, "we": {}, "what": {}, "when": {}, "which": {},
	"who": {}, "will": {}, "with": {}, "you": {}, "your": {},
}
