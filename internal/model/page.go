package model

// UnknownPlan is used when a price cannot be tied to a plan name.
const UnknownPlan = "Unknown Plan"

// PricingEntry is one price-like match found in page text. Extraction is
// price-centric: the same plan may appear more than once.
type PricingEntry struct {
	Plan          string `json:"plan" yaml:"plan"`
	Price         string `json:"price" yaml:"price"`
	BillingPeriod string `json:"billingPeriod" yaml:"billingPeriod"`
	Currency      string `json:"currency" yaml:"currency"`
}

// FeatureEntry is a bullet, numbered item or "Label: text" line.
type FeatureEntry struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// ExtractedSignals are best-effort structured hints derived from cleaned
// text. They feed prompts and heuristics and are never ground truth.
type ExtractedSignals struct {
	Pricing   []PricingEntry `json:"pricing" yaml:"pricing"`
	Features  []FeatureEntry `json:"features" yaml:"features"`
	Headlines []string       `json:"headlines" yaml:"headlines"`
	WordCount int            `json:"wordCount" yaml:"wordCount"`
	Language  string         `json:"language" yaml:"language"`
}

// PageFingerprint is the normalized form of one successful fetch.
// ContentHash is taken over the raw markup, not the cleaned text.
type PageFingerprint struct {
	ContentHash string           `json:"contentHash" yaml:"contentHash"`
	CleanedText string           `json:"cleanedText" yaml:"cleanedText"`
	Extracted   ExtractedSignals `json:"extracted" yaml:"extracted"`
}

// PageCheck is one unit of work handed to a detection run.
type PageCheck struct {
	PageID         string           `json:"pageId" yaml:"id"`
	URL            string           `json:"url" yaml:"url"`
	CompetitorName string           `json:"competitorName" yaml:"competitor"`
	PageType       string           `json:"pageType" yaml:"page_type"`
	Previous       *PageFingerprint `json:"previous,omitempty" yaml:"-"`
}
