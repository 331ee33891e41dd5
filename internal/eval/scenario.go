package eval

import "github.com/raysh454/rivalscope/internal/model"

// Expectation is the hand label a scenario is scored against.
type Expectation struct {
	HasSignificantChange bool             `json:"hasSignificantChange" yaml:"has_significant_change"`
	ChangeType           model.ChangeType `json:"changeType" yaml:"change_type"`
	ImpactLevel          model.Level      `json:"impactLevel" yaml:"impact_level"`
}

// Scenario pairs before/after markup with the expected verdict.
type Scenario struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	PageType   string      `json:"pageType" yaml:"page_type"`
	Competitor string      `json:"competitor" yaml:"competitor"`
	BeforeHTML string      `json:"beforeHtml" yaml:"before_html"`
	AfterHTML  string      `json:"afterHtml" yaml:"after_html"`
	Expected   Expectation `json:"expected" yaml:"expected"`
}

// BuiltinScenarios returns the scenarios every harness starts with.
func BuiltinScenarios() []Scenario {
	return []Scenario{
		{
			ID:         "pricing-increase",
			Name:       "Pricing increase",
			PageType:   "pricing",
			Competitor: "Acme Analytics",
			BeforeHTML: `<html><body>
<h1>Simple pricing</h1>
<div class="plan"><h3>Starter</h3><p>$29/mo</p><ul><li>Up to 5 dashboards</li></ul></div>
<div class="plan"><h3>Professional</h3><p>$79/mo</p><ul><li>Unlimited dashboards</li></ul></div>
</body></html>`,
			AfterHTML: `<html><body>
<h1>Simple pricing</h1>
<div class="plan"><h3>Starter</h3><p>$39/mo</p><ul><li>Up to 5 dashboards</li></ul></div>
<div class="plan"><h3>Professional</h3><p>$99/mo</p><ul><li>Unlimited dashboards</li></ul></div>
</body></html>`,
			Expected: Expectation{HasSignificantChange: true, ChangeType: model.ChangePricing, ImpactLevel: model.LevelHigh},
		},
		{
			ID:         "feature-announcement",
			Name:       "New feature announcement",
			PageType:   "features",
			Competitor: "Taskly",
			BeforeHTML: `<html><body>
<h1>Everything you need to plan work</h1>
<ul><li>Task lists for every project</li><li>Shared calendars and reminders</li></ul>
</body></html>`,
			AfterHTML: `<html><body>
<h1>Everything you need to plan work</h1>
<h2>Introducing Smart Automations</h2>
<p>Our new automation feature takes repetitive work off your plate.</p>
<ul><li>Task lists for every project</li><li>Shared calendars and reminders</li></ul>
</body></html>`,
			Expected: Expectation{HasSignificantChange: true, ChangeType: model.ChangeFeatures, ImpactLevel: model.LevelMedium},
		},
		{
			ID:         "messaging-overhaul",
			Name:       "Messaging and positioning overhaul",
			PageType:   "homepage",
			Competitor: "Taskly",
			BeforeHTML: `<html><body>
<h1>The simple project tool for small teams</h1>
<p>Get your crew organized in an afternoon.</p>
</body></html>`,
			AfterHTML: `<html><body>
<h1>The work platform for the enterprise</h1>
<p>Scale securely across large organizations with governance built in.</p>
</body></html>`,
			Expected: Expectation{HasSignificantChange: true, ChangeType: model.ChangeMessaging, ImpactLevel: model.LevelHigh},
		},
		{
			ID:         "minor-update",
			Name:       "Minor cosmetic update",
			PageType:   "homepage",
			Competitor: "Acme Analytics",
			BeforeHTML: `<html><body>
<h1>Dashboards your whole company understands</h1>
<p>Trusted by 1,000 customers</p>
<p>Last updated: January 5, 2024</p>
</body></html>`,
			AfterHTML: `<html><body>
<h1>Dashboards your whole company understands</h1>
<p>Trusted by 1,050 customers</p>
<p>Last updated: February 12, 2024</p>
</body></html>`,
			Expected: Expectation{HasSignificantChange: false, ChangeType: model.ChangeOther, ImpactLevel: model.LevelLow},
		},
		{
			ID:         "blog-product-announcement",
			Name:       "Blog product announcement",
			PageType:   "blog",
			Competitor: "Acme Analytics",
			BeforeHTML: `<html><body>
<h1>Acme Blog</h1>
<article><h2>Five tips for better weekly reviews</h2><p>Small habits that keep reporting honest.</p></article>
</body></html>`,
			AfterHTML: `<html><body>
<h1>Acme Blog</h1>
<article><h2>Announcing Acme Cloud</h2><p>Today we are opening Acme Cloud to everyone.</p></article>
<article><h2>Five tips for better weekly reviews</h2><p>Small habits that keep reporting honest.</p></article>
</body></html>`,
			Expected: Expectation{HasSignificantChange: true, ChangeType: model.ChangeProduct, ImpactLevel: model.LevelHigh},
		},
	}
}
