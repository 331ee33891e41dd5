package inference

import (
	"context"
	"fmt"
	"time"
)

// healthPrompt is a canned pricing comparison every working backend should
// flag as significant.
const healthPrompt = `Competitor: Health Check Inc
Page type: pricing
Similarity: 0.95

` + PreviousHeader + `
Headlines: Simple pricing for growing teams
Plans: Basic $10/month; Pro $20/month
Excerpt: Basic $10/month for small projects. Pro $20/month for everything.

` + CurrentHeader + `
Headlines: Simple pricing for growing teams
Plans: Basic $15/month; Pro $25/month
Excerpt: Basic $15/month for small projects. Pro $25/month for everything.

` + ResponseInstructions

// HealthReport is the outcome of one probe.
type HealthReport struct {
	Backend   string        `json:"backend"`
	OK        bool          `json:"ok"`
	Latency   time.Duration `json:"latency"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// HealthCheck sends the canned prompt and reports whether a usable verdict
// came back.
func HealthCheck(ctx context.Context, b Backend) HealthReport {
	start := time.Now()
	report := HealthReport{Backend: b.Name(), CheckedAt: start.UTC()}

	out, err := b.Analyze(ctx, healthPrompt)
	report.Latency = time.Since(start)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	if _, ok := out["hasSignificantChange"].(bool); !ok {
		report.Error = "response lacks a boolean hasSignificantChange"
		return report
	}

	report.OK = true
	report.Result = fmt.Sprintf("hasSignificantChange=%v changeType=%v", out["hasSignificantChange"], out["changeType"])
	return report
}
