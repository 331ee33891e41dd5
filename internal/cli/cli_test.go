package cli_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/raysh454/rivalscope/internal/cli"
	"github.com/raysh454/rivalscope/internal/model"
)

// ─── Helpers ───────────────────────────────────────────────────────────

type result struct {
	out, logs string
	err       error
}

func execute(args ...string) result {
	var out, logs bytes.Buffer
	root := cli.NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&logs)
	err := root.Execute()
	return result{out.String(), logs.String(), err}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testConfig keeps everything local and fast.
func testConfig(t *testing.T, dir string, withStore bool) string {
	t.Helper()
	body := `
logging:
  level: warn
fetcher:
  min_domain_interval: 10ms
  timeout: 5s
inference:
  provider: local
classifier:
  batch_delay: -1s
`
	if withStore {
		body += fmt.Sprintf("store:\n  path: %s\n", filepath.Join(dir, "rivalscope.db"))
	}
	return writeFile(t, dir, "rivalscope.yaml", body)
}

// competitorSite serves a mutable pricing page and a robots.txt that
// disallows /private.
type competitorSite struct {
	*httptest.Server
	mu      sync.Mutex
	pricing string
}

func newCompetitorSite(t *testing.T, pricing string) *competitorSite {
	t.Helper()
	s := &competitorSite{pricing: pricing}
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		fmt.Fprint(w, s.pricing)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "secret")
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *competitorSite) setPricing(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pricing = html
}

const (
	pricingV1 = `<html><body><h1>Pricing</h1><p>Starter $29/month</p><p>Pro $79/month</p></body></html>`
	pricingV2 = `<html><body><h1>Pricing</h1><p>Starter $39/month</p><p>Pro $99/month</p></body></html>`
)

// ─── fetch ─────────────────────────────────────────────────────────────

func TestFetch_PrintsFingerprint(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	site := newCompetitorSite(t, pricingV1)

	res := execute("fetch", site.URL+"/pricing", "--fingerprint", "--config", testConfig(t, dir, false))
	if res.err != nil {
		t.Fatalf("fetch: %v\n%s", res.err, res.logs)
	}
	var got struct {
		StatusCode  int                   `json:"statusCode"`
		Fingerprint model.PageFingerprint `json:"fingerprint"`
	}
	if err := json.Unmarshal([]byte(res.out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, res.out)
	}
	if got.StatusCode != 200 || got.Fingerprint.ContentHash == "" || len(got.Fingerprint.Extracted.Pricing) == 0 {
		t.Errorf("fingerprint = %+v", got)
	}
}

func TestFetch_RobotsBlockedExitsNonZero(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	site := newCompetitorSite(t, pricingV1)

	res := execute("fetch", site.URL+"/private", "--config", testConfig(t, dir, false))
	if res.err == nil || !strings.Contains(res.err.Error(), "robots") {
		t.Fatalf("expected robots error, got %v", res.err)
	}
	if !strings.Contains(res.out, `"robotsBlocked": true`) {
		t.Errorf("result should still be printed: %s", res.out)
	}
}

func TestFetch_RequiresURL(t *testing.T) {
	t.Parallel()
	if res := execute("fetch"); res.err == nil {
		t.Error("expected argument error")
	}
}

// ─── check ─────────────────────────────────────────────────────────────

func TestCheck_BaselineThenChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	site := newCompetitorSite(t, pricingV1)
	cfg := testConfig(t, dir, true)
	pages := writeFile(t, dir, "pages.yaml", fmt.Sprintf(`
pages:
  - id: acme-pricing
    url: %s/pricing
    competitor: Acme
    page_type: pricing
  - id: acme-private
    url: %s/private
    competitor: Acme
    page_type: homepage
`, site.URL, site.URL))

	first := execute("check", "--pages", pages, "--config", cfg)
	if first.err != nil {
		t.Fatalf("first check: %v\n%s", first.err, first.logs)
	}
	if !strings.Contains(first.out, "baseline") || !strings.Contains(first.out, "blocked") {
		t.Errorf("first run output:\n%s", first.out)
	}

	site.setPricing(pricingV2)
	second := execute("check", "--pages", pages, "--config", cfg, "--json")
	if second.err != nil {
		t.Fatalf("second check: %v\n%s", second.err, second.logs)
	}
	var run model.DetectionRun
	if err := json.Unmarshal([]byte(second.out), &run); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, second.out)
	}
	if run.ChangesFound != 1 || run.Outcomes[0].Status != model.OutcomeChanged || run.Status != model.RunCompleted {
		t.Errorf("second run = %+v", run)
	}
}

func TestCheck_InvalidPagesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing id", "pages:\n  - url: https://acme.test/\n", "id is required"},
		{"bad url", "pages:\n  - id: a\n    url: ftp://acme.test/x\n", "invalid url"},
		{"duplicate", "pages:\n  - id: a\n    url: https://a.test/\n  - id: a\n    url: https://b.test/\n", "duplicate"},
		{"unknown key", "pages:\n  - id: a\n    url: https://a.test/\n    colour: red\n", "decode pages"},
	}
	for i, tt := range tests {
		path := writeFile(t, dir, fmt.Sprintf("pages-%d.yaml", i), tt.body)
		res := execute("check", "--pages", path, "--config", testConfig(t, dir, false))
		if res.err == nil || !strings.Contains(res.err.Error(), tt.want) {
			t.Errorf("%s: err = %v, want %q", tt.name, res.err, tt.want)
		}
	}
}

func TestLoadPages(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "pages.yaml", `
pages:
  - id: acme-pricing
    url: ACME.test/pricing?utm_source=newsletter#plans
    competitor: Acme
    page_type: pricing
`)
	pages, err := cli.LoadPages(path)
	if err != nil {
		t.Fatal(err)
	}
	want := model.PageCheck{PageID: "acme-pricing", URL: "https://acme.test/pricing", CompetitorName: "Acme", PageType: "pricing"}
	if len(pages) != 1 || pages[0].URL != want.URL || pages[0].PageID != want.PageID || pages[0].CompetitorName != want.CompetitorName || pages[0].PageType != want.PageType {
		t.Errorf("pages = %+v", pages)
	}
}

// ─── eval ──────────────────────────────────────────────────────────────

func TestEval_BuiltinsPassWithLocalBackend(t *testing.T) {
	t.Parallel()
	res := execute("eval", "--config", testConfig(t, t.TempDir(), false))
	if res.err != nil {
		t.Fatalf("eval: %v\n%s", res.err, res.out)
	}
	if !strings.Contains(res.out, "5/5 passed") || !strings.Contains(res.out, "backend: local") {
		t.Errorf("output:\n%s", res.out)
	}
}

func TestEval_SingleScenarioJSON(t *testing.T) {
	t.Parallel()
	res := execute("eval", "--scenario", "pricing-increase", "--json", "--config", testConfig(t, t.TempDir(), false))
	if res.err != nil {
		t.Fatalf("eval: %v", res.err)
	}
	var report struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
	}
	if err := json.Unmarshal([]byte(res.out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Total != 1 || report.Passed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestEval_FailuresExitNonZero(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	extra := writeFile(t, dir, "extra.yaml", `
scenarios:
  - id: wrong-expectation
    page_type: homepage
    before_html: "<p>Trusted by 1,000 customers</p>"
    after_html: "<p>Trusted by 1,050 customers</p>"
    expected:
      has_significant_change: true
      change_type: pricing
      impact_level: high
`)
	res := execute("eval", "--scenarios", extra, "--config", testConfig(t, dir, false))
	if res.err == nil || !strings.Contains(res.err.Error(), "1 of 6 scenarios failed") {
		t.Fatalf("err = %v", res.err)
	}
	if !strings.Contains(res.out, "FAIL  wrong-expectation") {
		t.Errorf("output:\n%s", res.out)
	}
}

func TestEval_UnknownScenario(t *testing.T) {
	t.Parallel()
	res := execute("eval", "--scenario", "nope", "--config", testConfig(t, t.TempDir(), false))
	if res.err == nil || !strings.Contains(res.err.Error(), "nope") {
		t.Errorf("err = %v", res.err)
	}
}

// ─── health ────────────────────────────────────────────────────────────

func TestHealth_LocalBackend(t *testing.T) {
	t.Parallel()
	res := execute("health", "--config", testConfig(t, t.TempDir(), false))
	if res.err != nil {
		t.Fatalf("health: %v", res.err)
	}
	if !strings.Contains(res.out, `"ok": true`) || !strings.Contains(res.out, `"backend": "local"`) {
		t.Errorf("output:\n%s", res.out)
	}
}

func TestInvalidConfigIsAnError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeFile(t, dir, "bad.yaml", "inference:\n  provider: mystery\n")
	if res := execute("health", "--config", cfg); res.err == nil {
		t.Error("expected config error")
	}
}
