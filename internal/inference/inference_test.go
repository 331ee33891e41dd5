package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/rivalscope/internal/inference"
	"github.com/raysh454/rivalscope/internal/testutil"
)

func comparisonPrompt(prev, cur string) string {
	return "Competitor: Acme\nPage type: homepage\nSimilarity: 0.90\n\n" +
		inference.PreviousHeader + "\n" + prev + "\n\n" +
		inference.CurrentHeader + "\n" + cur + "\n\n" +
		inference.ResponseInstructions
}

// ─── ParseResponse ─────────────────────────────────────────────────────

func TestParseResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain", `{"hasSignificantChange": true}`, false},
		{"json fence", "```json\n{\"hasSignificantChange\": false}\n```", false},
		{"bare fence", "```\n{\"a\": 1}\n```", false},
		{"padded", "  \n{\"a\": 1}\n  ", false},
		{"not json", "I think the pricing changed.", true},
		{"array", `[1, 2]`, true},
		{"null", `null`, true},
		{"empty", "   ", true},
	}
	for _, tt := range tests {
		out, err := inference.ParseResponse("test", tt.raw)
		if tt.wantErr {
			var pe *inference.ParseError
			if !errors.As(err, &pe) {
				t.Errorf("%s: expected *ParseError, got %v", tt.name, err)
				continue
			}
			if pe.Raw != tt.raw || pe.Backend != "test" {
				t.Errorf("%s: ParseError lost context: %+v", tt.name, pe)
			}
			continue
		}
		if err != nil || out == nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
	}
}

// ─── Local backend ─────────────────────────────────────────────────────

func TestLocalBackend_Rules(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		prev, cur   string
		significant bool
		changeType  string
		impact      string
		confidence  string
	}{
		{
			name:        "price change",
			prev:        "Plans: Starter $29/month; Professional $79/month",
			cur:         "Plans: Starter $39/month; Professional $99/month",
			significant: true, changeType: "pricing", impact: "high", confidence: "high",
		},
		{
			name:        "customer count only",
			prev:        "Excerpt: Trusted by 1,000 customers",
			cur:         "Excerpt: Trusted by 1,050 customers",
			significant: false, changeType: "other", impact: "low", confidence: "high",
		},
		{
			name:        "announcement",
			prev:        "Headlines: Our blog",
			cur:         "Headlines: Announcing Acme Cloud",
			significant: true, changeType: "product", impact: "high", confidence: "high",
		},
		{
			name:        "audience shift",
			prev:        "Excerpt: Built for small teams",
			cur:         "Excerpt: Built for enterprise",
			significant: true, changeType: "messaging", impact: "high", confidence: "medium",
		},
		{
			name:        "new feature",
			prev:        "Excerpt: Task lists",
			cur:         "Excerpt: Introducing a new automation feature",
			significant: true, changeType: "features", impact: "medium", confidence: "medium",
		},
		{
			name:        "short unrecognized",
			prev:        "Excerpt: Hello",
			cur:         "Excerpt: Hi there",
			significant: false, changeType: "other", impact: "low", confidence: "low",
		},
		{
			name:        "long unrecognized",
			prev:        "Excerpt: " + strings.Repeat("lorem ipsum ", 150),
			cur:         "Excerpt: " + strings.Repeat("dolor sit amet ", 150),
			significant: true, changeType: "other", impact: "medium", confidence: "low",
		},
	}

	b := inference.NewLocalBackend()
	for _, tt := range tests {
		out, err := b.Analyze(context.Background(), comparisonPrompt(tt.prev, tt.cur))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		details := out["details"].(map[string]any)
		if out["hasSignificantChange"] != tt.significant ||
			out["changeType"] != tt.changeType ||
			details["impactLevel"] != tt.impact ||
			out["confidence"] != tt.confidence {
			t.Errorf("%s: got %+v", tt.name, out)
		}
	}
}

func TestLocalBackend_PricingValues(t *testing.T) {
	t.Parallel()
	out, _ := inference.NewLocalBackend().Analyze(context.Background(),
		comparisonPrompt("Plans: Starter $29/month", "Plans: Starter $39/month"))

	details := out["details"].(map[string]any)
	if details["oldValue"] != "$29" || details["newValue"] != "$39" {
		t.Errorf("details = %+v", details)
	}
}

func TestLocalBackend_IgnoresInstructionKeywords(t *testing.T) {
	t.Parallel()
	// The instructions mention pricing and features; they must not trigger rules.
	out, _ := inference.NewLocalBackend().Analyze(context.Background(),
		comparisonPrompt("Excerpt: Hello", "Excerpt: Hello again"))
	if out["hasSignificantChange"] != false {
		t.Errorf("instructions leaked into rule matching: %+v", out)
	}
}

func TestLocalBackend_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inference.NewLocalBackend().Analyze(ctx, "x")
	var te *inference.TransportError
	if !errors.As(err, &te) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

// ─── OpenAI backend ────────────────────────────────────────────────────

func openAIServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if rf, _ := req["response_format"].(map[string]any); rf["type"] != "json_object" {
			t.Errorf("response_format = %v", req["response_format"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []any{map[string]any{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
}

func TestOpenAIBackend_Analyze(t *testing.T) {
	t.Parallel()
	srv := openAIServer(t, http.StatusOK, "```json\n{\"hasSignificantChange\": true, \"changeType\": \"pricing\"}\n```")
	defer srv.Close()

	b := inference.NewOpenAIBackend(inference.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	out, err := b.Analyze(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out["changeType"] != "pricing" {
		t.Errorf("out = %+v", out)
	}
	if b.Name() != "openai" {
		t.Errorf("Name = %q", b.Name())
	}
}

func TestOpenAIBackend_Errors(t *testing.T) {
	t.Parallel()

	srv := openAIServer(t, http.StatusTooManyRequests, "")
	defer srv.Close()
	_, err := inference.NewOpenAIBackend(inference.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}).
		Analyze(context.Background(), "prompt")
	var te *inference.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 TransportError, got %v", err)
	}

	bad := openAIServer(t, http.StatusOK, "not json at all")
	defer bad.Close()
	_, err = inference.NewOpenAIBackend(inference.Config{APIKey: "sk-test", BaseURL: bad.URL + "/v1"}).
		Analyze(context.Background(), "prompt")
	var pe *inference.ParseError
	if !errors.As(err, &pe) || pe.Raw != "not json at all" {
		t.Errorf("expected ParseError, got %v", err)
	}
}

// ─── Anthropic backend ─────────────────────────────────────────────────

func TestAnthropicBackend_Analyze(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "ak-test" || r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("bad headers: %v", r.Header)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] == "" || req["max_tokens"] == nil {
			t.Errorf("request = %+v", req)
		}
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"{\"hasSignificantChange\":"},{"type":"text","text":" false}"}]}`)
	}))
	defer srv.Close()

	b := inference.NewAnthropicBackend(inference.Config{APIKey: "ak-test", BaseURL: srv.URL})
	out, err := b.Analyze(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out["hasSignificantChange"] != false {
		t.Errorf("out = %+v", out)
	}
}

func TestAnthropicBackend_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`, "transport"},
		{"error object", http.StatusOK, `{"error":{"type":"overloaded_error","message":"busy"}}`, "transport"},
		{"prose reply", http.StatusOK, `{"content":[{"type":"text","text":"Looks like a price change."}]}`, "parse"},
		{"garbage body", http.StatusOK, `<html>`, "parse"},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, tt.body)
		}))
		_, err := inference.NewAnthropicBackend(inference.Config{APIKey: "k", BaseURL: srv.URL}).
			Analyze(context.Background(), "prompt")
		srv.Close()

		var te *inference.TransportError
		var pe *inference.ParseError
		switch tt.wantKind {
		case "transport":
			if !errors.As(err, &te) {
				t.Errorf("%s: expected TransportError, got %v", tt.name, err)
			}
		case "parse":
			if !errors.As(err, &pe) {
				t.Errorf("%s: expected ParseError, got %v", tt.name, err)
			}
		}
	}
}

func TestAnthropicBackend_Unreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := inference.NewAnthropicBackend(inference.Config{APIKey: "k", BaseURL: url, Timeout: time.Second}).
		Analyze(context.Background(), "prompt")
	var te *inference.TransportError
	if !errors.As(err, &te) || te.StatusCode != 0 {
		t.Errorf("expected status-less TransportError, got %v", err)
	}
}

// ─── Select ────────────────────────────────────────────────────────────

func TestSelect(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	tests := []struct {
		name     string
		cfg      inference.Config
		wantName string
		wantWarn bool
		wantErr  bool
	}{
		{"empty means local", inference.Config{}, "local", false, false},
		{"explicit local", inference.Config{Provider: "local"}, "local", false, false},
		{"openai with key", inference.Config{Provider: "OpenAI", APIKey: "k"}, "openai", false, false},
		{"anthropic with key", inference.Config{Provider: "anthropic", APIKey: "k"}, "anthropic", false, false},
		{"openai missing key", inference.Config{Provider: "openai"}, "local", true, false},
		{"anthropic missing key", inference.Config{Provider: "anthropic"}, "local", true, false},
		{"unknown", inference.Config{Provider: "gemini"}, "", false, true},
	}
	for _, tt := range tests {
		logger := &testutil.DummyLogger{}
		b, err := inference.Select(tt.cfg, logger)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if b.Name() != tt.wantName {
			t.Errorf("%s: Name = %q, want %q", tt.name, b.Name(), tt.wantName)
		}
		if got := logger.WarnCount() > 0; got != tt.wantWarn {
			t.Errorf("%s: warned = %v, want %v", tt.name, got, tt.wantWarn)
		}
	}
}

func TestSelect_CredentialFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	b, err := inference.Select(inference.Config{Provider: "anthropic"}, nil)
	if err != nil || b.Name() != "anthropic" {
		t.Fatalf("Select = %v, %v", b, err)
	}
}

func TestSelect_RateLimitedWrapper(t *testing.T) {
	b, err := inference.Select(inference.Config{Provider: "openai", APIKey: "k", RequestsPerMinute: 30}, nil)
	if err != nil {
		t.Fatal(err)
	}
	rl, ok := b.(*inference.RateLimited)
	if !ok {
		t.Fatalf("expected *RateLimited, got %T", b)
	}
	if rl.Name() != "openai" {
		t.Errorf("Name = %q", rl.Name())
	}
	if _, ok := rl.Unwrap().(*inference.OpenAIBackend); !ok {
		t.Errorf("inner = %T", rl.Unwrap())
	}
}

func TestRateLimited_SpacesCalls(t *testing.T) {
	t.Parallel()
	spy := &testutil.SpyBackend{Response: map[string]any{"hasSignificantChange": false}}
	rl := inference.NewRateLimited(spy, 600) // one call per 100ms

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := rl.Analyze(context.Background(), "p"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("3 calls took %v, expected throttling", elapsed)
	}
	if spy.Calls() != 3 {
		t.Errorf("calls = %d", spy.Calls())
	}
}

func TestRateLimited_ContextCanceled(t *testing.T) {
	t.Parallel()
	rl := inference.NewRateLimited(&testutil.SpyBackend{}, 1)
	_, _ = rl.Analyze(context.Background(), "first")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rl.Analyze(ctx, "second")
	var te *inference.TransportError
	if !errors.As(err, &te) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

// ─── HealthCheck ───────────────────────────────────────────────────────

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	report := inference.HealthCheck(context.Background(), inference.NewLocalBackend())
	if !report.OK || report.Backend != "local" || !strings.Contains(report.Result, "changeType=pricing") {
		t.Errorf("local report = %+v", report)
	}

	report = inference.HealthCheck(context.Background(), &testutil.FailingBackend{Err: errors.New("down")})
	if report.OK || report.Error != "down" {
		t.Errorf("failing report = %+v", report)
	}

	report = inference.HealthCheck(context.Background(), &testutil.SpyBackend{Response: map[string]any{"changeType": "pricing"}})
	if report.OK || report.Error == "" {
		t.Errorf("malformed report = %+v", report)
	}
}
