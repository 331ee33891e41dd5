// Package inference is the uniform "prompt in, JSON object out" layer over
// hosted chat-completion APIs and a deterministic local backend.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Backend analyzes a change-comparison prompt and returns the decoded JSON
// object. Failures are *TransportError or *ParseError.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, prompt string) (map[string]any, error)
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderLocal     = "local"
)

// Config selects and tunes a backend.
type Config struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
	// RequestsPerMinute throttles network backends; 0 disables throttling.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
	DefaultTimeout     = 30 * time.Second
)

func (c Config) withDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// InstructionsHeader starts the block that tells a model how to answer.
// The local backend only reads the prompt up to this header.
const InstructionsHeader = "INSTRUCTIONS"

// ResponseInstructions is appended to every comparison prompt.
const ResponseInstructions = InstructionsHeader + `
Decide whether the difference between the previous and current version is a
business-relevant change (not cosmetic or timestamp churn). Answer with one JSON
object and nothing else:
{
  "hasSignificantChange": true or false,
  "changeType": "pricing" | "features" | "messaging" | "product" | "integration" | "other",
  "changeSummary": "one sentence",
  "details": {"oldValue": "...", "newValue": "...", "impactLevel": "high" | "medium" | "low"},
  "confidence": "high" | "medium" | "low",
  "competitiveAnalysis": "optional, what this means for us"
}`

const systemPrompt = "You are a competitive intelligence analyst. You compare two versions of a competitor web page and reply with a single JSON object."

// TransportError means the backend could not be reached or refused the call.
type TransportError struct {
	Backend    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference backend %s: transport error (status %d): %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inference backend %s: transport error: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the backend answered with something that is not a JSON
// object. Raw holds the full reply.
type ParseError struct {
	Backend string
	Raw     string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("inference backend %s: unparseable response %q: %v", e.Backend, snippet(e.Raw, 200), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseResponse decodes a model reply into a JSON object, tolerating a
// surrounding ``` or ```json fence.
func ParseResponse(backend, raw string) (map[string]any, error) {
	text := stripFences(raw)
	if text == "" {
		return nil, &ParseError{Backend: backend, Raw: raw, Err: fmt.Errorf("empty response")}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, &ParseError{Backend: backend, Raw: raw, Err: err}
	}
	if out == nil {
		return nil, &ParseError{Backend: backend, Raw: raw, Err: fmt.Errorf("response is not a JSON object")}
	}
	return out, nil
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
		text = text[4:]
	}
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, "```") {
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
