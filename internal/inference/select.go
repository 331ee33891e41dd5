package inference

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/raysh454/rivalscope/internal/logging"
)

var credentialEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Select builds the backend named by cfg.Provider. A hosted provider
// without a credential (in cfg.APIKey or its environment variable)
// degrades to the local backend with a warning. Unknown providers are an
// error.
func Select(cfg Config, logger logging.Logger) (Backend, error) {
	logger = logging.OrNop(logger)
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch provider {
	case "", ProviderLocal:
		return NewLocalBackend(), nil
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return nil, fmt.Errorf("unknown inference provider %q (want %s, %s or %s)",
			cfg.Provider, ProviderOpenAI, ProviderAnthropic, ProviderLocal)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(credentialEnv[provider])
	}
	if cfg.APIKey == "" {
		logger.Warn("inference credential missing, using local backend",
			logging.Field{Key: "provider", Value: provider},
			logging.Field{Key: "env", Value: credentialEnv[provider]})
		return NewLocalBackend(), nil
	}

	var b Backend
	if provider == ProviderOpenAI {
		b = NewOpenAIBackend(cfg)
	} else {
		b = NewAnthropicBackend(cfg)
	}
	logger.Info("inference backend selected",
		logging.Field{Key: "provider", Value: provider},
		logging.Field{Key: "requests_per_minute", Value: cfg.RequestsPerMinute})

	if cfg.RequestsPerMinute > 0 {
		return NewRateLimited(b, cfg.RequestsPerMinute), nil
	}
	return b, nil
}

// RateLimited spaces calls to the wrapped backend so at most rpm start in
// any minute.
type RateLimited struct {
	inner   Backend
	limiter *rate.Limiter
}

func NewRateLimited(inner Backend, rpm int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) Analyze(ctx context.Context, prompt string) (map[string]any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Backend: r.inner.Name(), Err: err}
	}
	return r.inner.Analyze(ctx, prompt)
}

// Unwrap returns the throttled backend.
func (r *RateLimited) Unwrap() Backend { return r.inner }
