package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/raysh454/rivalscope/internal/classifier"
	"github.com/raysh454/rivalscope/internal/fetcher"
	"github.com/raysh454/rivalscope/internal/inference"
	"github.com/raysh454/rivalscope/internal/webclient"
)

// EnvPrefix selects the environment overlay. A double underscore separates
// nesting levels: RIVALSCOPE_INFERENCE__PROVIDER=openai.
const EnvPrefix = "RIVALSCOPE_"

// Config is the whole runtime configuration.
type Config struct {
	Logging    LoggingConfig     `koanf:"logging"`
	Fetcher    FetcherConfig     `koanf:"fetcher"`
	Inference  inference.Config  `koanf:"inference"`
	Classifier classifier.Config `koanf:"classifier"`
	Store      StoreConfig       `koanf:"store"`
	Notify     NotifyConfig      `koanf:"notify"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
}

// FetcherConfig covers both the process-wide fetcher and the per-call
// options every fetch of a run uses.
type FetcherConfig struct {
	Engine             string        `koanf:"engine"`
	Timeout            time.Duration `koanf:"timeout"`
	MinDomainInterval  time.Duration `koanf:"min_domain_interval"`
	RobotsTTL          time.Duration `koanf:"robots_ttl"`
	UserAgent          string        `koanf:"user_agent"`
	RespectRobots      bool          `koanf:"respect_robots"`
	ViewportWidth      int           `koanf:"viewport_width"`
	ViewportHeight     int           `koanf:"viewport_height"`
	WaitForNetworkIdle bool          `koanf:"wait_for_network_idle"`
	Headless           bool          `koanf:"headless"`
	IdleAfter          time.Duration `koanf:"idle_after"`
}

// StoreConfig enables SQLite persistence when Path is set.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// NotifyConfig enables NATS publishing when NATSURL is set.
type NotifyConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// DefaultConfig returns a Config that works offline: local inference, no
// store, no broker.
func DefaultConfig() *Config {
	fc := fetcher.DefaultConfig()
	fo := fetcher.DefaultOptions()
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Fetcher: FetcherConfig{
			Engine:             string(fc.DefaultEngine),
			Timeout:            fo.Timeout,
			MinDomainInterval:  fc.MinDomainInterval,
			RobotsTTL:          fc.RobotsTTL,
			UserAgent:          fc.UserAgent,
			RespectRobots:      fo.RespectRobots,
			ViewportWidth:      fo.ViewportWidth,
			ViewportHeight:     fo.ViewportHeight,
			WaitForNetworkIdle: fo.WaitForNetworkIdle,
			Headless:           fc.Headless,
			IdleAfter:          fc.IdleAfter,
		},
		Inference: inference.Config{
			Provider:    inference.ProviderLocal,
			Temperature: 0.3,
			MaxTokens:   1000,
			Timeout:     30 * time.Second,
		},
		Classifier: classifier.Config{
			BatchDelay:   time.Second,
			ExcerptChars: 500,
		},
		Notify: NotifyConfig{SubjectPrefix: "rivalscope.changes"},
	}
}

// LoadConfig layers defaults, the YAML file at path (skipped when path is
// empty or the file does not exist) and the environment.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

var validProviders = map[string]bool{
	"":                          true,
	inference.ProviderLocal:     true,
	inference.ProviderOpenAI:    true,
	inference.ProviderAnthropic: true,
}

// Validate rejects values no component could run with.
func (c *Config) Validate() error {
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch webclient.Client(strings.ToLower(c.Fetcher.Engine)) {
	case "", webclient.ClientNetHTTP, webclient.ClientChromedp:
	default:
		return fmt.Errorf("invalid fetcher.engine %q: must be nethttp or chromedp", c.Fetcher.Engine)
	}
	if c.Fetcher.Timeout < 0 || c.Fetcher.MinDomainInterval < 0 || c.Fetcher.RobotsTTL < 0 {
		return fmt.Errorf("fetcher durations must be non-negative")
	}
	if !validProviders[strings.ToLower(c.Inference.Provider)] {
		return fmt.Errorf("invalid inference.provider %q: must be one of local, openai, anthropic", c.Inference.Provider)
	}
	if c.Inference.Temperature < 0 || c.Inference.Temperature > 2 {
		return fmt.Errorf("inference.temperature must be between 0 and 2")
	}
	if c.Inference.MaxTokens < 0 || c.Inference.RequestsPerMinute < 0 {
		return fmt.Errorf("inference.max_tokens and inference.requests_per_minute must be non-negative")
	}
	if c.Classifier.ExcerptChars < 0 {
		return fmt.Errorf("classifier.excerpt_chars must be non-negative")
	}
	return nil
}

// FetcherSettings translates the fetcher section into the fetcher
// package's two config types.
func (c *Config) FetcherSettings() (fetcher.Config, fetcher.Options) {
	f := c.Fetcher
	engine := webclient.Client(strings.ToLower(f.Engine))

	cfg := fetcher.DefaultConfig()
	cfg.MinDomainInterval = f.MinDomainInterval
	cfg.RobotsTTL = f.RobotsTTL
	cfg.DefaultEngine = engine
	cfg.UserAgent = f.UserAgent
	cfg.Headless = f.Headless
	cfg.IdleAfter = f.IdleAfter

	opts := fetcher.Options{
		Timeout:            f.Timeout,
		RespectRobots:      f.RespectRobots,
		IgnoreRobots:       !f.RespectRobots,
		UserAgent:          f.UserAgent,
		ViewportWidth:      f.ViewportWidth,
		ViewportHeight:     f.ViewportHeight,
		Engine:             engine,
		WaitForNetworkIdle: f.WaitForNetworkIdle,
	}
	return cfg, opts
}
