package fetcher

import (
	"time"

	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/webclient"
)

const (
	DefaultUserAgent         = "RivalScope/1.0 (+https://github.com/raysh454/rivalscope)"
	DefaultTimeout           = 30 * time.Second
	DefaultMinDomainInterval = 5 * time.Second
	DefaultViewportWidth     = 1920
	DefaultViewportHeight    = 1080
)

// ClientFactory builds the web client for an engine. webclient.NewWebClient
// is used when Config.Factory is nil.
type ClientFactory func(cfg webclient.Config, logger logging.Logger) (webclient.WebClient, error)

type Config struct {
	// MinDomainInterval is the floor between two requests to one host. The
	// effective interval is the larger of this and the host's crawl-delay.
	MinDomainInterval time.Duration
	RobotsTTL         time.Duration
	DefaultEngine     webclient.Client
	UserAgent         string
	Headless          bool
	IdleAfter         time.Duration
	Factory           ClientFactory
}

func DefaultConfig() Config {
	return Config{
		MinDomainInterval: DefaultMinDomainInterval,
		RobotsTTL:         time.Hour,
		DefaultEngine:     webclient.ClientNetHTTP,
		UserAgent:         DefaultUserAgent,
		Headless:          true,
		IdleAfter:         webclient.DefaultIdleAfter,
	}
}

// Options are per-call fetch settings. Zero fields fall back to the
// fetcher's configuration.
type Options struct {
	Timeout            time.Duration
	RespectRobots      bool
	IgnoreRobots       bool
	UserAgent          string
	ViewportWidth      int
	ViewportHeight     int
	Engine             webclient.Client
	WaitForNetworkIdle bool
}

// DefaultOptions is a polite browser-like fetch.
func DefaultOptions() Options {
	return Options{
		Timeout:            DefaultTimeout,
		RespectRobots:      true,
		ViewportWidth:      DefaultViewportWidth,
		ViewportHeight:     DefaultViewportHeight,
		WaitForNetworkIdle: true,
	}
}

func (o Options) resolve(cfg Config) Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = cfg.UserAgent
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Engine == "" {
		o.Engine = cfg.DefaultEngine
	}
	if o.Engine == "" {
		o.Engine = webclient.ClientNetHTTP
	}
	return o
}

func (o Options) robotsEnabled() bool {
	return o.RespectRobots && !o.IgnoreRobots
}
