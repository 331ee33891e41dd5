package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config is what backend constructors need. app.Config is translated into it
// so this package does not import app.
type Config struct {
	Client    Client
	Timeout   time.Duration
	UserAgent string
	Headless  bool
	// IdleAfter is how long the network must be quiet before a browser page
	// counts as loaded.
	IdleAfter time.Duration
}

const (
	DefaultTimeout   = 30 * time.Second
	DefaultIdleAfter = 2 * time.Second
)

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) idleAfter() time.Duration {
	if c.IdleAfter <= 0 {
		return DefaultIdleAfter
	}
	return c.IdleAfter
}
