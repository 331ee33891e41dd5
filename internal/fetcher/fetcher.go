// Package fetcher retrieves competitor pages politely: robots.txt is honoured
// and requests to one host are spaced out.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/rivalscope/internal/htmltext"
	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/robots"
	"github.com/raysh454/rivalscope/internal/utils"
	"github.com/raysh454/rivalscope/internal/webclient"
)

// Result is what FetchPage always returns. Failures are reported in Error.
type Result struct {
	URL             string `json:"url"`
	HTML            string `json:"html"`
	ExtractedText   string `json:"extractedText"`
	StatusCode      int    `json:"statusCode"`
	LoadTimeMs      int64  `json:"loadTimeMs"`
	RobotsBlocked   bool   `json:"robotsBlocked"`
	RobotsCompliant bool   `json:"robotsCompliant"`
	Error           string `json:"error,omitempty"`
}

func (r *Result) OK() bool { return r.Error == "" && !r.RobotsBlocked }

// Fetcher owns the process-wide fetch state: one web client per engine (so
// one browser session), the robots cache and the per-domain limiter. Create
// one per process and Close it on shutdown.
type Fetcher struct {
	cfg     Config
	logger  logging.Logger
	factory ClientFactory

	robots  *robots.Cache
	limiter *DomainLimiter

	mu      sync.Mutex
	clients map[webclient.Client]webclient.WebClient
}

// New builds a Fetcher. The plain HTTP client used for robots.txt is created
// eagerly; browser clients are started on first use.
func New(cfg Config, logger logging.Logger) (*Fetcher, error) {
	logger = logging.OrNop(logger).With(logging.Field{Key: "component", Value: "fetcher"})
	factory := cfg.Factory
	if factory == nil {
		factory = webclient.NewWebClient
	}

	f := &Fetcher{
		cfg:     cfg,
		logger:  logger,
		factory: factory,
		limiter: NewDomainLimiter(cfg.MinDomainInterval),
		clients: map[webclient.Client]webclient.WebClient{},
	}

	robotsClient, err := f.client(webclient.ClientNetHTTP)
	if err != nil {
		return nil, fmt.Errorf("robots client: %w", err)
	}
	f.robots = robots.New(robotsClient, robots.Config{TTL: cfg.RobotsTTL}, logger)
	return f, nil
}

// FetchPage retrieves rawURL. It never returns nil and never panics on
// network faults; a robots-disallowed URL is answered without any request
// to the page itself.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string, opts Options) *Result {
	opts = opts.resolve(f.cfg)
	res := &Result{URL: rawURL}
	log := f.logger.With(logging.Field{Key: "url", Value: rawURL})

	host, err := utils.HostKey(rawURL)
	if err != nil {
		res.Error = fmt.Sprintf("invalid url: %v", err)
		return res
	}

	var crawlDelay time.Duration
	if opts.robotsEnabled() {
		res.RobotsCompliant = true
		decision, err := f.robots.Check(ctx, rawURL, opts.UserAgent)
		if err != nil {
			res.Error = fmt.Sprintf("robots check: %v", err)
			return res
		}
		if !decision.Allowed {
			res.RobotsBlocked = true
			res.Error = "blocked by robots.txt"
			log.Info("robots.txt disallows url")
			return res
		}
		crawlDelay = decision.CrawlDelay
	}

	if err := f.limiter.Wait(ctx, host, crawlDelay); err != nil {
		res.Error = fmt.Sprintf("rate limit wait: %v", err)
		return res
	}

	client, err := f.client(opts.Engine)
	if err != nil {
		res.Error = err.Error()
		log.Error("web client unavailable", logging.Field{Key: "engine", Value: opts.Engine}, logging.Field{Key: "error", Value: err})
		return res
	}

	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Do(reqCtx, &webclient.Request{
		Method:  http.MethodGet,
		URL:     rawURL,
		Headers: http.Header{"User-Agent": {opts.UserAgent}},
		Render: webclient.RenderOptions{
			ViewportWidth:      opts.ViewportWidth,
			ViewportHeight:     opts.ViewportHeight,
			WaitForNetworkIdle: opts.WaitForNetworkIdle,
		},
	})
	res.LoadTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		log.Warn("fetch failed", logging.Field{Key: "error", Value: err})
		return res
	}

	res.StatusCode = resp.StatusCode
	res.HTML = string(resp.Body)
	res.ExtractedText = htmltext.Extract(res.HTML)
	if resp.StatusCode >= http.StatusBadRequest {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}

	log.Debug("fetched page",
		logging.Field{Key: "status", Value: res.StatusCode},
		logging.Field{Key: "load_time_ms", Value: res.LoadTimeMs},
		logging.Field{Key: "engine", Value: opts.Engine})
	return res
}

// Stats exposes per-domain request counters and last-request times.
func (f *Fetcher) Stats() map[string]DomainStats {
	return f.limiter.Stats()
}

// Close shuts every web client down, including the browser session.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for engine, c := range f.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s client: %w", engine, err))
		}
		delete(f.clients, engine)
	}
	return errors.Join(errs...)
}

func (f *Fetcher) client(engine webclient.Client) (webclient.WebClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[engine]; ok {
		return c, nil
	}
	c, err := f.factory(webclient.Config{
		Client:    engine,
		UserAgent: f.cfg.UserAgent,
		Headless:  f.cfg.Headless,
		IdleAfter: f.cfg.IdleAfter,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", engine, err)
	}
	f.clients[engine] = c
	return c, nil
}
