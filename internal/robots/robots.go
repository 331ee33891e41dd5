// Package robots caches robots.txt per host and answers allow/crawl-delay
// questions for a user agent.
package robots

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/utils"
	"github.com/raysh454/rivalscope/internal/webclient"
)

const DefaultTTL = time.Hour

// Decision is the robots verdict for one URL.
type Decision struct {
	Allowed    bool
	CrawlDelay time.Duration
}

type Config struct {
	TTL time.Duration
	// Now is the clock used for TTL checks; time.Now when nil.
	Now func() time.Time
}

// Cache holds parsed robots.txt files keyed by host. A missing, unreachable
// or non-2xx robots.txt is cached as allow-all.
type Cache struct {
	client webclient.WebClient
	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

func New(client webclient.WebClient, cfg Config, logger logging.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		client:  client,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		logger:  logging.OrNop(logger).With(logging.Field{Key: "component", Value: "robots"}),
		entries: map[string]entry{},
	}
}

// Check resolves whether userAgent may fetch rawURL. Errors are an
// unparseable URL or a cancelled ctx; robots.txt problems resolve to allowed.
// A lookup cut short by ctx is not cached.
func (c *Cache) Check(ctx context.Context, rawURL, userAgent string) (Decision, error) {
	host, err := utils.HostKey(rawURL)
	if err != nil {
		return Decision{}, err
	}

	data, err := c.load(ctx, host, rawURL, userAgent)
	if err != nil {
		return Decision{}, err
	}

	group := data.FindGroup(agentToken(userAgent))
	if group == nil {
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Allowed:    group.Test(utils.PathAndQuery(rawURL)),
		CrawlDelay: group.CrawlDelay,
	}, nil
}

func (c *Cache) load(ctx context.Context, host, rawURL, userAgent string) (*robotstxt.RobotsData, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[host]
	c.mu.Unlock()
	if ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.data, nil
	}

	robotsURL, err := utils.RobotsURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("robots url: %w", err)
	}

	data, err := c.fetch(ctx, robotsURL, userAgent)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[host] = entry{data: data, fetchedAt: now}
	c.mu.Unlock()
	return data, nil
}

func (c *Cache) fetch(ctx context.Context, robotsURL, userAgent string) (*robotstxt.RobotsData, error) {
	req := &webclient.Request{Method: http.MethodGet, URL: robotsURL, Headers: http.Header{}}
	if userAgent != "" {
		req.Headers.Set("User-Agent", userAgent)
	}

	resp, err := c.client.Do(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("robots.txt %s: %w", robotsURL, ctxErr)
	}
	if err != nil {
		c.logger.Warn("robots.txt unavailable, treating as permissive",
			logging.Field{Key: "url", Value: robotsURL},
			logging.Field{Key: "error", Value: err})
		return allowAll(), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info("robots.txt not served, treating as permissive",
			logging.Field{Key: "url", Value: robotsURL},
			logging.Field{Key: "status", Value: resp.StatusCode})
		return allowAll(), nil
	}

	data, err := robotstxt.FromBytes(resp.Body)
	if err != nil {
		c.logger.Warn("robots.txt unparseable, treating as permissive",
			logging.Field{Key: "url", Value: robotsURL},
			logging.Field{Key: "error", Value: err})
		return allowAll(), nil
	}
	return data, nil
}

// Len reports how many hosts are cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func allowAll() *robotstxt.RobotsData {
	data, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	return data
}

// agentToken reduces "RivalScope/1.0 (+https://...)" to "RivalScope", the
// form robots.txt groups are written against.
func agentToken(ua string) string {
	ua = strings.TrimSpace(ua)
	if i := strings.IndexAny(ua, "/ "); i > 0 {
		ua = ua[:i]
	}
	if ua == "" {
		return "*"
	}
	return ua
}
