package webclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/rivalscope/internal/logging"
)

// ChromeDPClient renders pages in a headless browser. One browser process
// lives for the client's lifetime; every request gets its own tab.
type ChromeDPClient struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	idleAfter time.Duration
	userAgent string
	logger    logging.Logger

	closeOnce sync.Once
}

// NewChromedpClient launches the browser. It fails when no Chrome binary can
// be started.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromeDPClient, error) {
	componentLogger := logging.OrNop(logger).With(logging.Field{Key: "backend", Value: string(ClientChromedp)})

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Running with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	componentLogger.Info("created chromedp webclient",
		logging.Field{Key: "idle_after", Value: cfg.idleAfter().String()},
		logging.Field{Key: "headless", Value: cfg.Headless})

	return &ChromeDPClient{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		idleAfter:     cfg.idleAfter(),
		userAgent:     cfg.UserAgent,
		logger:        componentLogger,
	}, nil
}

// Do navigates a fresh tab to req.URL and returns the rendered outer HTML.
// Only GET is supported.
func (c *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if req.Method != "" && !strings.EqualFold(req.Method, http.MethodGet) {
		return nil, fmt.Errorf("chromedp supports GET only, got %s", req.Method)
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, e.Response.Status)
		}
	})

	var idle *idleWatcher
	if req.Render.WaitForNetworkIdle {
		idle = waitNetworkIdle(tabCtx, c.idleAfter)
	}

	actions := []chromedp.Action{network.Enable()}
	if ua := c.effectiveUserAgent(req); ua != "" {
		actions = append(actions, emulation.SetUserAgentOverride(ua))
	}
	if extra := extraHeaders(req.Headers); len(extra) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(extra))
	}
	if req.Render.ViewportWidth > 0 && req.Render.ViewportHeight > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(req.Render.ViewportWidth), int64(req.Render.ViewportHeight)))
	}
	actions = append(actions, chromedp.Navigate(req.URL))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, ctxErr(ctx, err))
	}

	if idle != nil {
		idle.arm()
		select {
		case <-idle.done:
		case <-tabCtx.Done():
			return nil, fmt.Errorf("wait for network idle: %w", ctxErr(ctx, tabCtx.Err()))
		}
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read outer html: %w", ctxErr(ctx, err))
	}

	code := int(status.Load())
	if code == 0 {
		code = http.StatusOK
	}

	c.logger.Debug("rendered page",
		logging.Field{Key: "url", Value: req.URL},
		logging.Field{Key: "status", Value: code})

	return &Response{
		Request:    req,
		Headers:    http.Header{},
		Body:       []byte(html),
		StatusCode: code,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *ChromeDPClient) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

// Close shuts the browser down. It is safe to call more than once.
func (c *ChromeDPClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = chromedp.Cancel(c.browserCtx)
		c.browserCancel()
		c.allocCancel()
		c.logger.Info("closed chromedp webclient")
	})
	return err
}

func (c *ChromeDPClient) effectiveUserAgent(req *Request) string {
	if ua := req.Headers.Get("User-Agent"); ua != "" {
		return ua
	}
	return c.userAgent
}

func extraHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for k, vs := range h {
		if strings.EqualFold(k, "User-Agent") || len(vs) == 0 {
			continue
		}
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// ctxErr prefers the caller's context error so timeouts read as timeouts.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

// idleWatcher closes done once no requests have been in flight for
// idleAfter. The quiet period only starts counting after arm is called.
// Requests are tracked by id: a redirect reuses the id of the hop it
// replaces and only the final hop finishes.
type idleWatcher struct {
	idleAfter time.Duration
	armed     bool

	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	timer    *time.Timer
	once     sync.Once
	done     chan struct{}
}

func newIdleWatcher(idleAfter time.Duration) *idleWatcher {
	return &idleWatcher{
		idleAfter: idleAfter,
		inflight:  map[network.RequestID]struct{}{},
		done:      make(chan struct{}),
	}
}

func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) *idleWatcher {
	w := newIdleWatcher(idleAfter)
	chromedp.ListenTarget(ctx, w.observe)
	return w
}

func (w *idleWatcher) observe(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		w.mu.Lock()
		w.inflight[e.RequestID] = struct{}{}
		w.mu.Unlock()
	case *network.EventLoadingFinished:
		w.finish(e.RequestID)
	case *network.EventLoadingFailed:
		w.finish(e.RequestID)
	}
}

func (w *idleWatcher) finish(id network.RequestID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
	if len(w.inflight) == 0 && w.armed {
		w.restartLocked()
	}
}

func (w *idleWatcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = true
	w.restartLocked()
}

func (w *idleWatcher) restartLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.idleAfter, func() {
		w.mu.Lock()
		idle := len(w.inflight) == 0
		w.mu.Unlock()
		if idle {
			w.once.Do(func() { close(w.done) })
		}
	})
}
