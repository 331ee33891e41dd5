// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
	"github.com/raysh454/rivalscope/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount is safe to call while the logger is in use.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Pages maps a URL to the body served for it; unknown URLs get
// "ok:<url>" with status 200. Statuses overrides the status per URL and
// FailURLs[url] = true forces a transport error.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Pages         map[string]string
	Statuses      map[string]int
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	body, ok := d.Pages[req.URL]
	status := d.Statuses[req.URL]
	fail := d.FailURLs[req.URL]
	d.mu.Unlock()

	if fail {
		return nil, errors.New("dummy fetch fail for " + req.URL)
	}
	if !ok {
		body = "ok:" + req.URL
	}
	if status == 0 {
		status = 200
	}
	return &webclient.Response{
		Request:    req,
		Body:       []byte(body),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// SetPage swaps the body served for url between runs.
func (d *DummyWebClient) SetPage(url, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Pages == nil {
		d.Pages = map[string]string{}
	}
	d.Pages[url] = body
}

// RequestCount reports how many requests hit url.
func (d *DummyWebClient) RequestCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.Requests {
		if r.URL == url {
			n++
		}
	}
	return n
}

// ─── Inference backends ────────────────────────────────────────────────

// SpyBackend implements inference.Backend. It records every prompt and
// answers with Response (or the result of Respond when set).
type SpyBackend struct {
	BackendName string
	Response    map[string]any
	Respond     func(prompt string) (map[string]any, error)

	mu      sync.Mutex
	Prompts []string
}

func (s *SpyBackend) Name() string {
	if s.BackendName == "" {
		return "spy"
	}
	return s.BackendName
}

func (s *SpyBackend) Analyze(_ context.Context, prompt string) (map[string]any, error) {
	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	s.mu.Unlock()
	if s.Respond != nil {
		return s.Respond(prompt)
	}
	return s.Response, nil
}

// Calls is safe to call while the backend is in use.
func (s *SpyBackend) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Prompts)
}

// FailingBackend always returns Err.
type FailingBackend struct {
	Err error
}

func (f *FailingBackend) Name() string { return "failing" }

func (f *FailingBackend) Analyze(context.Context, string) (map[string]any, error) {
	return nil, f.Err
}

// PanicBackend panics on every call.
type PanicBackend struct{}

func (PanicBackend) Name() string { return "panic" }

func (PanicBackend) Analyze(context.Context, string) (map[string]any, error) {
	panic("backend exploded")
}

// ─── Sinks and stores ──────────────────────────────────────────────────

// MemorySink records published change records.
type MemorySink struct {
	Err error

	mu      sync.Mutex
	Records []model.ChangeRecord
}

func (m *MemorySink) Publish(_ context.Context, rec model.ChangeRecord) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return nil
}

// Published returns a copy of everything recorded so far.
func (m *MemorySink) Published() []model.ChangeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChangeRecord(nil), m.Records...)
}

// MemoryFingerprints keeps the latest fingerprint per page.
type MemoryFingerprints struct {
	mu     sync.Mutex
	Latest map[string]model.PageFingerprint
	Saves  int
}

func (m *MemoryFingerprints) LatestFingerprint(_ context.Context, pageID string) (*model.PageFingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.Latest[pageID]
	if !ok {
		return nil, nil
	}
	return &fp, nil
}

func (m *MemoryFingerprints) SaveFingerprint(_ context.Context, page model.PageCheck, fp model.PageFingerprint, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Latest == nil {
		m.Latest = map[string]model.PageFingerprint{}
	}
	m.Latest[page.PageID] = fp
	m.Saves++
	return nil
}
