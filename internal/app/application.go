package app

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/raysh454/rivalscope/internal/classifier"
	"github.com/raysh454/rivalscope/internal/fetcher"
	"github.com/raysh454/rivalscope/internal/inference"
	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/monitor"
	"github.com/raysh454/rivalscope/internal/notify"
	"github.com/raysh454/rivalscope/internal/store"
)

// Application is the runtime state container the CLI commands share.
// Components are built on first use, so a command only pays for what it
// touches (eval never opens a browser or connects to the broker), and all
// of them are released by Close.
type Application struct {
	Config *Config
	Logger logging.Logger

	mu         sync.Mutex
	fetcher    *fetcher.Fetcher
	backend    inference.Backend
	classifier *classifier.Classifier
	store      *store.SQLiteStore
	nats       *notify.NATSSink
}

// NewApplication validates cfg and builds the root logger writing to w.
func NewApplication(cfg *Config, w io.Writer) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.NewWriterLogger(w, "rivalscope", logging.ParseLevel(cfg.Logging.Level))
	return &Application{Config: cfg, Logger: logger}, nil
}

// Fetcher returns the process-wide fetcher and the per-call options from
// the fetcher section.
func (a *Application) Fetcher() (*fetcher.Fetcher, fetcher.Options, error) {
	cfg, opts := a.Config.FetcherSettings()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetcher == nil {
		f, err := fetcher.New(cfg, a.Logger)
		if err != nil {
			return nil, opts, fmt.Errorf("new fetcher: %w", err)
		}
		a.fetcher = f
	}
	return a.fetcher, opts, nil
}

// Backend returns the configured inference backend.
func (a *Application) Backend() (inference.Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backendLocked()
}

func (a *Application) backendLocked() (inference.Backend, error) {
	if a.backend == nil {
		b, err := inference.Select(a.Config.Inference, a.Logger)
		if err != nil {
			return nil, err
		}
		a.backend = b
	}
	return a.backend, nil
}

// Classifier returns a classifier over the configured backend.
func (a *Application) Classifier() (*classifier.Classifier, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.classifier == nil {
		b, err := a.backendLocked()
		if err != nil {
			return nil, err
		}
		a.classifier = classifier.New(b, a.Config.Classifier, a.Logger)
	}
	return a.classifier, nil
}

// Store opens the SQLite store, or returns nil when no path is configured.
func (a *Application) Store() (*store.SQLiteStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil && a.Config.Store.Path != "" {
		s, err := store.Open(a.Config.Store.Path, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = s
	}
	return a.store, nil
}

// Sinks lists every change sink the configuration enables. The log sink
// is always present.
func (a *Application) Sinks() ([]monitor.ChangeSink, error) {
	sinks := []monitor.ChangeSink{notify.NewLogSink(a.Logger)}

	s, err := a.Store()
	if err != nil {
		return nil, err
	}
	if s != nil {
		sinks = append(sinks, s)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nats == nil && a.Config.Notify.NATSURL != "" {
		ns, err := notify.Connect(a.Config.Notify.NATSURL, a.Config.Notify.SubjectPrefix, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connect notifier: %w", err)
		}
		a.nats = ns
	}
	if a.nats != nil {
		sinks = append(sinks, a.nats)
	}
	return sinks, nil
}

// Runner wires fetcher, classifier, store and sinks into a detection runner.
func (a *Application) Runner() (*monitor.Runner, error) {
	f, opts, err := a.Fetcher()
	if err != nil {
		return nil, err
	}
	c, err := a.Classifier()
	if err != nil {
		return nil, err
	}
	sinks, err := a.Sinks()
	if err != nil {
		return nil, err
	}
	cfg := monitor.Config{Fetch: opts, Sinks: sinks}
	if s, _ := a.Store(); s != nil {
		cfg.Store = s
	}
	return monitor.NewRunner(f, c, cfg, a.Logger), nil
}

// Close releases everything that was built. Any ongoing fetch is stopped.
func (a *Application) Close() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	if a.fetcher != nil {
		if err := a.fetcher.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close fetcher: %w", err)
		}
		a.fetcher = nil
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close notifier: %w", err)
		}
		a.nats = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
		a.store = nil
	}
	return firstErr
}
