package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainStats are the per-host counters kept by a DomainLimiter.
type DomainStats struct {
	Requests    int64     `json:"requests"`
	LastRequest time.Time `json:"lastRequest"`
	Interval    string    `json:"interval"`
}

// DomainLimiter spaces requests to the same host by at least
// max(crawl-delay, floor). Wait blocks; it never polls.
type DomainLimiter struct {
	floor time.Duration

	mu      sync.Mutex
	domains map[string]*domainState
}

type domainState struct {
	limiter  *rate.Limiter
	interval time.Duration
	requests int64
	last     time.Time
}

func NewDomainLimiter(floor time.Duration) *DomainLimiter {
	return &DomainLimiter{floor: floor, domains: map[string]*domainState{}}
}

// Wait blocks until host may be requested again, then records the request.
func (d *DomainLimiter) Wait(ctx context.Context, host string, crawlDelay time.Duration) error {
	interval := max(crawlDelay, d.floor)

	d.mu.Lock()
	st, ok := d.domains[host]
	if !ok {
		st = &domainState{limiter: rate.NewLimiter(every(interval), 1), interval: interval}
		d.domains[host] = st
	} else if st.interval != interval {
		st.limiter.SetLimit(every(interval))
		st.interval = interval
	}
	d.mu.Unlock()

	if err := st.limiter.Wait(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	st.requests++
	st.last = time.Now()
	d.mu.Unlock()
	return nil
}

// Stats returns a snapshot of every host seen so far.
func (d *DomainLimiter) Stats() map[string]DomainStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]DomainStats, len(d.domains))
	for host, st := range d.domains {
		out[host] = DomainStats{Requests: st.requests, LastRequest: st.last, Interval: st.interval.String()}
	}
	return out
}

func every(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}
