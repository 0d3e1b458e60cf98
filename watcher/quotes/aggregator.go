// Package quotes produces a single current SOL/USD price with graceful
// multi-source degradation. Each source owns the parsing of its own response
// shape; the aggregator only sees a number or an error.
package quotes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultPrice seeds the cache so consumers always have a plausible value
// before the first successful fetch. It is born stale.
const DefaultPrice = 135.0

// maxSanePrice rejects misparsed responses; no credible SOL/USD quote gets
// anywhere near this.
const maxSanePrice = 100000.0

// Source is one independent quote endpoint.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (float64, error)
}

// Quote is the aggregator's cached value.
type Quote struct {
	Price     float64
	UpdatedAt time.Time
	Source    string
}

// Aggregator tries sources in order starting from the last winner, caches the
// last good value under a freshness window, and never propagates a source
// failure to the caller.
type Aggregator struct {
	sources []Source
	ttl     time.Duration
	timeout time.Duration
	clock   clock.Clock
	limiter *rate.Limiter
	logger  *logrus.Entry

	mu       sync.Mutex
	cached   Quote
	startIdx int
}

// NewAggregator creates an aggregator over the given sources. ttl bounds
// cache freshness, timeout bounds each source request.
func NewAggregator(sources []Source, ttl, timeout time.Duration, clk clock.Clock, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		sources: sources,
		ttl:     ttl,
		timeout: timeout,
		clock:   clk,
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		logger:  logger.WithField("component", "quotes"),
		cached: Quote{
			Price:  DefaultPrice,
			Source: "default",
			// zero UpdatedAt: stale from the start
		},
	}
}

// Quote returns the current price. A fresh cached value is returned without
// any network call unless force is set. On total source failure the last
// cached value is returned unchanged along with a non-nil error for logging;
// the caller can always use the value.
func (a *Aggregator) Quote(ctx context.Context, force bool) (Quote, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if !force && now.Sub(a.cached.UpdatedAt) < a.ttl {
		return a.cached, nil
	}

	if !a.limiter.Allow() {
		return a.cached, nil
	}

	var lastErr error
	for i := 0; i < len(a.sources); i++ {
		idx := (a.startIdx + i) % len(a.sources)
		src := a.sources[idx]

		fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
		price, err := src.Fetch(fetchCtx)
		cancel()

		if err != nil {
			a.logger.Warnf("Quote source %s failed: %v", src.Name(), err)
			lastErr = err
			continue
		}
		if price <= 0 || price >= maxSanePrice {
			a.logger.Warnf("Quote source %s returned implausible price %v, skipping", src.Name(), price)
			lastErr = fmt.Errorf("source %s returned implausible price %v", src.Name(), price)
			continue
		}

		a.cached = Quote{Price: price, UpdatedAt: now, Source: src.Name()}
		a.startIdx = idx
		return a.cached, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no quote sources configured")
	}
	return a.cached, fmt.Errorf("all quote sources failed: %w", lastErr)
}

// Cached returns the last known quote without attempting any refresh.
func (a *Aggregator) Cached() Quote {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cached
}
