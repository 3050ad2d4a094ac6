// Package quotes gathers venue prices into snapshots and caches them.
package quotes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/metrics"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/platform/venues"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Fetchers []venues.Fetcher
	// Demo supplies fallback quotes; nil disables the fallback.
	Demo *venues.Demo
	// StaleAfter bounds how long a venue's last live quotes are reused
	// after a failed fetch.
	StaleAfter time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

type lastLive struct {
	quotes []domain.Quote
	at     time.Time
}

// Aggregator implements domain.QuoteSource over a set of venue fetchers.
type Aggregator struct {
	fetchers   []venues.Fetcher
	demo       *venues.Demo
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	last map[string]lastLive
}

// NewAggregator creates an Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		fetchers:   cfg.Fetchers,
		demo:       cfg.Demo,
		staleAfter: cfg.StaleAfter,
		logger:     cfg.Logger.With(slog.String("component", "quote_aggregator")),
		now:        cfg.Now,
		last:       make(map[string]lastLive),
	}
}

type venueResult struct {
	quotes []domain.Quote
	status domain.VenueStatus
}

// FetchAllQuotes queries every venue concurrently. A failing venue falls
// back to its last live quotes while they are younger than StaleAfter
// (state stale), then to demo data (state demo). It never fails as a whole.
func (a *Aggregator) FetchAllQuotes(ctx context.Context) ([]domain.Quote, []domain.VenueStatus) {
	results := make([]venueResult, len(a.fetchers))

	var g errgroup.Group
	for i, f := range a.fetchers {
		g.Go(func() error {
			results[i] = a.fetchOne(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.Quote
	statuses := make([]domain.VenueStatus, 0, len(results))
	for _, r := range results {
		all = append(all, r.quotes...)
		statuses = append(statuses, r.status)
	}
	return all, statuses
}

func (a *Aggregator) fetchOne(ctx context.Context, f venues.Fetcher) venueResult {
	name := f.Name()
	start := a.now()
	qs, err := f.Fetch(ctx)
	now := a.now()
	latency := now.Sub(start)
	metrics.VenueLatency.WithLabelValues(name).Observe(latency.Seconds())

	if err == nil && len(qs) > 0 {
		qs = withSource(qs, domain.VenueLive)
		a.mu.Lock()
		a.last[name] = lastLive{quotes: qs, at: now}
		a.mu.Unlock()
		metrics.VenueFetches.WithLabelValues(name, string(domain.VenueLive)).Inc()
		return venueResult{
			quotes: qs,
			status: domain.VenueStatus{
				Venue:           name,
				State:           domain.VenueLive,
				LastUpdate:      now,
				QuoteCount:      len(qs),
				ResponseLatency: latency,
			},
		}
	}

	a.logger.WarnContext(ctx, "venue fetch failed", slog.String("venue", name), slog.Any("error", err))

	a.mu.Lock()
	prev, ok := a.last[name]
	a.mu.Unlock()
	if ok && now.Sub(prev.at) <= a.staleAfter {
		metrics.VenueFetches.WithLabelValues(name, string(domain.VenueStale)).Inc()
		return venueResult{
			quotes: withSource(prev.quotes, domain.VenueStale),
			status: domain.VenueStatus{
				Venue:           name,
				State:           domain.VenueStale,
				LastUpdate:      prev.at,
				QuoteCount:      len(prev.quotes),
				ResponseLatency: latency,
			},
		}
	}

	status := domain.VenueStatus{
		Venue:           name,
		State:           domain.VenueDemo,
		LastUpdate:      now,
		ResponseLatency: latency,
	}
	var fallback []domain.Quote
	switch {
	case a.demo != nil:
		fallback = a.demo.Quotes(name, now)
	case ok:
		status.State = domain.VenueStale
		status.LastUpdate = prev.at
	}
	status.QuoteCount = len(fallback)
	metrics.VenueFetches.WithLabelValues(name, string(status.State)).Inc()
	return venueResult{quotes: fallback, status: status}
}

// withSource returns a copy of qs stamped with src.
func withSource(qs []domain.Quote, src domain.VenueState) []domain.Quote {
	out := make([]domain.Quote, len(qs))
	for i, q := range qs {
		q.Source = src
		out[i] = q
	}
	return out
}

// BuildSnapshot assembles a snapshot. IsDemo is set only when every venue
// reported demo data.
func BuildSnapshot(qs []domain.Quote, statuses []domain.VenueStatus, at time.Time) domain.QuoteSnapshot {
	isDemo := len(statuses) > 0
	for _, s := range statuses {
		if s.State != domain.VenueDemo {
			isDemo = false
			break
		}
	}
	return domain.QuoteSnapshot{
		Quotes:    qs,
		Statuses:  statuses,
		IsDemo:    isDemo,
		FetchedAt: at,
	}
}
