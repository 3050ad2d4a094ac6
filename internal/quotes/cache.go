package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// CacheConfig configures a Cache.
type CacheConfig struct {
	Source     domain.QuoteSource
	TTL        time.Duration
	StaleAfter time.Duration
	// Mirror shares snapshots with other processes; optional.
	Mirror domain.QuoteSnapshotCache
	Logger *slog.Logger
	Now    func() time.Time
}

// Cache holds the latest snapshot. A snapshot younger than TTL is served
// without fetching; one older than StaleAfter is reported stale.
type Cache struct {
	source     domain.QuoteSource
	ttl        time.Duration
	staleAfter time.Duration
	mirror     domain.QuoteSnapshotCache
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.RWMutex
	snap *domain.QuoteSnapshot

	// fetchMu serialises refreshes so concurrent callers share one fetch.
	fetchMu sync.Mutex
}

// NewCache creates a Cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{
		source:     cfg.Source,
		ttl:        cfg.TTL,
		staleAfter: cfg.StaleAfter,
		mirror:     cfg.Mirror,
		logger:     cfg.Logger.With(slog.String("component", "quote_cache")),
		now:        cfg.Now,
	}
}

// Get returns the cached snapshot if it is younger than the TTL.
func (c *Cache) Get(now time.Time) (domain.QuoteSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil || now.Sub(c.snap.FetchedAt) >= c.ttl {
		return domain.QuoteSnapshot{}, false
	}
	return *c.snap, true
}

// Put stores snap as the current snapshot. Older snapshots never replace a
// newer one.
func (c *Cache) Put(snap domain.QuoteSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap != nil && snap.FetchedAt.Before(c.snap.FetchedAt) {
		return
	}
	c.snap = &snap
}

// Last returns the most recent snapshot regardless of age.
func (c *Cache) Last() (domain.QuoteSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return domain.QuoteSnapshot{}, false
	}
	return *c.snap, true
}

// IsStale reports whether there is no snapshot or it is older than the
// stale threshold.
func (c *Cache) IsStale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap == nil || now.Sub(c.snap.FetchedAt) > c.staleAfter
}

// Snapshot returns a fresh snapshot, consulting the local cache, then the
// mirror, then the source.
func (c *Cache) Snapshot(ctx context.Context) (domain.QuoteSnapshot, error) {
	if snap, ok := c.Get(c.now()); ok {
		return snap, nil
	}

	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	// Another caller may have refreshed while we waited.
	if snap, ok := c.Get(c.now()); ok {
		return snap, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("quotes: snapshot: %w", err)
	}

	if c.mirror != nil {
		snap, err := c.mirror.GetSnapshot(ctx)
		switch {
		case err == nil && c.now().Sub(snap.FetchedAt) < c.ttl:
			c.Put(snap)
			return snap, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			c.logger.WarnContext(ctx, "mirror read failed", slog.Any("error", err))
		}
	}

	return c.refreshLocked(ctx)
}

// Refresh fetches from the source unconditionally.
func (c *Cache) Refresh(ctx context.Context) (domain.QuoteSnapshot, error) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Cache) refreshLocked(ctx context.Context) (domain.QuoteSnapshot, error) {
	qs, statuses := c.source.FetchAllQuotes(ctx)
	if err := ctx.Err(); err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("quotes: refresh: %w", err)
	}
	snap := BuildSnapshot(qs, statuses, c.now())
	c.Put(snap)

	if c.mirror != nil {
		if err := c.mirror.SetSnapshot(ctx, snap, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "mirror write failed", slog.Any("error", err))
		}
	}
	c.logger.DebugContext(ctx, "quotes refreshed",
		slog.Int("quotes", len(snap.Quotes)),
		slog.Bool("demo", snap.IsDemo),
	)
	return snap, nil
}
