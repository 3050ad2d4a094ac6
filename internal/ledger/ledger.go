// Package ledger records execution attempts and derives P&L aggregates from
// the stored records.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// DefaultHistoryLimit is the number of records retained in the primary store.
const DefaultHistoryLimit = 500

// Archiver receives records before they are trimmed from the primary store.
type Archiver interface {
	ArchiveTrades(ctx context.Context, records []domain.TradeRecord) (string, error)
}

// Config configures a Ledger. Archiver and Bus are optional.
type Config struct {
	Store        domain.TradeStore
	Archiver     Archiver
	Bus          domain.SignalBus
	HistoryLimit int
	Logger       *slog.Logger
	Now          func() time.Time
}

// Ledger is the single writer of trade records.
type Ledger struct {
	store    domain.TradeStore
	archiver Archiver
	bus      domain.SignalBus
	limit    int
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Ledger.
func New(cfg Config) *Ledger {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ledger{
		store:    cfg.Store,
		archiver: cfg.Archiver,
		bus:      cfg.Bus,
		limit:    cfg.HistoryLimit,
		logger:   cfg.Logger.With("component", "ledger"),
		now:      cfg.Now,
	}
}

// Record appends a new entry. An empty ID is assigned and the timestamps are
// set from the ledger clock. Terminal records are finalized immediately.
func (l *Ledger) Record(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := l.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = domain.StatusPending
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: record: %w", err)
	}
	if rec.Status.Terminal() {
		l.finalize(ctx, rec)
	}
	return rec, nil
}

// Update replaces a non-terminal entry. Terminal entries are immutable.
func (l *Ledger) Update(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	cur, err := l.store.GetByID(ctx, rec.ID)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: update %s: %w", rec.ID, err)
	}
	if cur.Status.Terminal() {
		return domain.TradeRecord{}, fmt.Errorf("ledger: update %s: record is %s: %w", rec.ID, cur.Status, domain.ErrInvalidInput)
	}
	rec.CreatedAt = cur.CreatedAt
	rec.UpdatedAt = l.now()
	if err := l.store.Update(ctx, rec); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: update %s: %w", rec.ID, err)
	}
	if rec.Status.Terminal() {
		l.finalize(ctx, rec)
	}
	return rec, nil
}

// Advance moves a non-terminal entry to the event's intermediate status and
// stores any tx refs the event carries, so a broadcast leg is on record
// before the trade finishes.
func (l *Ledger) Advance(ctx context.Context, ev domain.StatusEvent) error {
	cur, err := l.store.GetByID(ctx, ev.TradeID)
	if err != nil {
		return fmt.Errorf("ledger: advance %s: %w", ev.TradeID, err)
	}
	cur.Status = ev.Status
	if ev.BuyTxRef != "" {
		cur.BuyTxRef = ev.BuyTxRef
	}
	if ev.SellTxRef != "" {
		cur.SellTxRef = ev.SellTxRef
	}
	_, err = l.Update(ctx, cur)
	return err
}

// Get returns one entry.
func (l *Ledger) Get(ctx context.Context, id string) (domain.TradeRecord, error) {
	rec, err := l.store.GetByID(ctx, id)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: get %s: %w", id, err)
	}
	return rec, nil
}

// History returns up to limit entries, newest first. A non-positive limit,
// or one above the retention limit, returns the whole retained history.
func (l *Ledger) History(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 || limit > l.limit {
		limit = l.limit
	}
	recs, err := l.store.List(ctx, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	return recs, nil
}

// Latest returns the newest entry. It returns domain.ErrNotFound on an empty
// ledger.
func (l *Ledger) Latest(ctx context.Context) (domain.TradeRecord, error) {
	rec, err := l.store.Latest(ctx)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("ledger: latest: %w", err)
	}
	return rec, nil
}

// DailyPnL re-derives today's realized P&L from the stored records.
func (l *Ledger) DailyPnL(ctx context.Context) (domain.DailyPnL, error) {
	now := l.now()
	since := StartOfDay(now)
	recs, err := l.store.List(ctx, domain.ListOpts{Since: &since})
	if err != nil {
		return domain.DailyPnL{}, fmt.Errorf("ledger: daily pnl: %w", err)
	}
	return DailyPnL(recs, now), nil
}

// Aggregates returns the figures the risk policy consults.
func (l *Ledger) Aggregates(ctx context.Context) (domain.LedgerAggregates, error) {
	daily, err := l.DailyPnL(ctx)
	if err != nil {
		return domain.LedgerAggregates{}, err
	}
	agg := domain.LedgerAggregates{Daily: daily}
	latest, err := l.store.Latest(ctx)
	switch {
	case err == nil:
		agg.LastTradeAt = lastActivity(latest)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return domain.LedgerAggregates{}, fmt.Errorf("ledger: aggregates: %w", err)
	}
	return agg, nil
}

// Stats summarises the retained history.
func (l *Ledger) Stats(ctx context.Context) (domain.TradeStats, error) {
	recs, err := l.store.List(ctx, domain.ListOpts{})
	if err != nil {
		return domain.TradeStats{}, fmt.Errorf("ledger: stats: %w", err)
	}
	return Stats(recs), nil
}

func (l *Ledger) finalize(ctx context.Context, rec domain.TradeRecord) {
	if l.bus != nil {
		if payload, err := json.Marshal(rec); err == nil {
			if err := l.bus.StreamAppend(ctx, domain.StreamTrades, payload); err != nil {
				l.logger.WarnContext(ctx, "stream append failed", "trade_id", rec.ID, "error", err)
			}
		}
	}
	if err := l.Trim(ctx); err != nil {
		l.logger.WarnContext(ctx, "trim failed", "error", err)
	}
}

// Trim removes entries beyond the retention limit, oldest first. When an
// archiver is configured the removed entries are archived before deletion
// and nothing is deleted if archiving fails.
func (l *Ledger) Trim(ctx context.Context) error {
	n, err := l.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("ledger: trim count: %w", err)
	}
	if n <= int64(l.limit) {
		return nil
	}
	if l.archiver != nil {
		old, err := l.store.List(ctx, domain.ListOpts{Offset: l.limit})
		if err != nil {
			return fmt.Errorf("ledger: trim list: %w", err)
		}
		reverse(old)
		path, err := l.archiver.ArchiveTrades(ctx, old)
		if err != nil {
			return fmt.Errorf("ledger: trim archive: %w", err)
		}
		l.logger.InfoContext(ctx, "archived trimmed trades", "count", len(old), "path", path)
	}
	removed, err := l.store.DeleteOldest(ctx, l.limit)
	if err != nil {
		return fmt.Errorf("ledger: trim delete: %w", err)
	}
	l.logger.DebugContext(ctx, "trimmed ledger", "removed", len(removed))
	return nil
}

func reverse(recs []domain.TradeRecord) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
}
