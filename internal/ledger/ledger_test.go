package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/store/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingArchiver struct {
	batches [][]domain.TradeRecord
	err     error
}

func (a *recordingArchiver) ArchiveTrades(_ context.Context, recs []domain.TradeRecord) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.batches = append(a.batches, recs)
	return fmt.Sprintf("trades/batch-%d.jsonl", len(a.batches)), nil
}

func newTestLedger(c *clock, limit int, arch Archiver) (*Ledger, *memory.TradeStore) {
	store := memory.NewTradeStore()
	l := New(Config{
		Store:        store,
		Archiver:     arch,
		HistoryLimit: limit,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          c.now,
	})
	return l, store
}

func TestDailyPnL(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	yesterday := now.Add(-16 * time.Hour)

	recs := []domain.TradeRecord{
		{Status: domain.StatusCompleted, NetProfit: 4, CreatedAt: now.Add(-time.Hour)},
		{Status: domain.StatusDryRun, NetProfit: 10, CreatedAt: now.Add(-2 * time.Hour)},
		{Status: domain.StatusCompleted, NetProfit: -3.5, CreatedAt: now.Add(-3 * time.Hour)},
		{Status: domain.StatusFailed, NetProfit: -100, CreatedAt: now.Add(-time.Minute)},
		{Status: domain.StatusConfirmingBuy, NetProfit: 7, CreatedAt: now},
		{Status: domain.StatusCompleted, NetProfit: 50, CreatedAt: yesterday},
	}

	got := DailyPnL(recs, now)
	assert.InDelta(t, 14, got.Profit, 1e-9)
	assert.InDelta(t, 3.5, got.Loss, 1e-9)
	assert.InDelta(t, 10.5, got.Net, 1e-9)
	assert.Equal(t, 3, got.Count)

	assert.Equal(t, domain.DailyPnL{}, DailyPnL(nil, now))
}

func TestStartOfDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("east", 9*3600)
	now := time.Date(2026, 1, 2, 0, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, loc), StartOfDay(now))
}

func TestStats(t *testing.T) {
	recs := []domain.TradeRecord{
		{Status: domain.StatusCompleted, NetProfit: 5, Fees: 1},
		{Status: domain.StatusCompleted, NetProfit: -2, Fees: 1},
		{Status: domain.StatusDryRun, NetProfit: 3, Fees: 0.5},
		{Status: domain.StatusFailed, Fees: 0.2},
		{Status: domain.StatusSigningBuy},
	}
	st := Stats(recs)
	assert.Equal(t, 5, st.TotalTrades)
	assert.Equal(t, 3, st.Settled)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 2, st.Wins)
	assert.InDelta(t, 66.666, st.WinRate, 0.01)
	assert.InDelta(t, 6, st.TotalNet, 1e-9)
	assert.InDelta(t, 2.7, st.TotalFees, 1e-9)
	assert.Equal(t, 5.0, st.BestTrade)
	assert.Equal(t, -2.0, st.WorstTrade)

	assert.Zero(t, Stats(nil).WinRate)
}

func TestLedgerRecordAndUpdate(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l, _ := newTestLedger(c, 10, nil)

	rec, err := l.Record(ctx, domain.TradeRecord{PairKey: "ADA/MIN", Amount: 200})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.Equal(t, c.t, rec.CreatedAt)

	c.advance(5 * time.Second)
	require.NoError(t, l.Advance(ctx, domain.StatusEvent{TradeID: rec.ID, Status: domain.StatusSigningBuy}))

	got, err := l.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSigningBuy, got.Status)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)
	assert.Equal(t, c.t, got.UpdatedAt)
	assert.Empty(t, got.BuyTxRef)

	require.NoError(t, l.Advance(ctx, domain.StatusEvent{TradeID: rec.ID, Status: domain.StatusConfirmingBuy, BuyTxRef: "buy-tx-hash"}))
	// Later events without refs keep the stored one.
	require.NoError(t, l.Advance(ctx, domain.StatusEvent{TradeID: rec.ID, Status: domain.StatusBuildingSell}))

	got, err = l.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBuildingSell, got.Status)
	assert.Equal(t, "buy-tx-hash", got.BuyTxRef)
	assert.Empty(t, got.SellTxRef)

	got.Status = domain.StatusCompleted
	got.NetProfit = 3
	_, err = l.Update(ctx, got)
	require.NoError(t, err)

	t.Run("terminal records are immutable", func(t *testing.T) {
		got.NetProfit = 99
		_, err := l.Update(ctx, got)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))

		stored, err := l.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 3.0, stored.NetProfit)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := l.Update(ctx, domain.TradeRecord{ID: "nope"})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestLedgerAggregates(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l, _ := newTestLedger(c, 10, nil)

	agg, err := l.Aggregates(ctx)
	require.NoError(t, err)
	assert.True(t, agg.LastTradeAt.IsZero())
	assert.Zero(t, agg.Daily.Count)

	_, err = l.Record(ctx, domain.TradeRecord{Status: domain.StatusCompleted, NetProfit: -6})
	require.NoError(t, err)
	c.advance(time.Minute)
	_, err = l.Record(ctx, domain.TradeRecord{Status: domain.StatusDryRun, NetProfit: 10})
	require.NoError(t, err)

	agg, err = l.Aggregates(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.t, agg.LastTradeAt)
	assert.Equal(t, 2, agg.Daily.Count)
	assert.InDelta(t, 6, agg.Daily.Loss, 1e-9)
	assert.InDelta(t, 4, agg.Daily.Net, 1e-9)

	// A new day starts from zero without any reset call.
	c.advance(24 * time.Hour)
	agg, err = l.Aggregates(ctx)
	require.NoError(t, err)
	assert.Zero(t, agg.Daily.Count)
	assert.Zero(t, agg.Daily.Loss)
}

func TestLedgerTrim(t *testing.T) {
	ctx := context.Background()

	t.Run("archives then deletes oldest", func(t *testing.T) {
		c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
		arch := &recordingArchiver{}
		l, store := newTestLedger(c, 3, arch)

		var ids []string
		for i := 0; i < 5; i++ {
			rec, err := l.Record(ctx, domain.TradeRecord{Status: domain.StatusDryRun, NetProfit: float64(i)})
			require.NoError(t, err)
			ids = append(ids, rec.ID)
			c.advance(time.Second)
		}

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		require.Len(t, arch.batches, 2)
		assert.Equal(t, ids[0], arch.batches[0][0].ID)
		assert.Equal(t, ids[1], arch.batches[1][0].ID)

		hist, err := l.History(ctx, 0)
		require.NoError(t, err)
		require.Len(t, hist, 3)
		assert.Equal(t, ids[4], hist[0].ID)
		assert.Equal(t, ids[2], hist[2].ID)
	})

	t.Run("archive failure keeps records", func(t *testing.T) {
		c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
		l, store := newTestLedger(c, 1, &recordingArchiver{err: errors.New("bucket gone")})

		for i := 0; i < 3; i++ {
			_, err := l.Record(ctx, domain.TradeRecord{Status: domain.StatusDryRun})
			require.NoError(t, err)
			c.advance(time.Second)
		}
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
		assert.Error(t, l.Trim(ctx))
	})
}

func TestLedgerHistoryLimit(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l, _ := newTestLedger(c, 10, nil)
	for i := 0; i < 4; i++ {
		_, err := l.Record(ctx, domain.TradeRecord{Status: domain.StatusFailed})
		require.NoError(t, err)
		c.advance(time.Second)
	}

	hist, err := l.History(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	assert.True(t, hist[0].CreatedAt.After(hist[1].CreatedAt))

	_, err = (New(Config{Store: memory.NewTradeStore()})).Latest(ctx)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	l, _ := newTestLedger(c, 10, nil)

	_, err := l.Record(ctx, domain.TradeRecord{
		PairKey: "ADA/MIN", BuyVenue: "Minswap", SellVenue: "MuesliSwap",
		Amount: 200, BuyPrice: 0.042, SellPrice: 0.0425, Fees: 1.6, NetProfit: 10,
		Status: domain.StatusDryRun, DryRun: true,
	})
	require.NoError(t, err)
	c.advance(time.Second)
	_, err = l.Record(ctx, domain.TradeRecord{
		PairKey: "ADA/SNEK", Status: domain.StatusFailed,
		ErrorMessage: "Buy failed: build error, no funds moved",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, l.ExportCSV(ctx, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "ADA/MIN", rows[1][2])
	assert.Equal(t, "10.0000", rows[1][9])
	assert.Equal(t, "dry-run", rows[1][10])
	assert.Equal(t, "true", rows[1][13])
	assert.Equal(t, "Buy failed: build error, no funds moved", rows[2][14])
}
