package arbitrage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

type stubSnapshots struct {
	snap domain.QuoteSnapshot
	err  error
}

func (s *stubSnapshots) Snapshot(context.Context) (domain.QuoteSnapshot, error) {
	return s.snap, s.err
}

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *recordingBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestDetector(p SnapshotProvider, bus domain.SignalBus) *Detector {
	return NewDetector(DetectorConfig{
		Engine:    newTestEngine(FixedJitter(0.5)),
		Quotes:    p,
		Bus:       bus,
		Interval:  time.Hour,
		TradeSize: 1000,
		Logger:    discardLogger(),
	})
}

func TestDetectorRunPublishesAndCallsHooks(t *testing.T) {
	provider := &stubSnapshots{snap: domain.QuoteSnapshot{
		Quotes:    []domain.Quote{quote("Minswap", "MIN", 0.040), quote("SundaeSwap", "MIN", 0.044)},
		FetchedAt: testNow,
	}}
	bus := &recordingBus{}
	d := newTestDetector(provider, bus)

	got := make(chan domain.ScanReport, 1)
	d.OnReport(func(_ context.Context, r domain.ScanReport) { got <- r })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case r := <-got:
		assert.Len(t, r.Opportunities, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("hook not called")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	latest, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, 1, latest.Stats.TotalOpportunities)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Len(t, bus.published[domain.ChannelScan], 1)
}

func TestDetectorFindRevalidatesAtTradeSize(t *testing.T) {
	provider := &stubSnapshots{snap: domain.QuoteSnapshot{
		Quotes: []domain.Quote{quote("Minswap", "MIN", 0.040), quote("SundaeSwap", "MIN", 0.044)},
	}}
	d := newTestDetector(provider, nil)

	opp, err := d.Find(context.Background(), "ADA/MIN-Minswap-SundaeSwap", 200)
	require.NoError(t, err)
	assert.InDelta(t, 220-200-(2.3+0.2+0.6)-(2.3+0.22+0.66), opp.NetProfit, 1e-6)

	_, err = d.Find(context.Background(), "ADA/SNEK-Minswap-SundaeSwap", 200)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDetectorScanError(t *testing.T) {
	d := newTestDetector(&stubSnapshots{err: errors.New("boom")}, nil)
	_, err := d.Scan(context.Background(), 1000, 0)
	assert.ErrorContains(t, err, "boom")

	_, ok := d.Latest()
	assert.False(t, ok)
}
