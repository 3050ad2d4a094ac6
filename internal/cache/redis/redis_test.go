package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c, mr
}

func TestSnapshotCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewSnapshotCache(c)

	_, err := cache.GetSnapshot(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	snap := domain.QuoteSnapshot{
		Quotes: []domain.Quote{{
			Venue: "Minswap", BaseSymbol: "ADA", QuoteSymbol: "MIN", PairKey: "ADA/MIN",
			Price: 0.0213, Depth: 40000, ObservedAt: at,
		}},
		Statuses:  []domain.VenueStatus{{Venue: "Minswap", State: domain.VenueLive, LastUpdate: at, QuoteCount: 1}},
		FetchedAt: at,
	}
	require.NoError(t, cache.SetSnapshot(ctx, snap, 12*time.Second))

	got, err := cache.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Quotes[0].Price, got.Quotes[0].Price)
	assert.True(t, got.FetchedAt.Equal(at))
	assert.Equal(t, domain.VenueLive, got.Statuses[0].State)

	mr.FastForward(13 * time.Second)
	_, err = cache.GetSnapshot(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "trade", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "trade", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "trade", time.Minute)
	require.NoError(t, err)

	// An expired holder must not release its successor.
	mr.FastForward(2 * time.Minute)
	unlock3, err := lm.Acquire(ctx, "trade", time.Minute)
	require.NoError(t, err)
	unlock2()
	assert.True(t, mr.Exists(lockKey("trade")))
	unlock3()
	assert.False(t, mr.Exists(lockKey("trade")))
}

func TestRateLimiter(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c, 2, time.Minute)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "dexhunter", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i)
		now = now.Add(time.Millisecond)
	}
	ok, err := rl.Allow(ctx, "dexhunter", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(61 * time.Second)
	ok, err = rl.Allow(ctx, "dexhunter", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window slides")

	require.NoError(t, rl.Wait(ctx, "other"))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, rl.Wait(cctx, "other"), context.Canceled)
}

func TestSignalBus(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c, 100)

	msgs, err := bus.Subscribe(ctx, "arb:*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelTradeStatus, []byte(`{"status":"completed"}`)))

	select {
	case m := <-msgs:
		assert.JSONEq(t, `{"status":"completed"}`, string(m))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	got, err := bus.StreamRead(ctx, domain.StreamTrades, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamTrades, []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamTrades, []byte("b")))
	got, err = bus.StreamRead(ctx, domain.StreamTrades, "0", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []byte("a"), got[0].Payload)

	rest, err := bus.StreamRead(ctx, domain.StreamTrades, got[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("b"), rest[0].Payload)

	cancel()
	_, open := <-msgs
	for open {
		_, open = <-msgs
	}
}
