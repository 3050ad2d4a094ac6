package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

func TestSignalBusPubSub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewSignalBus(0)

	all, err := bus.Subscribe(ctx, "arb:*")
	require.NoError(t, err)
	scans, err := bus.Subscribe(ctx, domain.ChannelScan)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelTradeStatus, []byte("status")))
	require.NoError(t, bus.Publish(ctx, domain.ChannelScan, []byte("scan")))
	require.NoError(t, bus.Publish(ctx, "other", []byte("ignored")))

	assert.Equal(t, []byte("status"), <-all)
	assert.Equal(t, []byte("scan"), <-all)
	assert.Equal(t, []byte("scan"), <-scans)

	cancel()
	select {
	case _, ok := <-scans:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	_, err = bus.Subscribe(context.Background(), "[")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSignalBusStream(t *testing.T) {
	ctx := context.Background()
	bus := NewSignalBus(2)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamTrades, []byte(p)))
	}

	got, err := bus.StreamRead(ctx, domain.StreamTrades, "0", 10)
	require.NoError(t, err)
	require.Len(t, got, 2, "capped at max length")
	assert.Equal(t, []byte("b"), got[0].Payload)

	rest, err := bus.StreamRead(ctx, domain.StreamTrades, got[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, []byte("c"), rest[0].Payload)

	_, err = bus.StreamRead(ctx, domain.StreamTrades, "x-1", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
