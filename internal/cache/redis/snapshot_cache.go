package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const snapshotKey = "arb:quotes:snapshot"

// SnapshotCache mirrors the latest quote snapshot as JSON with a TTL so
// several processes can share one fetch cycle.
type SnapshotCache struct {
	rdb *redis.Client
}

func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.QuoteSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns domain.ErrNotFound once the mirrored snapshot expires.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context) (domain.QuoteSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.QuoteSnapshot{}, domain.ErrNotFound
		}
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: get snapshot: %w", err)
	}
	var snap domain.QuoteSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.QuoteSnapshot{}, fmt.Errorf("redis: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

var _ domain.QuoteSnapshotCache = (*SnapshotCache)(nil)
