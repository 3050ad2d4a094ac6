// Package memory implements the domain store interfaces in process memory.
// It backs the ledger when no database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// TradeStore implements domain.TradeStore over a slice ordered by creation
// time.
type TradeStore struct {
	mu      sync.RWMutex
	records []domain.TradeRecord
	index   map[string]int
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{index: make(map[string]int)}
}

func (s *TradeStore) Insert(_ context.Context, rec domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[rec.ID]; ok {
		return fmt.Errorf("memory: insert trade %s: %w", rec.ID, domain.ErrAlreadyExists)
	}
	// Keep creation order even when callers insert out of order.
	pos := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].CreatedAt.After(rec.CreatedAt)
	})
	s.records = append(s.records, domain.TradeRecord{})
	copy(s.records[pos+1:], s.records[pos:])
	s.records[pos] = rec
	s.reindex()
	return nil
}

func (s *TradeStore) Update(_ context.Context, rec domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[rec.ID]
	if !ok {
		return fmt.Errorf("memory: update trade %s: %w", rec.ID, domain.ErrNotFound)
	}
	rec.CreatedAt = s.records[i].CreatedAt
	s.records[i] = rec
	return nil
}

func (s *TradeStore) GetByID(_ context.Context, id string) (domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return domain.TradeRecord{}, fmt.Errorf("memory: get trade %s: %w", id, domain.ErrNotFound)
	}
	return s.records[i], nil
}

// List returns records newest first, honouring the time window, offset and
// limit in opts.
func (s *TradeStore) List(_ context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TradeRecord, 0, len(s.records))
	skipped := 0
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if opts.Since != nil && r.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.CreatedAt.After(*opts.Until) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *TradeStore) Latest(_ context.Context) (domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return domain.TradeRecord{}, fmt.Errorf("memory: latest trade: %w", domain.ErrNotFound)
	}
	return s.records[len(s.records)-1], nil
}

func (s *TradeStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *TradeStore) DeleteOldest(_ context.Context, keep int) ([]domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	n := len(s.records) - keep
	if n <= 0 {
		return nil, nil
	}
	removed := make([]domain.TradeRecord, n)
	copy(removed, s.records[:n])
	s.records = append([]domain.TradeRecord(nil), s.records[n:]...)
	s.reindex()
	return removed, nil
}

func (s *TradeStore) reindex() {
	clear(s.index)
	for i, r := range s.records {
		s.index[r.ID] = i
	}
}
