package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// SettingsStore keeps the settings document in memory. Get returns
// domain.ErrNotFound until the first Save.
type SettingsStore struct {
	mu    sync.RWMutex
	saved *domain.TradeSettings
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{}
}

func (s *SettingsStore) Get(_ context.Context) (domain.TradeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.saved == nil {
		return domain.TradeSettings{}, fmt.Errorf("memory: get settings: %w", domain.ErrNotFound)
	}
	return *s.saved, nil
}

func (s *SettingsStore) Save(_ context.Context, settings domain.TradeSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = &settings
	return nil
}

// AuditStore is an append-only in-memory audit log.
type AuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	now     func() time.Time
}

func NewAuditStore() *AuditStore {
	return &AuditStore{now: time.Now}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AuditEntry
	skipped := 0
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}
