package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// SettingsStore implements domain.SettingsStore using a single-row table.
type SettingsStore struct {
	pool *pgxpool.Pool
}

func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Get returns the saved settings document, or domain.ErrNotFound.
func (s *SettingsStore) Get(ctx context.Context) (domain.TradeSettings, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT settings FROM trade_settings WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeSettings{}, fmt.Errorf("postgres: get settings: %w", domain.ErrNotFound)
		}
		return domain.TradeSettings{}, fmt.Errorf("postgres: get settings: %w", err)
	}

	var settings domain.TradeSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.TradeSettings{}, fmt.Errorf("postgres: unmarshal settings: %w", err)
	}
	return settings, nil
}

// Save replaces the settings document.
func (s *SettingsStore) Save(ctx context.Context, settings domain.TradeSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("postgres: marshal settings: %w", err)
	}

	const query = `
		INSERT INTO trade_settings (id, settings, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			settings   = EXCLUDED.settings,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, raw); err != nil {
		return fmt.Errorf("postgres: save settings: %w", err)
	}
	return nil
}
