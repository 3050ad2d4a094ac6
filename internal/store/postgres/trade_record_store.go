package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const uniqueViolation = "23505"

// TradeRecordStore implements domain.TradeStore using PostgreSQL.
type TradeRecordStore struct {
	pool *pgxpool.Pool
}

// NewTradeRecordStore creates a new TradeRecordStore backed by the given connection pool.
func NewTradeRecordStore(pool *pgxpool.Pool) *TradeRecordStore {
	return &TradeRecordStore{pool: pool}
}

const tradeRecordCols = `id, created_at, updated_at, opportunity_id, pair,
	buy_venue, sell_venue, amount, buy_price, sell_price, fees, net_profit,
	status, buy_tx, sell_tx, error_message, dry_run`

func scanTradeRecord(row pgx.Row) (domain.TradeRecord, error) {
	var r domain.TradeRecord
	var status string
	err := row.Scan(
		&r.ID, &r.CreatedAt, &r.UpdatedAt, &r.OpportunityID, &r.PairKey,
		&r.BuyVenue, &r.SellVenue, &r.Amount, &r.BuyPrice, &r.SellPrice,
		&r.Fees, &r.NetProfit, &status, &r.BuyTxRef, &r.SellTxRef,
		&r.ErrorMessage, &r.DryRun,
	)
	r.Status = domain.TradeStatus(status)
	return r, err
}

func scanTradeRecords(rows pgx.Rows) ([]domain.TradeRecord, error) {
	defer rows.Close()
	var out []domain.TradeRecord
	for rows.Next() {
		r, err := scanTradeRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert appends a new record.
func (s *TradeRecordStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trade_records (` + tradeRecordCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.CreatedAt, rec.UpdatedAt, rec.OpportunityID, rec.PairKey,
		rec.BuyVenue, rec.SellVenue, rec.Amount, rec.BuyPrice, rec.SellPrice,
		rec.Fees, rec.NetProfit, string(rec.Status), rec.BuyTxRef, rec.SellTxRef,
		rec.ErrorMessage, rec.DryRun,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// Update overwrites every mutable column. created_at is never changed.
func (s *TradeRecordStore) Update(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		UPDATE trade_records SET
			updated_at     = $2,
			opportunity_id = $3,
			pair           = $4,
			buy_venue      = $5,
			sell_venue     = $6,
			amount         = $7,
			buy_price      = $8,
			sell_price     = $9,
			fees           = $10,
			net_profit     = $11,
			status         = $12,
			buy_tx         = $13,
			sell_tx        = $14,
			error_message  = $15,
			dry_run        = $16
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		rec.ID, rec.UpdatedAt, rec.OpportunityID, rec.PairKey,
		rec.BuyVenue, rec.SellVenue, rec.Amount, rec.BuyPrice, rec.SellPrice,
		rec.Fees, rec.NetProfit, string(rec.Status), rec.BuyTxRef, rec.SellTxRef,
		rec.ErrorMessage, rec.DryRun,
	)
	if err != nil {
		return fmt.Errorf("postgres: update trade %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update trade %s: %w", rec.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns one record.
func (s *TradeRecordStore) GetByID(ctx context.Context, id string) (domain.TradeRecord, error) {
	query := `SELECT ` + tradeRecordCols + ` FROM trade_records WHERE id = $1`
	r, err := scanTradeRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeRecord{}, fmt.Errorf("postgres: get trade %s: %w", id, domain.ErrNotFound)
		}
		return domain.TradeRecord{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return r, nil
}

// List returns records newest first with optional time filtering.
func (s *TradeRecordStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := withListOpts(`SELECT `+tradeRecordCols+` FROM trade_records`, "created_at DESC, id DESC", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	records, err := scanTradeRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return records, nil
}

// Latest returns the most recently created record.
func (s *TradeRecordStore) Latest(ctx context.Context) (domain.TradeRecord, error) {
	query := `SELECT ` + tradeRecordCols + ` FROM trade_records ORDER BY created_at DESC, id DESC LIMIT 1`
	r, err := scanTradeRecord(s.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradeRecord{}, fmt.Errorf("postgres: latest trade: %w", domain.ErrNotFound)
		}
		return domain.TradeRecord{}, fmt.Errorf("postgres: latest trade: %w", err)
	}
	return r, nil
}

func (s *TradeRecordStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trade_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count trades: %w", err)
	}
	return n, nil
}

// DeleteOldest removes all but the newest keep records in one statement and
// returns the removed rows oldest first.
func (s *TradeRecordStore) DeleteOldest(ctx context.Context, keep int) ([]domain.TradeRecord, error) {
	if keep < 0 {
		keep = 0
	}
	query := `
		WITH doomed AS (
			SELECT id FROM trade_records
			ORDER BY created_at DESC, id DESC
			OFFSET $1
		)
		DELETE FROM trade_records t USING doomed d
		WHERE t.id = d.id
		RETURNING ` + prefixed("t.", tradeRecordCols)

	rows, err := s.pool.Query(ctx, query, keep)
	if err != nil {
		return nil, fmt.Errorf("postgres: delete oldest trades: %w", err)
	}
	removed, err := scanTradeRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: delete oldest trades: %w", err)
	}
	// RETURNING has no defined order.
	sortOldestFirst(removed)
	return removed, nil
}

// withListOpts appends time filters, ordering, and pagination from opts.
func withListOpts(base, orderBy string, opts domain.ListOpts) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		where = append(where, "created_at >= "+arg(*opts.Since))
	}
	if opts.Until != nil {
		where = append(where, "created_at <= "+arg(*opts.Until))
	}

	var b strings.Builder
	b.WriteString(base)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + orderBy)
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + arg(opts.Offset))
	}
	return b.String(), args
}

func prefixed(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func sortOldestFirst(records []domain.TradeRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
