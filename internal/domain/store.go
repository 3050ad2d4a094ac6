package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists ledger entries. Records are appended once and only
// updated while their status is non-terminal.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	Update(ctx context.Context, rec TradeRecord) error
	GetByID(ctx context.Context, id string) (TradeRecord, error)
	List(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	Latest(ctx context.Context) (TradeRecord, error)
	Count(ctx context.Context) (int64, error)
	// DeleteOldest removes all but the newest keep records and returns the
	// removed rows, oldest first.
	DeleteOldest(ctx context.Context, keep int) ([]TradeRecord, error)
}

// SettingsStore persists the single trade settings document. A Save is
// visible to the next Get in the same process.
type SettingsStore interface {
	Get(ctx context.Context) (TradeSettings, error)
	Save(ctx context.Context, s TradeSettings) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
