package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Archiver uploads trimmed ledger rows as JSONL and full history exports as
// CSV. Every upload is recorded in the audit log when one is configured.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// ArchiverConfig wires an Archiver. Audit and Prefix are optional.
type ArchiverConfig struct {
	Writer domain.BlobWriter
	Audit  domain.AuditStore
	Prefix string
	Now    func() time.Time
	Logger *slog.Logger
}

func NewArchiver(cfg ArchiverConfig) *Archiver {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Archiver{writer: cfg.Writer, audit: cfg.Audit, prefix: prefix, now: now, logger: logger}
}

// ArchiveTrades writes records to <prefix>trades/YYYY-MM-DD/<timestamp>.jsonl
// and returns the object key. An empty batch uploads nothing.
func (a *Archiver) ArchiveTrades(ctx context.Context, records []domain.TradeRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	now := a.now().UTC()
	path := fmt.Sprintf("%strades/%s/%s.jsonl", a.prefix, now.Format("2006-01-02"), now.Format("20060102T150405.000Z"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	a.logAudit(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  len(records),
		"oldest": records[0].CreatedAt.UTC().Format(time.RFC3339),
	})
	return path, nil
}

// UploadCSV streams the output of write into <prefix>exports/trades-<ts>.csv
// through a multipart upload and returns the object key.
func (a *Archiver) UploadCSV(ctx context.Context, write func(io.Writer) error) (string, error) {
	path := fmt.Sprintf("%sexports/trades-%s.csv", a.prefix, a.now().UTC().Format("20060102T150405Z"))

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(write(pw))
	}()
	if err := a.writer.PutMultipart(ctx, path, pr, minPartSize); err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("s3blob: upload export: %w", err)
	}

	a.logAudit(ctx, "export.csv", map[string]any{"path": path})
	return path, nil
}

func (a *Archiver) logAudit(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Log(ctx, event, detail); err != nil {
		a.logger.Warn("s3blob: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// marshalJSONL encodes one compact JSON value per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
