package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/store/memory"
)

type object struct {
	path        string
	contentType string
	multipart   bool
	data        []byte
}

type fakeWriter struct {
	objects []object
	err     error
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects = append(f.objects, object{path: path, contentType: contentType, data: b})
	return nil
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects = append(f.objects, object{path: path, multipart: true, data: b})
	return nil
}

var fixedNow = time.Date(2026, 6, 2, 8, 30, 15, 0, time.UTC)

func newTestArchiver(w domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return NewArchiver(ArchiverConfig{
		Writer: w,
		Audit:  audit,
		Prefix: "/arbscanner/",
		Now:    func() time.Time { return fixedNow },
	})
}

func TestArchiveTrades(t *testing.T) {
	w := &fakeWriter{}
	audit := memory.NewAuditStore()
	a := newTestArchiver(w, audit)

	records := []domain.TradeRecord{
		{ID: "t1", CreatedAt: fixedNow.Add(-2 * time.Hour), PairKey: "ADA/MIN", Status: domain.StatusCompleted, NetProfit: 1.5},
		{ID: "t2", CreatedAt: fixedNow.Add(-time.Hour), PairKey: "ADA/SNEK", Status: domain.StatusFailed},
	}
	path, err := a.ArchiveTrades(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, "arbscanner/trades/2026-06-02/20260602T083015.000Z.jsonl", path)

	require.Len(t, w.objects, 1)
	assert.Equal(t, "application/x-ndjson", w.objects[0].contentType)

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(w.objects[0].data))
	for sc.Scan() {
		var rec domain.TradeRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"t1", "t2"}, ids)

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.trades", entries[0].Event)
	assert.Equal(t, 2, entries[0].Detail["count"])

	path, err = a.ArchiveTrades(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Len(t, w.objects, 1)
}

func TestArchiveTradesUploadError(t *testing.T) {
	a := newTestArchiver(&fakeWriter{err: errors.New("503 slow down")}, nil)
	_, err := a.ArchiveTrades(context.Background(), []domain.TradeRecord{{ID: "t1"}})
	assert.ErrorContains(t, err, "503 slow down")
}

func TestUploadCSV(t *testing.T) {
	w := &fakeWriter{}
	a := newTestArchiver(w, nil)

	path, err := a.UploadCSV(context.Background(), func(out io.Writer) error {
		_, err := io.WriteString(out, "id,pair\nt1,ADA/MIN\n")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "arbscanner/exports/trades-20260602T083015Z.csv", path)
	require.Len(t, w.objects, 1)
	assert.True(t, w.objects[0].multipart)
	assert.Equal(t, "id,pair\nt1,ADA/MIN\n", string(w.objects[0].data))

	_, err = a.UploadCSV(context.Background(), func(io.Writer) error { return errors.New("ledger down") })
	assert.ErrorContains(t, err, "ledger down")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.True(t, strings.HasPrefix(normaliseEndpoint("r2.dev", true), "https://"))
}
