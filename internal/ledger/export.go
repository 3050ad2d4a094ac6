package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

var csvHeader = []string{
	"id", "created_at", "pair", "buy_venue", "sell_venue", "amount",
	"buy_price", "sell_price", "fees", "net_profit", "status",
	"buy_tx", "sell_tx", "dry_run", "error",
}

// WriteCSV writes records, in the given order, as CSV with a header row.
func WriteCSV(w io.Writer, records []domain.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("ledger: csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.PairKey,
			r.BuyVenue,
			r.SellVenue,
			formatFloat(r.Amount),
			strconv.FormatFloat(r.BuyPrice, 'f', -1, 64),
			strconv.FormatFloat(r.SellPrice, 'f', -1, 64),
			formatFloat(r.Fees),
			formatFloat(r.NetProfit),
			string(r.Status),
			r.BuyTxRef,
			r.SellTxRef,
			strconv.FormatBool(r.DryRun),
			r.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("ledger: csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the retained history oldest first.
func (l *Ledger) ExportCSV(ctx context.Context, w io.Writer) error {
	recs, err := l.store.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("ledger: export: %w", err)
	}
	reverse(recs)
	return WriteCSV(w, recs)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
