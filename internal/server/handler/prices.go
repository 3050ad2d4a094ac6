package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// SnapshotProvider returns the current quote snapshot.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (domain.QuoteSnapshot, error)
}

// PriceHandler serves raw venue quotes.
type PriceHandler struct {
	quotes SnapshotProvider
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(quotes SnapshotProvider, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{quotes: quotes, logger: logHandler(logger, "prices")}
}

// ListPrices returns every quote in the current snapshot with venue states.
// GET /api/prices
func (h *PriceHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quotes.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	quotes := snap.Quotes
	if quotes == nil {
		quotes = []domain.Quote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prices":      quotes,
		"dexStatuses": snap.Statuses,
		"isDemo":      snap.IsDemo,
		"timestamp":   snap.FetchedAt.UTC().Format(time.RFC3339),
	})
}

type pairSummary struct {
	Pair     string   `json:"pair"`
	Dexes    []string `json:"dexes"`
	AvgPrice float64  `json:"avgPrice"`
}

// ListPairs groups quotes by pair with the venues quoting each and their
// mean price.
// GET /api/pairs
func (h *PriceHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quotes.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": summarisePairs(snap.Quotes)})
}

func summarisePairs(quotes []domain.Quote) []pairSummary {
	byPair := make(map[string]*pairSummary)
	for _, q := range quotes {
		p, ok := byPair[q.PairKey]
		if !ok {
			p = &pairSummary{Pair: q.PairKey}
			byPair[q.PairKey] = p
		}
		p.Dexes = append(p.Dexes, q.Venue)
		p.AvgPrice += q.Price
	}

	out := make([]pairSummary, 0, len(byPair))
	for _, p := range byPair {
		p.AvgPrice /= float64(len(p.Dexes))
		sort.Strings(p.Dexes)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}
