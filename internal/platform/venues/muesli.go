package venues

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const muesliMaxItems = 50

// muesliPrice is either a bare number or {"value": n}.
type muesliPrice float64

func (p *muesliPrice) UnmarshalJSON(b []byte) error {
	var obj struct {
		Value flexFloat `json:"value"`
	}
	if len(b) > 0 && b[0] == '{' {
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*p = muesliPrice(obj.Value)
		return nil
	}
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*p = muesliPrice(f)
	return nil
}

type muesliItem struct {
	Info struct {
		Symbol string `json:"symbol"`
	} `json:"info"`
	Symbol    string      `json:"symbol"`
	Price     muesliPrice `json:"price"`
	Liquidity flexFloat   `json:"liquidity"`
}

type muesliFetcher struct {
	*client
}

func (f *muesliFetcher) Fetch(ctx context.Context) ([]domain.Quote, error) {
	var items []muesliItem
	if err := f.do(ctx, http.MethodGet, nil, &items); err != nil {
		return nil, err
	}
	if len(items) > muesliMaxItems {
		items = items[:muesliMaxItems]
	}

	now := f.now()
	out := make([]domain.Quote, 0, len(items))
	for _, it := range items {
		symbol := it.Info.Symbol
		if symbol == "" {
			symbol = it.Symbol
		}
		depth := float64(it.Liquidity)
		if depth == 0 {
			depth = 10000
		}
		if q, ok := f.quote(symbol, float64(it.Price), depth, now); ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, f.noQuotes()
	}
	return out, nil
}
