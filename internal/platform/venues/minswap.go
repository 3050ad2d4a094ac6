package venues

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const minswapMaxPools = 30

type minswapPool struct {
	TokenB struct {
		Symbol string `json:"symbol"`
	} `json:"tokenB"`
	Pair        string    `json:"pair"`
	Price       flexFloat `json:"price"`
	TokenBPrice flexFloat `json:"tokenBPrice"`
	TVL         flexFloat `json:"tvl"`
	Liquidity   flexFloat `json:"liquidity"`
}

// minswapFetcher reads the commerce pools endpoint. The body is either a
// bare array or an object wrapping it in "data" or "pools".
type minswapFetcher struct {
	*client
}

func (f *minswapFetcher) Fetch(ctx context.Context) ([]domain.Quote, error) {
	var raw json.RawMessage
	if err := f.do(ctx, http.MethodGet, nil, &raw); err != nil {
		return nil, err
	}
	pools := unwrapList[minswapPool](raw, "data", "pools")
	if len(pools) > minswapMaxPools {
		pools = pools[:minswapMaxPools]
	}

	now := f.now()
	out := make([]domain.Quote, 0, len(pools))
	for _, p := range pools {
		symbol := p.TokenB.Symbol
		if symbol == "" {
			symbol = pairToken(p.Pair)
		}
		price := float64(p.Price)
		if price == 0 {
			price = float64(p.TokenBPrice)
		}
		depth := float64(p.TVL)
		if depth == 0 {
			depth = float64(p.Liquidity)
		}
		if q, ok := f.quote(symbol, price, depth, now); ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, f.noQuotes()
	}
	return out, nil
}

// unwrapList decodes raw as []T, or as an object holding []T under the
// first matching key. Malformed input yields nil.
func unwrapList[T any](raw json.RawMessage, keys ...string) []T {
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	for _, k := range keys {
		inner, ok := obj[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(inner, &list); err == nil {
			return list
		}
	}
	return nil
}
