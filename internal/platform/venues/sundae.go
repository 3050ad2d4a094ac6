package venues

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const sundaeMaxPools = 30

type sundaePool struct {
	TokenB struct {
		Ticker string `json:"ticker"`
	} `json:"tokenB"`
	Pair  string    `json:"pair"`
	Price flexFloat `json:"price"`
	TVL   flexFloat `json:"tvl"`
}

type sundaeFetcher struct {
	*client
}

func (f *sundaeFetcher) Fetch(ctx context.Context) ([]domain.Quote, error) {
	var raw json.RawMessage
	if err := f.do(ctx, http.MethodGet, nil, &raw); err != nil {
		return nil, err
	}
	pools := unwrapList[sundaePool](raw, "pools")
	if len(pools) > sundaeMaxPools {
		pools = pools[:sundaeMaxPools]
	}

	now := f.now()
	out := make([]domain.Quote, 0, len(pools))
	for _, p := range pools {
		symbol := p.TokenB.Ticker
		if symbol == "" {
			symbol = pairToken(p.Pair)
		}
		if q, ok := f.quote(symbol, float64(p.Price), float64(p.TVL), now); ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, f.noQuotes()
	}
	return out, nil
}
