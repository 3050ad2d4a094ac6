package venues

import (
	"context"
	"net/http"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

const wingRidersPoolsQuery = `{ pools(first: 20) { tokenA { symbol } tokenB { symbol } price tvl } }`

type wingRidersResponse struct {
	Data struct {
		Pools []struct {
			TokenA struct {
				Symbol string `json:"symbol"`
			} `json:"tokenA"`
			TokenB struct {
				Symbol string `json:"symbol"`
			} `json:"tokenB"`
			Price flexFloat `json:"price"`
			TVL   flexFloat `json:"tvl"`
		} `json:"pools"`
	} `json:"data"`
}

// wingRidersFetcher queries the GraphQL endpoint.
type wingRidersFetcher struct {
	*client
}

func (f *wingRidersFetcher) Fetch(ctx context.Context) ([]domain.Quote, error) {
	var resp wingRidersResponse
	body := map[string]string{"query": wingRidersPoolsQuery}
	if err := f.do(ctx, http.MethodPost, body, &resp); err != nil {
		return nil, err
	}

	now := f.now()
	out := make([]domain.Quote, 0, len(resp.Data.Pools))
	for _, p := range resp.Data.Pools {
		if q, ok := f.quote(p.TokenB.Symbol, float64(p.Price), float64(p.TVL), now); ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, f.noQuotes()
	}
	return out, nil
}
