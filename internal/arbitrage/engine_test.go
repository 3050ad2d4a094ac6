package arbitrage

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testFees() FeeModel {
	return FeeModel{
		FixedPerSwap:   2.3,
		AggregatorPct:  0.001,
		DefaultPoolFee: 0.003,
		PoolFees:       map[string]float64{"WingRiders": 0.0035},
	}
}

func newTestEngine(j Jitter) *Engine {
	return NewEngine(EngineConfig{
		Fees:             testFees(),
		HighThreshold:    2,
		TriangularMinPct: -1,
		TriangularMaxPct: 5,
		TriangularTopN:   20,
	}, j)
}

func quote(venue, token string, price float64) domain.Quote {
	return domain.Quote{
		Venue:       venue,
		BaseSymbol:  domain.BaseSymbol,
		QuoteSymbol: token,
		PairKey:     domain.PairKeyFor(domain.BaseSymbol, token),
		Price:       price,
		Depth:       50_000,
		ObservedAt:  testNow,
	}
}

func TestFindDirectOpportunities_FeeAdjustedProfit(t *testing.T) {
	e := newTestEngine(FixedJitter(0.5))
	quotes := []domain.Quote{
		quote("Minswap", "MIN", 0.040),
		quote("SundaeSwap", "MIN", 0.044),
	}

	opps := e.FindDirectOpportunities(quotes, 1000, 0)
	require.Len(t, opps, 1)
	o := opps[0]

	assert.Equal(t, "ADA/MIN-Minswap-SundaeSwap", o.ID)
	assert.Equal(t, "Minswap", o.BuyVenue)
	assert.Equal(t, "SundaeSwap", o.SellVenue)
	assert.InDelta(t, 10.0, o.SpreadPct, 1e-9)
	assert.InDelta(t, 100.0, o.GrossProfit, 1e-6)
	// buy leg 2.3 + 1.0 + 3.0, sell leg 2.3 + 1.1 + 3.3
	assert.InDelta(t, 87.0, o.NetProfit, 1e-6)
	assert.Equal(t, domain.TierGreen, o.Tier)
	assert.Equal(t, "MIN", o.QuoteSymbol)
	assert.Equal(t, testNow, o.ObservedAt)
}

func TestFindDirectOpportunities_VenuePoolFee(t *testing.T) {
	e := newTestEngine(nil)
	quotes := []domain.Quote{
		quote("WingRiders", "SNEK", 0.0030),
		quote("Minswap", "SNEK", 0.0033),
	}
	opps := e.FindDirectOpportunities(quotes, 1000, 0)
	require.Len(t, opps, 1)
	// buy on WingRiders pays 0.35% pool fee
	assert.InDelta(t, 1100-1000-(2.3+1+3.5)-(2.3+1.1+3.3), opps[0].NetProfit, 1e-6)
}

func TestFindDirectOpportunities_CarriesQuoteSources(t *testing.T) {
	e := newTestEngine(nil)
	live := quote("Minswap", "MIN", 0.030)
	live.Source = domain.VenueLive
	demo := quote("MuesliSwap", "MIN", 0.042)
	demo.Source = domain.VenueDemo

	opps := e.FindDirectOpportunities([]domain.Quote{live, demo}, 1000, 0)
	require.Len(t, opps, 1)
	assert.Equal(t, domain.VenueLive, opps[0].BuySource)
	assert.Equal(t, domain.VenueDemo, opps[0].SellSource)
	assert.False(t, opps[0].LiveQuotes())

	demo.Source = domain.VenueLive
	opps = e.FindDirectOpportunities([]domain.Quote{live, demo}, 1000, 0)
	require.Len(t, opps, 1)
	assert.True(t, opps[0].LiveQuotes())
}

func TestFindDirectOpportunities_SingleVenuePairsYieldNothing(t *testing.T) {
	e := newTestEngine(nil)
	quotes := []domain.Quote{
		quote("Minswap", "MIN", 0.04),
		quote("Minswap", "MIN", 0.05), // same venue twice
		quote("SundaeSwap", "SNEK", 0.003),
	}
	assert.Empty(t, e.FindDirectOpportunities(quotes, 1000, 0))
}

func TestFindDirectOpportunities_Filters(t *testing.T) {
	e := newTestEngine(nil)

	t.Run("zero buy price skipped", func(t *testing.T) {
		quotes := []domain.Quote{quote("Minswap", "MIN", 0), quote("SundaeSwap", "MIN", 0.04)}
		assert.Empty(t, e.FindDirectOpportunities(quotes, 1000, 0))
	})

	t.Run("below min spread skipped", func(t *testing.T) {
		quotes := []domain.Quote{quote("Minswap", "MIN", 0.040), quote("SundaeSwap", "MIN", 0.0404)}
		assert.Empty(t, e.FindDirectOpportunities(quotes, 1000, 2))
		assert.Len(t, e.FindDirectOpportunities(quotes, 1000, 0.5), 1)
	})
}

func TestFindDirectOpportunities_Tiers(t *testing.T) {
	e := newTestEngine(nil)
	cases := []struct {
		name string
		sell float64
		want domain.Tier
	}{
		{"green above threshold", 0.0440, domain.TierGreen},
		// proceeds 1014 less ~13.3 fees leaves under 2 ADA
		{"yellow between zero and threshold", 0.04056, domain.TierYellow},
		{"red when fees exceed spread", 0.0402, domain.TierRed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quotes := []domain.Quote{quote("Minswap", "MIN", 0.04), quote("SundaeSwap", "MIN", tc.sell)}
			opps := e.FindDirectOpportunities(quotes, 1000, 0)
			require.Len(t, opps, 1)
			assert.Equal(t, tc.want, opps[0].Tier, "net=%.4f", opps[0].NetProfit)
		})
	}
}

func TestFindDirectOpportunities_SortedByNetProfit(t *testing.T) {
	e := newTestEngine(nil)
	quotes := []domain.Quote{
		quote("Minswap", "MIN", 0.040),
		quote("SundaeSwap", "MIN", 0.041),
		quote("MuesliSwap", "MIN", 0.046),
		quote("Minswap", "SNEK", 0.0030),
		quote("WingRiders", "SNEK", 0.0031),
	}
	opps := e.FindDirectOpportunities(quotes, 1000, 0)
	require.Len(t, opps, 4)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].NetProfit, opps[i].NetProfit)
	}
	assert.Equal(t, "ADA/MIN-Minswap-MuesliSwap", opps[0].ID)
}

func TestFindDirectOpportunities_Invariants(t *testing.T) {
	e := newTestEngine(nil)
	rng := rand.New(rand.NewPCG(7, 11))
	venues := []string{"Minswap", "SundaeSwap", "WingRiders", "MuesliSwap"}
	tokens := []string{"MIN", "SNEK", "INDY", "HOSKY", "DJED"}

	for round := 0; round < 50; round++ {
		var quotes []domain.Quote
		for _, tok := range tokens {
			for _, v := range venues {
				if rng.IntN(3) == 0 {
					continue
				}
				quotes = append(quotes, quote(v, tok, rng.Float64()*2))
			}
		}
		minSpread := rng.Float64() * 10
		for _, o := range e.FindDirectOpportunities(quotes, 200, minSpread) {
			assert.LessOrEqual(t, o.BuyPrice, o.SellPrice, o.ID)
			assert.GreaterOrEqual(t, o.SpreadPct, minSpread, o.ID)
			assert.Equal(t, fmt.Sprintf("%s-%s-%s", o.PairKey, o.BuyVenue, o.SellVenue), o.ID)
		}
	}
}

func TestFindDirectOpportunities_FixedFeeDominatesSmallSizes(t *testing.T) {
	e := newTestEngine(nil)
	quotes := []domain.Quote{quote("Minswap", "MIN", 0.040), quote("SundaeSwap", "MIN", 0.044)}

	small := e.FindDirectOpportunities(quotes, 10, 0)
	large := e.FindDirectOpportunities(quotes, 1000, 0)
	require.Len(t, small, 1)
	require.Len(t, large, 1)

	assert.Less(t, small[0].NetProfit/10, large[0].NetProfit/1000)
	assert.Negative(t, small[0].NetProfit)
}

func TestFindDirectOpportunities_Idempotent(t *testing.T) {
	e := newTestEngine(nil)
	quotes := []domain.Quote{
		quote("Minswap", "MIN", 0.040),
		quote("SundaeSwap", "MIN", 0.041),
		quote("MuesliSwap", "MIN", 0.046),
		quote("WingRiders", "MIN", 0.046),
	}
	first := e.FindDirectOpportunities(quotes, 500, 0)
	second := e.FindDirectOpportunities(quotes, 500, 0)
	assert.Equal(t, first, second)
}

func TestFindTriangularOpportunities(t *testing.T) {
	quotes := []domain.Quote{
		quote("Minswap", "MIN", 0.04),
		quote("Minswap", "SNEK", 0.003),
		quote("Minswap", "INDY", 1.85),
		quote("SundaeSwap", "MIN", 0.041), // only one token on this venue
	}

	t.Run("fixed jitter is reproducible", func(t *testing.T) {
		e := NewEngine(EngineConfig{
			Fees:             FeeModel{DefaultPoolFee: 0.003},
			TriangularMinPct: -1,
			TriangularMaxPct: 5,
		}, FixedJitter(0.75))

		tri := e.FindTriangularOpportunities(quotes, 1000)
		require.Len(t, tri, 6)
		for _, o := range tri {
			assert.Equal(t, "Minswap", o.Venue)
			require.Len(t, o.Route, 4)
			assert.Equal(t, domain.BaseSymbol, o.Route[0])
			assert.Equal(t, domain.BaseSymbol, o.Route[3])
			require.Len(t, o.Legs, len(o.Route)-1)
			assert.InDelta(t, o.Legs[0].Price/o.Legs[2].Price, o.Legs[1].Price, 1e-12)
			// +0.5% jitter minus 3 x 0.3% pool fees
			assert.InDelta(t, -0.4, o.ProfitPct, 1e-9)
			assert.InDelta(t, -4.0, o.NetProfit, 1e-6)
			assert.False(t, o.Executable)
		}
		assert.Equal(t, tri, e.FindTriangularOpportunities(quotes, 1000))
	})

	t.Run("implausible results dropped", func(t *testing.T) {
		e := newTestEngine(FixedJitter(0.5))
		// 3 x (3 + 2.3) fees is -1.59%, outside the band
		assert.Empty(t, e.FindTriangularOpportunities(quotes, 1000))
	})

	t.Run("top N", func(t *testing.T) {
		// without fees every jittered route lands inside (-1%, 1%)
		e := NewEngine(EngineConfig{
			TriangularMinPct: -1,
			TriangularMaxPct: 5,
			TriangularTopN:   4,
		}, NewRandJitter(42))
		tri := e.FindTriangularOpportunities(quotes, 1000)
		require.Len(t, tri, 4)
		for i := 1; i < len(tri); i++ {
			assert.GreaterOrEqual(t, tri[i-1].ProfitPct, tri[i].ProfitPct)
		}
	})

	t.Run("non-base pools ignored", func(t *testing.T) {
		e := NewEngine(EngineConfig{
			Fees:             FeeModel{DefaultPoolFee: 0.003},
			TriangularMinPct: -1,
			TriangularMaxPct: 5,
		}, FixedJitter(0.75))
		foreign := quote("Minswap", "MIN", 13.3)
		foreign.BaseSymbol = "SNEK"
		foreign.PairKey = "SNEK/MIN"

		want := e.FindTriangularOpportunities(quotes, 1000)
		got := e.FindTriangularOpportunities(append([]domain.Quote{foreign}, quotes...), 1000)
		assert.Equal(t, want, got)
	})

	t.Run("seeded jitter reproducible across engines", func(t *testing.T) {
		cfg := EngineConfig{TriangularMinPct: -1, TriangularMaxPct: 5}
		a := NewEngine(cfg, NewRandJitter(99)).FindTriangularOpportunities(quotes, 1000)
		b := NewEngine(cfg, NewRandJitter(99)).FindTriangularOpportunities(quotes, 1000)
		assert.Equal(t, a, b)
	})
}

func TestBuildReport(t *testing.T) {
	e := newTestEngine(FixedJitter(0.5))
	snap := domain.QuoteSnapshot{
		Quotes: []domain.Quote{
			quote("Minswap", "MIN", 0.040),
			quote("SundaeSwap", "MIN", 0.044),
			quote("MuesliSwap", "MIN", 0.042),
		},
		Statuses:  []domain.VenueStatus{{Venue: "Minswap", State: domain.VenueDemo}},
		IsDemo:    true,
		FetchedAt: testNow,
	}
	r := e.BuildReport(snap, 1000, 0)
	assert.Equal(t, 3, r.Stats.TotalOpportunities)
	assert.InDelta(t, 10.0, r.Stats.BestSpreadPct, 1e-9)
	assert.InDelta(t, (10.0+5.0+(0.044-0.042)/0.042*100)/3, r.Stats.AvgSpreadPct, 1e-9)
	assert.True(t, r.IsDemo)
	assert.NotNil(t, r.Triangular)
	assert.Equal(t, testNow, r.Stats.LastUpdate)
}
