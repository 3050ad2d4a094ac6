package venues

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// demoBasePrices are reference token prices in ADA.
var demoBasePrices = map[string]float64{
	"MIN":    0.042,
	"SUNDAE": 0.0058,
	"HOSKY":  0.000000058,
	"WRT":    0.085,
	"MILK":   0.32,
	"SNEK":   0.0032,
	"INDY":   1.85,
	"LENFI":  0.78,
	"OPTIM":  0.12,
	"iUSD":   1.0,
	"DJED":   1.0,
}

// demoOffsets shift each venue so demo data shows realistic spreads.
var demoOffsets = map[string]float64{
	Minswap:    0,
	SundaeSwap: 0.008,
	WingRiders: -0.005,
	MuesliSwap: 0.012,
}

// Demo generates synthetic quotes for venues whose live API failed.
type Demo struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDemo returns a Demo. A zero seed draws from the runtime source.
func NewDemo(seed uint64) *Demo {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Demo{rng: rand.New(rand.NewPCG(seed, seed^0x5a17))}
}

// Quotes returns one quote per demo token for venue, in symbol order.
func (d *Demo) Quotes(venue string, now time.Time) []domain.Quote {
	d.mu.Lock()
	defer d.mu.Unlock()

	symbols := make([]string, 0, len(demoBasePrices))
	for s := range demoBasePrices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	offset := demoOffsets[venue]
	out := make([]domain.Quote, 0, len(symbols))
	for _, s := range symbols {
		jitter := (d.rng.Float64() - 0.5) * 0.015
		out = append(out, domain.Quote{
			Venue:       venue,
			BaseSymbol:  domain.BaseSymbol,
			QuoteSymbol: s,
			PairKey:     domain.PairKeyFor(domain.BaseSymbol, s),
			Price:       demoBasePrices[s] * (1 + offset + jitter),
			Depth:       5000 + d.rng.Float64()*95000,
			ObservedAt:  now,
			Source:      domain.VenueDemo,
		})
	}
	return out
}
