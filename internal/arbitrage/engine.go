// Package arbitrage turns a set of per-venue quotes into ranked, fee-adjusted
// arbitrage candidates and runs that detection on a schedule.
package arbitrage

import (
	"sort"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// EngineConfig parameterises the opportunity engine.
type EngineConfig struct {
	Fees FeeModel
	// HighThreshold is the net profit above which an opportunity is green.
	HighThreshold    float64
	TriangularMinPct float64
	TriangularMaxPct float64
	TriangularTopN   int
}

// Engine is stateless apart from its jitter source and is safe for
// concurrent use.
type Engine struct {
	cfg    EngineConfig
	jitter Jitter
}

// NewEngine returns an Engine. A nil jitter uses a time-seeded RandJitter.
func NewEngine(cfg EngineConfig, jitter Jitter) *Engine {
	if jitter == nil {
		jitter = NewRandJitter(0)
	}
	if cfg.TriangularTopN <= 0 {
		cfg.TriangularTopN = 20
	}
	return &Engine{cfg: cfg, jitter: jitter}
}

// Fees returns the engine's fee model.
func (e *Engine) Fees() FeeModel { return e.cfg.Fees }

// Tier classifies a net profit.
func (e *Engine) Tier(netProfit float64) domain.Tier {
	switch {
	case netProfit > e.cfg.HighThreshold:
		return domain.TierGreen
	case netProfit > 0:
		return domain.TierYellow
	default:
		return domain.TierRed
	}
}

// FindDirectOpportunities compares every pair of venues quoting the same
// pair and returns buy-low/sell-high candidates with spread >= minSpreadPct,
// sorted by net profit, best first.
func (e *Engine) FindDirectOpportunities(quotes []domain.Quote, tradeSize, minSpreadPct float64) []domain.Opportunity {
	byPair := groupByPair(quotes)

	var opps []domain.Opportunity
	for _, pair := range sortedKeys(byPair) {
		venues := byPair[pair]
		if len(venues) < 2 {
			continue
		}
		for i := 0; i < len(venues); i++ {
			for j := i + 1; j < len(venues); j++ {
				buy, sell := venues[i], venues[j]
				if sell.Price < buy.Price {
					buy, sell = sell, buy
				}
				if buy.Price == 0 {
					continue
				}
				spread := (sell.Price - buy.Price) / buy.Price * 100
				if spread < minSpreadPct {
					continue
				}
				opps = append(opps, e.direct(pair, buy, sell, spread, tradeSize))
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].NetProfit != opps[j].NetProfit {
			return opps[i].NetProfit > opps[j].NetProfit
		}
		return opps[i].ID < opps[j].ID
	})
	return opps
}

func (e *Engine) direct(pair string, buy, sell domain.Quote, spread, tradeSize float64) domain.Opportunity {
	tokens := tradeSize / buy.Price
	proceeds := tokens * sell.Price
	buyFees := e.cfg.Fees.LegFee(buy.Venue, tradeSize)
	sellFees := e.cfg.Fees.LegFee(sell.Venue, proceeds)
	net := proceeds - tradeSize - buyFees - sellFees

	return domain.Opportunity{
		ID:          pair + "-" + buy.Venue + "-" + sell.Venue,
		PairKey:     pair,
		BaseSymbol:  buy.BaseSymbol,
		QuoteSymbol: buy.QuoteSymbol,
		BuyVenue:    buy.Venue,
		SellVenue:   sell.Venue,
		BuyPrice:    buy.Price,
		SellPrice:   sell.Price,
		SpreadPct:   spread,
		GrossProfit: proceeds - tradeSize,
		NetProfit:   net,
		BuyDepth:    buy.Depth,
		SellDepth:   sell.Depth,
		ObservedAt:  older(buy.ObservedAt, sell.ObservedAt),
		Tier:        e.Tier(net),
		BuySource:   buy.Source,
		SellSource:  sell.Source,
	}
}

// FindTriangularOpportunities simulates base -> X -> Y -> base on each venue.
// Quotes only carry base pairs, so the X -> Y leg is derived from the two
// base prices and perturbed by the jitter source. Results are never
// executable as-is; the third pool must be re-quoted first.
func (e *Engine) FindTriangularOpportunities(quotes []domain.Quote, tradeSize float64) []domain.TriangularOpportunity {
	if tradeSize <= 0 {
		return nil
	}
	byVenue := make(map[string]map[string]domain.Quote)
	for _, q := range quotes {
		// Legs are keyed by token; only base-quoted pools qualify.
		if q.BaseSymbol != domain.BaseSymbol {
			continue
		}
		m, ok := byVenue[q.Venue]
		if !ok {
			m = make(map[string]domain.Quote)
			byVenue[q.Venue] = m
		}
		if prev, dup := m[q.QuoteSymbol]; !dup || q.ObservedAt.After(prev.ObservedAt) {
			m[q.QuoteSymbol] = q
		}
	}

	var out []domain.TriangularOpportunity
	for _, venue := range sortedKeys(byVenue) {
		legs := byVenue[venue]
		symbols := sortedKeys(legs)
		fees := 3 * (tradeSize*e.cfg.Fees.PoolFee(venue) + e.cfg.Fees.FixedPerSwap)

		for _, x := range symbols {
			for _, y := range symbols {
				if x == y {
					continue
				}
				first, last := legs[x], legs[y]
				if first.Price == 0 || last.Price == 0 {
					continue
				}
				base := domain.BaseSymbol
				derived := first.Price / last.Price

				xAmount := tradeSize / first.Price
				yAmount := xAmount * derived * (1 + (e.jitter.Float64()-0.5)*0.02)
				returned := yAmount * last.Price
				net := returned - tradeSize - fees
				pct := net / tradeSize * 100

				if pct <= e.cfg.TriangularMinPct || pct >= e.cfg.TriangularMaxPct {
					continue
				}
				out = append(out, domain.TriangularOpportunity{
					ID:    "tri-" + venue + "-" + base + "-" + x + "-" + y,
					Venue: venue,
					Route: []string{base, x, y, base},
					Legs: []domain.TriangularLeg{
						{From: base, To: x, Price: first.Price},
						{From: x, To: y, Price: derived},
						{From: y, To: base, Price: last.Price},
					},
					ProfitPct:  pct,
					NetProfit:  net,
					ObservedAt: older(first.ObservedAt, last.ObservedAt),
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ProfitPct > out[j].ProfitPct })
	if len(out) > e.cfg.TriangularTopN {
		out = out[:e.cfg.TriangularTopN]
	}
	return out
}

// BuildReport runs both detectors over a snapshot.
func (e *Engine) BuildReport(snap domain.QuoteSnapshot, tradeSize, minSpreadPct float64) domain.ScanReport {
	opps := e.FindDirectOpportunities(snap.Quotes, tradeSize, minSpreadPct)
	tri := e.FindTriangularOpportunities(snap.Quotes, tradeSize)

	stats := domain.ScanStats{TotalOpportunities: len(opps), LastUpdate: snap.FetchedAt}
	if len(opps) > 0 {
		var sum float64
		for _, o := range opps {
			sum += o.SpreadPct
			if o.SpreadPct > stats.BestSpreadPct {
				stats.BestSpreadPct = o.SpreadPct
			}
		}
		stats.AvgSpreadPct = sum / float64(len(opps))
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	if tri == nil {
		tri = []domain.TriangularOpportunity{}
	}
	return domain.ScanReport{
		Opportunities: opps,
		Triangular:    tri,
		Stats:         stats,
		VenueStatuses: snap.Statuses,
		IsDemo:        snap.IsDemo,
		TradeSize:     tradeSize,
	}
}

// groupByPair returns quotes per pair key with one quote per venue, keeping
// the most recent observation when a venue repeats.
func groupByPair(quotes []domain.Quote) map[string][]domain.Quote {
	idx := make(map[string]map[string]domain.Quote)
	for _, q := range quotes {
		m, ok := idx[q.PairKey]
		if !ok {
			m = make(map[string]domain.Quote)
			idx[q.PairKey] = m
		}
		if prev, dup := m[q.Venue]; !dup || q.ObservedAt.After(prev.ObservedAt) {
			m[q.Venue] = q
		}
	}
	out := make(map[string][]domain.Quote, len(idx))
	for pair, m := range idx {
		list := make([]domain.Quote, 0, len(m))
		for _, venue := range sortedKeys(m) {
			list = append(list, m[venue])
		}
		out[pair] = list
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func older(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
