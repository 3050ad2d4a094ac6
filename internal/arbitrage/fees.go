package arbitrage

// FeeModel prices one swap leg. Every leg pays a fixed per-swap cost
// (network fee plus batcher fee) and two percentage fees on the base-asset
// amount moving through it: the aggregator's cut and the venue's pool fee.
type FeeModel struct {
	FixedPerSwap   float64
	AggregatorPct  float64
	DefaultPoolFee float64
	PoolFees       map[string]float64
}

// PoolFee returns the pool fee fraction charged by venue.
func (m FeeModel) PoolFee(venue string) float64 {
	if f, ok := m.PoolFees[venue]; ok {
		return f
	}
	return m.DefaultPoolFee
}

// LegFee returns the total fee for moving amount through venue.
func (m FeeModel) LegFee(venue string, amount float64) float64 {
	return m.FixedPerSwap + amount*m.AggregatorPct + amount*m.PoolFee(venue)
}
