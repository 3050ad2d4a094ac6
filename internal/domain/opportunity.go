package domain

import "time"

// Tier is a coarse profitability band derived from net profit.
type Tier string

const (
	TierGreen  Tier = "green"
	TierYellow Tier = "yellow"
	TierRed    Tier = "red"
)

// Opportunity is a direct, cross-venue arbitrage candidate. BuyPrice is
// always <= SellPrice.
type Opportunity struct {
	ID          string    `json:"id"`
	PairKey     string    `json:"pair"`
	BaseSymbol  string    `json:"baseSymbol"`
	QuoteSymbol string    `json:"quoteSymbol"`
	BuyVenue    string    `json:"buyVenue"`
	SellVenue   string    `json:"sellVenue"`
	BuyPrice    float64   `json:"buyPrice"`
	SellPrice   float64   `json:"sellPrice"`
	SpreadPct   float64   `json:"spreadPct"`
	GrossProfit float64   `json:"grossProfit"`
	NetProfit   float64   `json:"netProfit"`
	BuyDepth    float64   `json:"buyDepth"`
	SellDepth   float64   `json:"sellDepth"`
	ObservedAt  time.Time `json:"observedAt"`
	Tier        Tier      `json:"tier"`

	BuySource  VenueState `json:"buySource,omitempty"`
	SellSource VenueState `json:"sellSource,omitempty"`
}

// LiveQuotes reports whether both legs are priced from a live fetch in the
// current cycle. Demo and stale prices are never traded live.
func (o Opportunity) LiveQuotes() bool {
	return o.BuySource == VenueLive && o.SellSource == VenueLive
}

// TriangularLeg is one hop of a triangular route.
type TriangularLeg struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Price float64 `json:"price"`
}

// TriangularOpportunity is a three-leg round trip on a single venue. The
// middle leg price is derived from two base-quoted pairs, so these results
// are informational and Executable is always false.
type TriangularOpportunity struct {
	ID         string          `json:"id"`
	Venue      string          `json:"venue"`
	Route      []string        `json:"route"`
	Legs       []TriangularLeg `json:"legs"`
	ProfitPct  float64         `json:"profitPct"`
	NetProfit  float64         `json:"netProfit"`
	ObservedAt time.Time       `json:"observedAt"`
	Executable bool            `json:"executable"`
}

// ScanStats summarises one scan.
type ScanStats struct {
	TotalOpportunities int       `json:"totalOpportunities"`
	AvgSpreadPct       float64   `json:"avgSpread"`
	BestSpreadPct      float64   `json:"bestSpread"`
	LastUpdate         time.Time `json:"lastUpdate"`
}

// ScanReport is the full output of one scan cycle.
type ScanReport struct {
	Opportunities []Opportunity           `json:"opportunities"`
	Triangular    []TriangularOpportunity `json:"triangular"`
	Stats         ScanStats               `json:"stats"`
	VenueStatuses []VenueStatus           `json:"dexStatuses"`
	IsDemo        bool                    `json:"isDemo"`
	TradeSize     float64                 `json:"tradeSize"`
}
