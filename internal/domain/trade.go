package domain

import (
	"strings"
	"time"
)

// TradeStatus is the lifecycle state of a TradeRecord.
type TradeStatus string

const (
	StatusPending        TradeStatus = "pending"
	StatusBuildingBuy    TradeStatus = "building-buy"
	StatusSigningBuy     TradeStatus = "signing-buy"
	StatusConfirmingBuy  TradeStatus = "confirming-buy"
	StatusBuildingSell   TradeStatus = "building-sell"
	StatusSigningSell    TradeStatus = "signing-sell"
	StatusConfirmingSell TradeStatus = "confirming-sell"
	StatusCompleted      TradeStatus = "completed"
	StatusFailed         TradeStatus = "failed"
	StatusDryRun         TradeStatus = "dry-run"
)

// Terminal reports whether no further transitions are possible.
func (s TradeStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDryRun
}

// Settled reports whether the status counts toward realized P&L.
func (s TradeStatus) Settled() bool {
	return s == StatusCompleted || s == StatusDryRun
}

// TradeRecord is one ledger entry: a single execution attempt.
type TradeRecord struct {
	ID            string      `json:"id"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	OpportunityID string      `json:"opportunityId"`
	PairKey       string      `json:"pair"`
	BuyVenue      string      `json:"buyVenue"`
	SellVenue     string      `json:"sellVenue"`
	Amount        float64     `json:"amount"`
	BuyPrice      float64     `json:"buyPrice"`
	SellPrice     float64     `json:"sellPrice"`
	Fees          float64     `json:"fees"`
	NetProfit     float64     `json:"netProfit"`
	Status        TradeStatus `json:"status"`
	BuyTxRef      string      `json:"buyTxHash,omitempty"`
	SellTxRef     string      `json:"sellTxHash,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
	DryRun        bool        `json:"dryRun"`
}

// QuoteSymbol returns the token side of the record's pair key.
func (r TradeRecord) QuoteSymbol() string {
	if _, token, ok := strings.Cut(r.PairKey, "/"); ok {
		return token
	}
	return r.PairKey
}

// DailyPnL is the realized P&L for the current local day.
type DailyPnL struct {
	Profit float64 `json:"profit"`
	Loss   float64 `json:"loss"`
	Net    float64 `json:"net"`
	Count  int     `json:"tradeCount"`
}

// LedgerAggregates is what the risk policy consults.
type LedgerAggregates struct {
	Daily       DailyPnL
	LastTradeAt time.Time
}

// TradeStats summarises the whole retained history.
type TradeStats struct {
	TotalTrades int     `json:"totalTrades"`
	Settled     int     `json:"settled"`
	Failed      int     `json:"failed"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"winRate"`
	TotalNet    float64 `json:"totalNet"`
	TotalFees   float64 `json:"totalFees"`
	BestTrade   float64 `json:"bestTrade"`
	WorstTrade  float64 `json:"worstTrade"`
}
