package domain

import "time"

// BaseSymbol is the asset every pair is quoted against.
const BaseSymbol = "ADA"

// Quote is a single price observation for one pair on one venue. Price is
// the token price expressed in base-asset units. Source is the state of the
// fetch that produced the quote; the aggregator stamps it.
type Quote struct {
	Venue       string     `json:"venue"`
	BaseSymbol  string     `json:"baseSymbol"`
	QuoteSymbol string     `json:"quoteSymbol"`
	PairKey     string     `json:"pair"`
	Price       float64    `json:"price"`
	Depth       float64    `json:"depth"`
	ObservedAt  time.Time  `json:"observedAt"`
	Source      VenueState `json:"source,omitempty"`
}

// PairKeyFor builds the canonical "BASE/TOKEN" key.
func PairKeyFor(base, token string) string {
	return base + "/" + token
}

// VenueState tags the health of a venue's most recent fetch.
type VenueState string

const (
	VenueLive  VenueState = "live"
	VenueStale VenueState = "stale"
	VenueDemo  VenueState = "demo"
)

// VenueStatus summarises one venue for one fetch cycle.
type VenueStatus struct {
	Venue           string        `json:"venue"`
	State           VenueState    `json:"state"`
	LastUpdate      time.Time     `json:"lastUpdate"`
	QuoteCount      int           `json:"quoteCount"`
	ResponseLatency time.Duration `json:"responseLatency,omitempty"`
}

// QuoteSnapshot is the result of one FetchAllQuotes cycle.
type QuoteSnapshot struct {
	Quotes    []Quote       `json:"quotes"`
	Statuses  []VenueStatus `json:"venueStatuses"`
	IsDemo    bool          `json:"isDemo"`
	FetchedAt time.Time     `json:"fetchedAt"`
}
