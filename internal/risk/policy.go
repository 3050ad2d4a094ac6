// Package risk holds the stateless pre-trade predicates that gate every
// execution attempt.
package risk

import (
	"fmt"
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Check names, used for metrics labels and logs.
const (
	CheckDailyLoss = "daily_loss"
	CheckBalance   = "balance"
	CheckSizeCap   = "size_cap"
	CheckCooldown  = "cooldown"
	CheckMinProfit = "min_profit"
	CheckSource    = "quote_source"
)

// Limits are the platform-wide rails that no user setting can loosen.
type Limits struct {
	// Reserve is always left in the wallet for fees.
	Reserve      float64
	MaxTradeSize float64
	// An opportunity must clear MinProfitBase + tradeSize*MinProfitFraction.
	MinProfitBase     float64
	MinProfitFraction float64
}

// DefaultLimits returns the production rails.
func DefaultLimits() Limits {
	return Limits{Reserve: 10, MaxTradeSize: 200, MinProfitBase: 0.5, MinProfitFraction: 0.01}
}

// Rejection explains why a trade may not proceed.
type Rejection struct {
	Check  string
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Is makes errors.Is(err, domain.ErrRiskRejected) hold for every Rejection.
func (r *Rejection) Is(target error) bool { return target == domain.ErrRiskRejected }

// Policy evaluates the rails. The zero value is not useful; use New.
type Policy struct {
	limits Limits
}

// New returns a Policy enforcing limits.
func New(limits Limits) *Policy {
	return &Policy{limits: limits}
}

// Limits returns the configured rails.
func (p *Policy) Limits() Limits { return p.limits }

// CanTrade applies the daily loss, balance and size-cap checks in that order
// and returns the first failure.
func (p *Policy) CanTrade(s domain.TradeSettings, balance float64, agg domain.LedgerAggregates) (bool, string) {
	if r := p.canTrade(s, balance, agg); r != nil {
		return false, r.Reason
	}
	return true, ""
}

// CheckCanTrade is CanTrade returning a *Rejection or nil.
func (p *Policy) CheckCanTrade(s domain.TradeSettings, balance float64, agg domain.LedgerAggregates) error {
	if r := p.canTrade(s, balance, agg); r != nil {
		return r
	}
	return nil
}

func (p *Policy) canTrade(s domain.TradeSettings, balance float64, agg domain.LedgerAggregates) *Rejection {
	if agg.Daily.Loss >= s.DailyLossLimit {
		return &Rejection{
			Check:  CheckDailyLoss,
			Reason: fmt.Sprintf("Daily loss limit reached (%.2f ADA lost today)", agg.Daily.Loss),
		}
	}
	if need := s.TradeSize + p.limits.Reserve; balance < need {
		return &Rejection{
			Check:  CheckBalance,
			Reason: fmt.Sprintf("Insufficient balance (need %.2f ADA, have %.2f ADA)", need, balance),
		}
	}
	if s.TradeSize > p.limits.MaxTradeSize {
		return &Rejection{
			Check:  CheckSizeCap,
			Reason: fmt.Sprintf("Trade size exceeds max (%.0f ADA)", p.limits.MaxTradeSize),
		}
	}
	return nil
}

// CheckCooldown rejects when less than cooldownSeconds have passed since
// lastTradeAt. A zero lastTradeAt always passes.
func (p *Policy) CheckCooldown(now, lastTradeAt time.Time, cooldownSeconds int) error {
	if lastTradeAt.IsZero() {
		return nil
	}
	cooldown := time.Duration(cooldownSeconds) * time.Second
	if elapsed := now.Sub(lastTradeAt); elapsed < cooldown {
		return &Rejection{
			Check:  CheckCooldown,
			Reason: fmt.Sprintf("Cooldown active (%ds remaining)", int((cooldown-elapsed+time.Second-1)/time.Second)),
		}
	}
	return nil
}

// MinProfit returns the net profit an opportunity needs at tradeSize.
func (p *Policy) MinProfit(tradeSize float64) float64 {
	return p.limits.MinProfitBase + tradeSize*p.limits.MinProfitFraction
}

// CheckMinProfit rejects opportunities that do not clear the expected fee
// load plus a size-proportional margin.
func (p *Policy) CheckMinProfit(opp domain.Opportunity, tradeSize float64) error {
	if need := p.MinProfit(tradeSize); opp.NetProfit < need {
		return &Rejection{
			Check:  CheckMinProfit,
			Reason: fmt.Sprintf("Net profit %.2f ADA below minimum %.2f ADA", opp.NetProfit, need),
		}
	}
	return nil
}

// CheckQuoteSource rejects a live trade unless both legs are priced from
// live venue data. Dry runs may use demo or stale prices.
func (p *Policy) CheckQuoteSource(opp domain.Opportunity, dryRun bool) error {
	if dryRun || opp.LiveQuotes() {
		return nil
	}
	return &Rejection{
		Check: CheckSource,
		Reason: fmt.Sprintf("Prices are not live (%s: %s, %s: %s)",
			opp.BuyVenue, sourceLabel(opp.BuySource), opp.SellVenue, sourceLabel(opp.SellSource)),
	}
}

func sourceLabel(s domain.VenueState) string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}

// CapTradeSize clamps size to the platform ceiling.
func (p *Policy) CapTradeSize(size float64) float64 {
	if size > p.limits.MaxTradeSize {
		return p.limits.MaxTradeSize
	}
	return size
}
