package ledger

import (
	"time"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// StartOfDay returns local midnight of the day containing now.
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// DailyPnL sums completed and dry-run records created since local midnight.
// Loss is reported as a positive magnitude.
func DailyPnL(records []domain.TradeRecord, now time.Time) domain.DailyPnL {
	start := StartOfDay(now)
	var p domain.DailyPnL
	for _, r := range records {
		if !r.Status.Settled() || r.CreatedAt.Before(start) {
			continue
		}
		p.Count++
		if r.NetProfit >= 0 {
			p.Profit += r.NetProfit
		} else {
			p.Loss += -r.NetProfit
		}
	}
	p.Net = p.Profit - p.Loss
	return p
}

// Stats summarises records. Win rate and best/worst consider settled
// records only.
func Stats(records []domain.TradeRecord) domain.TradeStats {
	var st domain.TradeStats
	st.TotalTrades = len(records)
	for _, r := range records {
		if r.Status == domain.StatusFailed {
			st.Failed++
			st.TotalFees += r.Fees
			continue
		}
		if !r.Status.Settled() {
			continue
		}
		if st.Settled == 0 || r.NetProfit > st.BestTrade {
			st.BestTrade = r.NetProfit
		}
		if st.Settled == 0 || r.NetProfit < st.WorstTrade {
			st.WorstTrade = r.NetProfit
		}
		st.Settled++
		st.TotalNet += r.NetProfit
		st.TotalFees += r.Fees
		if r.NetProfit > 0 {
			st.Wins++
		}
	}
	if st.Settled > 0 {
		st.WinRate = float64(st.Wins) / float64(st.Settled) * 100
	}
	return st
}

// lastActivity is the end time of the most recent attempt.
func lastActivity(r domain.TradeRecord) time.Time {
	if r.UpdatedAt.After(r.CreatedAt) {
		return r.UpdatedAt
	}
	return r.CreatedAt
}
