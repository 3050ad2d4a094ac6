// Package notify delivers trade alerts to chat channels. Alerts are filtered
// by event type so operators receive only the ones they subscribe to.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tlcaiagent-agent/cardano-arb-scanner/internal/domain"
)

// Event types accepted by the filter.
const (
	EventTradeCompleted = "trade.completed"
	EventTradeFailed    = "trade.failed"
	EventTradeDryRun    = "trade.dry_run"
	EventKillSwitch     = "kill_switch"
)

const explorerTxURL = "https://cardanoscan.io/transaction/"

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every sender. An empty event list allows
// every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify forwards the message when event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyTrade sends the alert for a finished trade record.
func (n *Notifier) NotifyTrade(ctx context.Context, rec domain.TradeRecord) error {
	title, message := FormatTrade(rec)
	return n.Notify(ctx, TradeEvent(rec), title, message)
}

// TradeEvent maps a terminal record to its event type.
func TradeEvent(rec domain.TradeRecord) string {
	switch rec.Status {
	case domain.StatusDryRun:
		return EventTradeDryRun
	case domain.StatusFailed:
		return EventTradeFailed
	default:
		return EventTradeCompleted
	}
}

// FormatTrade renders the title and body of a trade alert.
func FormatTrade(rec domain.TradeRecord) (string, string) {
	icon := "📉"
	if rec.NetProfit > 0 {
		icon = "💰"
	}
	mode := "🔴 LIVE"
	if rec.DryRun {
		mode = "🟡 DRY RUN"
	}
	title := fmt.Sprintf("%s %s Trade: %s", icon, mode, rec.PairKey)

	sign := ""
	if rec.NetProfit > 0 {
		sign = "+"
	}
	lines := []string{
		fmt.Sprintf("Buy: %s → Sell: %s", rec.BuyVenue, rec.SellVenue),
		fmt.Sprintf("Amount: %s ₳ | P&L: %s%.2f ₳", trimFloat(rec.Amount), sign, rec.NetProfit),
	}
	if rec.Status == domain.StatusFailed && rec.ErrorMessage != "" {
		lines = append(lines, "Error: "+rec.ErrorMessage)
	}
	if rec.BuyTxRef != "" {
		lines = append(lines, "Buy TX: "+txLink(rec.BuyTxRef))
	}
	if rec.SellTxRef != "" {
		lines = append(lines, "Sell TX: "+txLink(rec.SellTxRef))
	}
	return title, strings.Join(lines, "\n")
}

func txLink(hash string) string {
	label := hash
	if len(label) > 16 {
		label = label[:16] + "..."
	}
	return fmt.Sprintf("[%s](%s%s)", label, explorerTxURL, hash)
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// dispatch tries every sender and joins their failures.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
