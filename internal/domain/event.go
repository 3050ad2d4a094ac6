package domain

import "time"

// Bus channels and streams.
const (
	ChannelTradeStatus = "arb:trade:status"
	ChannelScan        = "arb:scan"
	StreamTrades       = "arb:trades"
)

// ExecutorState is the orchestrator's externally visible state.
type ExecutorState string

const (
	ExecutorIdle    ExecutorState = "idle"
	ExecutorRunning ExecutorState = "running"
)

// StatusEvent is emitted on every trade status transition. The tx refs are
// set once the corresponding leg has been broadcast.
type StatusEvent struct {
	TradeID   string      `json:"tradeId"`
	Status    TradeStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	BuyTxRef  string      `json:"buyTxRef,omitempty"`
	SellTxRef string      `json:"sellTxRef,omitempty"`
	At        time.Time   `json:"at"`
}

// ExecutorStatus is a point-in-time view of the execution layer.
type ExecutorStatus struct {
	State         ExecutorState `json:"state"`
	CurrentTrade  string        `json:"currentTrade,omitempty"`
	CurrentStatus TradeStatus   `json:"currentStatus,omitempty"`
	KilledAt      *time.Time    `json:"killedAt,omitempty"`
	Signer        string        `json:"signer"`
}
