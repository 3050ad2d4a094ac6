package domain

// RiskLevel selects a minimum-spread preset.
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskModerate     RiskLevel = "moderate"
	RiskAggressive   RiskLevel = "aggressive"
)

// MinSpreadFor returns the preset minimum spread for a risk level.
func (r RiskLevel) MinSpreadFor() float64 {
	switch r {
	case RiskConservative:
		return 5
	case RiskAggressive:
		return 2
	default:
		return 3
	}
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskConservative, RiskModerate, RiskAggressive:
		return true
	}
	return false
}

// TradeSettings is the user-tunable trading configuration. Consumers treat
// a value as an immutable snapshot for the duration of one decision.
type TradeSettings struct {
	TradeSize       float64   `json:"tradeSize"`
	MinSpreadPct    float64   `json:"minSpread"`
	MaxSlippagePct  float64   `json:"maxSlippage"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	DailyLossLimit  float64   `json:"dailyLossLimit"`
	DryRun          bool      `json:"dryRun"`
	AutoTrade       bool      `json:"autoTrade"`
	CooldownSeconds int       `json:"cooldownSeconds"`
}
