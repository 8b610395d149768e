package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier selects which vendor endpoint a wallet is assessed with.
type Tier string

const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
)

// ParseTier validates a configured tier name.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierLow, TierModerate, TierHigh:
		return t, nil
	default:
		return "", fmt.Errorf("invalid risk tier %q", s)
	}
}

// TierRule matches a user whose current level is at least MinLevel and whose
// audited USDT (smallest unit) is at least MinUSDT.
type TierRule struct {
	MinLevel Level
	MinUSDT  decimal.Decimal
	Tier     Tier
}

// TierTable is evaluated top-down; the first matching rule wins.
type TierTable []TierRule

// DefaultTierTable escalates known-risky users and large balances.
func DefaultTierTable() TierTable {
	return TierTable{
		{MinLevel: High, MinUSDT: decimal.Zero, Tier: TierHigh},
		{MinLevel: Moderate, MinUSDT: decimal.Zero, Tier: TierModerate},
		{MinLevel: Unknown, MinUSDT: decimal.NewFromInt(10_000_000_000), Tier: TierModerate},
	}
}

// Select returns the tier of the first matching rule, or TierLow.
func (t TierTable) Select(level Level, usdt decimal.Decimal) Tier {
	for _, rule := range t {
		if level.Priority() >= rule.MinLevel.Priority() && usdt.GreaterThanOrEqual(rule.MinUSDT) {
			return rule.Tier
		}
	}
	return TierLow
}
