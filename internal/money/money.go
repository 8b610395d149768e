package money

import "github.com/shopspring/decimal"

// USDTDecimals is the number of fractional digits of USDT-TRC20 and TRX on chain.
const USDTDecimals = 6

// Zero is the additive identity.
var Zero = decimal.Zero

// Floor truncates d toward zero to a whole minor unit.
func Floor(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(0)
}

// Interest returns amount*rate truncated to a whole minor unit.
func Interest(amount, rate decimal.Decimal) decimal.Decimal {
	return Floor(amount.Mul(rate))
}

// Share returns the truncated cut of amount at the given fraction.
func Share(amount, fraction decimal.Decimal) decimal.Decimal {
	return Floor(amount.Mul(fraction))
}

// ToMajor converts an on-chain smallest-unit amount into whole tokens.
func ToMajor(minor decimal.Decimal, decimals int32) decimal.Decimal {
	return minor.Shift(-decimals)
}

// FromMajor converts whole tokens into the on-chain smallest unit.
func FromMajor(major decimal.Decimal, decimals int32) decimal.Decimal {
	return major.Shift(decimals)
}

// Positive reports whether d is strictly greater than zero.
func Positive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
