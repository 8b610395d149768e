package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenBalance is a TRC20 holding in its smallest unit.
type TokenBalance struct {
	Contract string          `json:"contract"`
	Balance  decimal.Decimal `json:"balance"`
}

// WalletBalance is the audited on-chain state of an address
type WalletBalance struct {
	Address string          `json:"address"`
	TRX     decimal.Decimal `json:"trx_balance"`
	USDT    decimal.Decimal `json:"usdt_balance"`
	Tokens  []TokenBalance  `json:"tokens"`
}

// DepositRecord is an inbound on-chain transfer with its cached risk review
type DepositRecord struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	TxHash      string          `json:"tx_hash"`
	FromAddress string          `json:"from_address"`
	Amount      decimal.Decimal `json:"amount"`
	Reviewed    bool            `json:"reviewed"`
	RiskScore   *int            `json:"risk_score"`
	RiskLevel   *string         `json:"risk_level"`
}

// HasCachedRisk reports whether a previous review stored its result.
func (r DepositRecord) HasCachedRisk() bool {
	return r.RiskScore != nil && r.RiskLevel != nil
}

// WithdrawRecord is an outbound transfer joined with its owner
type WithdrawRecord struct {
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	ToAddress string          `json:"to_address"`
	Status    string          `json:"status"`
	Name      string          `json:"name"`
	LoginID   string          `json:"login_id"`
}
