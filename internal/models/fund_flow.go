package models

import "github.com/shopspring/decimal"

// FundPoint is the spendable point balance.
const FundPoint = "POINT"

// Fund-flow actions.
const (
	ActionDepositInterest    = "brothers_deposit_interest"
	ActionDemandInterest     = "brothers_demand_interest"
	ActionDemandDepositEnd   = "brothers_demand_deposit_end"
	ActionGuaranteeInterest  = "brothers_guarantee_interest"
	ActionDistributeInterest = "brothers_distribute_interest"
)

// FundFlow is one append-only balance mutation
type FundFlow struct {
	UserID       int64           `json:"user_id"`
	FundType     string          `json:"fund_type"`
	Action       string          `json:"action"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CounterSide  *int64          `json:"counter_side"`
	Remark       string          `json:"remark"`
}
