package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DemandStatus is the lifecycle of a demand deposit.
type DemandStatus string

const (
	DemandBegin DemandStatus = "begin"
	DemandEnd   DemandStatus = "end"
	DemandDone  DemandStatus = "done"
)

// Demand represents an open-ended deposit paid out on closure
type Demand struct {
	UID          int64               `json:"uid"`
	ID           int64               `json:"id"`
	Begin        time.Time           `json:"demand_begin"`
	End          *time.Time          `json:"demand_end"`
	Amount       decimal.NullDecimal `json:"amount"`
	Status       DemandStatus        `json:"status"`
	InterestRate decimal.NullDecimal `json:"interest_rate"`
	Interest     decimal.NullDecimal `json:"interest"`
}
