package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus is the lifecycle of a fixed-term deposit.
type DepositStatus string

const (
	DepositBegin   DepositStatus = "begin"
	DepositEnd     DepositStatus = "end"
	DepositDefault DepositStatus = "default"
)

// DetailStatus is the lifecycle of a single installment.
type DetailStatus string

const (
	DetailNotYetDue DetailStatus = "NDY"
	DetailOverdue   DetailStatus = "overdue"
	DetailPaid      DetailStatus = "paid"
)

// Deposit represents a fixed-term deposit with its monthly installments
type Deposit struct {
	UID           int64               `json:"uid"`
	ID            int64               `json:"id"`
	Begin         time.Time           `json:"deposit_begin"`
	End           *time.Time          `json:"deposit_end"`
	MinimumAmount decimal.NullDecimal `json:"minimum_amount"`
	Status        DepositStatus       `json:"status"`
	Details       []DepositDetail     `json:"details"`
}

// DepositDetail represents one installment of a deposit
type DepositDetail struct {
	UID          int64               `json:"uid"`
	ID           int64               `json:"id"`
	Installment  string              `json:"installment"`
	DepositDate  *time.Time          `json:"deposit_date"`
	Amount       decimal.NullDecimal `json:"amount"`
	InterestRate decimal.NullDecimal `json:"interest_rate"`
	DepositLimit *time.Time          `json:"deposit_limit"`
	Status       DetailStatus        `json:"status"`
}

// HasPrincipal reports whether the installment was paid with a non-zero amount.
func (d DepositDetail) HasPrincipal() bool {
	return d.DepositDate != nil && d.Amount.Valid && !d.Amount.Decimal.IsZero()
}

// DepositInterest is one accrued interest row for an installment
type DepositInterest struct {
	UID          int64           `json:"uid"`
	ID           int64           `json:"id"`
	Installment  string          `json:"installment"`
	InterestDate time.Time       `json:"interest_date"`
	Amount       decimal.Decimal `json:"amount"`
}
