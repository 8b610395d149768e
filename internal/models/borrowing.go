package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestStatus is the lifecycle of a borrowing interest period.
type InterestStatus string

const (
	InterestNotYetDue   InterestStatus = "NDY"
	InterestOverdue     InterestStatus = "overdue"
	InterestRepaid      InterestStatus = "repaid"
	InterestDistributed InterestStatus = "distributed"
)

// BorrowingInterest is the interest a borrower owes for one period
type BorrowingInterest struct {
	UID          int64           `json:"uid"`
	ID           int64           `json:"id"`
	InterestFrom time.Time       `json:"interest_from"`
	InterestTo   time.Time       `json:"interest_to"`
	InterestDate *time.Time      `json:"interest_date"`
	Amount       decimal.Decimal `json:"amount"`
	Status       InterestStatus  `json:"status"`
	Guarantors   [3]*int64       `json:"guarantors"`
}

// Income credits a guarantor or upline member with part of a repaid interest
type Income struct {
	UID          int64           `json:"uid"`
	BorrowingUID int64           `json:"borrowing_uid"`
	BorrowingID  int64           `json:"bid"`
	InterestFrom time.Time       `json:"interest_from"`
	InterestTo   time.Time       `json:"interest_to"`
	Amount       decimal.Decimal `json:"amount"`
	IsGuarantee  bool            `json:"is_guarantee"`
}
