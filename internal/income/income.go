package income

import (
	"errors"
	"fmt"

	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/money"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrCycle means a parent chain leads back to a user already visited.
	ErrCycle = errors.New("referral cycle")
	// ErrOverAllocated means the guarantor cuts exceed the interest amount.
	ErrOverAllocated = errors.New("guarantor cuts exceed interest amount")
)

const (
	remarkGuarantee = "guarantee income"
	remarkUpline    = "upline income"
)

// Payment is one cut of a repaid interest amount.
type Payment struct {
	UserID      int64
	Amount      decimal.Decimal
	IsGuarantee bool
}

// Split divides amount between the present guarantors and the borrower's
// upline. Zero cuts are omitted. On ErrCycle the payments computed before the
// repeated ancestor are returned.
func Split(amount, guarantorDivid decimal.Decimal, guarantors [3]*int64, borrower int64, users models.Directory) ([]Payment, error) {
	var payments []Payment

	guaranteed := decimal.Zero
	for _, g := range guarantors {
		if g == nil {
			continue
		}
		if _, ok := users.Lookup(*g); !ok {
			continue
		}
		cut := money.Share(amount, guarantorDivid)
		if !money.Positive(cut) {
			continue
		}
		payments = append(payments, Payment{UserID: *g, Amount: cut, IsGuarantee: true})
		guaranteed = guaranteed.Add(cut)
	}
	if guaranteed.GreaterThan(amount) {
		return nil, fmt.Errorf("%w: %s > %s", ErrOverAllocated, guaranteed, amount)
	}

	remaining := amount.Sub(guaranteed)
	if !money.Positive(remaining) {
		return payments, nil
	}

	current, ok := users.Lookup(borrower)
	if !ok {
		return payments, nil
	}
	visited := map[int64]bool{borrower: true}
	for current.Parent != nil {
		parent, ok := users.Lookup(*current.Parent)
		if !ok {
			break
		}
		if visited[parent.ID] {
			return payments, fmt.Errorf("%w: user %d reached twice from borrower %d", ErrCycle, parent.ID, borrower)
		}
		visited[parent.ID] = true

		if !parent.ParentDivid.Valid {
			if money.Positive(remaining) {
				payments = append(payments, Payment{UserID: parent.ID, Amount: remaining})
			}
			break
		}
		cut := money.Share(remaining, parent.ParentDivid.Decimal)
		if money.Positive(cut) {
			payments = append(payments, Payment{UserID: parent.ID, Amount: cut})
		}
		remaining = remaining.Sub(cut)
		current = parent
	}
	return payments, nil
}

// Crediter applies point mutations in order and returns the resulting flow.
type Crediter interface {
	Credit(userID int64, fundType, action string, amount decimal.Decimal, counterSide *int64, remark string) (models.FundFlow, error)
}

// Distribution is the outcome of one distribution pass.
type Distribution struct {
	Incomes     []models.Income
	Flows       []models.FundFlow
	Distributed []models.BorrowingInterest
}

// Distributor pays repaid borrowing interest to guarantors and uplines.
type Distributor struct {
	guarantorDivid decimal.Decimal
	users          models.Directory
	book           Crediter
	log            logrus.FieldLogger
}

// NewDistributor creates a distributor over the run's user directory.
func NewDistributor(guarantorDivid decimal.Decimal, users models.Directory, book Crediter, log logrus.FieldLogger) *Distributor {
	return &Distributor{guarantorDivid: guarantorDivid, users: users, book: book, log: log}
}

// Distribute splits every repaid record with a positive amount. Records that
// fail to split stay repaid and are logged.
func (d *Distributor) Distribute(records []models.BorrowingInterest) Distribution {
	var out Distribution
	for _, rec := range records {
		if rec.Status != models.InterestRepaid || !money.Positive(rec.Amount) {
			continue
		}
		entry := d.log.WithFields(logrus.Fields{"uid": rec.UID, "borrowing_id": rec.ID, "amount": rec.Amount.String()})

		payments, err := Split(rec.Amount, d.guarantorDivid, rec.Guarantors, rec.UID, d.users)
		if err != nil {
			entry.Errorf("failed to split interest: %v", err)
			continue
		}

		borrower := rec.UID
		for _, p := range payments {
			action, remark := models.ActionDistributeInterest, remarkUpline
			if p.IsGuarantee {
				action, remark = models.ActionGuaranteeInterest, remarkGuarantee
			}
			flow, err := d.book.Credit(p.UserID, models.FundPoint, action, p.Amount, &borrower, remark)
			if err != nil {
				// Split only yields users present in the directory the book was seeded from.
				entry.Errorf("failed to credit user %d: %v", p.UserID, err)
				continue
			}
			out.Flows = append(out.Flows, flow)
			out.Incomes = append(out.Incomes, models.Income{
				UID:          p.UserID,
				BorrowingUID: rec.UID,
				BorrowingID:  rec.ID,
				InterestFrom: rec.InterestFrom,
				InterestTo:   rec.InterestTo,
				Amount:       p.Amount,
				IsGuarantee:  p.IsGuarantee,
			})
			entry.Debugf("user %d receives %s (guarantee=%v)", p.UserID, p.Amount, p.IsGuarantee)
		}

		rec.Status = models.InterestDistributed
		out.Distributed = append(out.Distributed, rec)
	}
	return out
}
