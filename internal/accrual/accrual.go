package accrual

import (
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/money"
	"github.com/shopspring/decimal"
)

// fullRateDay is the installment day up to which a deposit earns a full first cycle.
const fullRateDay = 15

// Result is the interest due for one deposit on one base date.
type Result struct {
	Interests  []models.DepositInterest
	DepositEnd bool
}

// Total sums the interest amounts.
func (r Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, i := range r.Interests {
		total = total.Add(i.Amount)
	}
	return total
}

// FirstInterestDate is the first of the month after the deposit began.
func FirstInterestDate(cal *clock.Calendar, d models.Deposit) time.Time {
	return cal.StartOfMonth(cal.AddMonths(d.Begin, 1))
}

// Accrue computes the interest a deposit earns on baseDate and whether it matures.
func Accrue(cal *clock.Calendar, d models.Deposit, baseDate time.Time) (Result, error) {
	first := FirstInterestDate(cal, d)
	switch {
	case baseDate.Before(first):
		return Result{}, nil
	case baseDate.Equal(first):
		interests, err := firstInstallment(cal, d, baseDate)
		return Result{Interests: interests}, err
	default:
		return installment(cal, d, baseDate)
	}
}

func eligible(detail models.DepositDetail) bool {
	return detail.HasPrincipal() && detail.InterestRate.Valid && !detail.InterestRate.Decimal.IsZero()
}

func firstInstallment(cal *clock.Calendar, d models.Deposit, baseDate time.Time) ([]models.DepositInterest, error) {
	days := decimal.NewFromInt(int64(cal.DaysBetween(d.Begin, baseDate)))
	daysInMonth := decimal.NewFromInt(int64(clock.DaysInMonth(d.Begin.In(cal.Location()))))

	var interests []models.DepositInterest
	for _, detail := range d.Details {
		if !eligible(detail) {
			continue
		}
		base := detail.Amount.Decimal.Mul(detail.InterestRate.Decimal)

		fifteenth, err := cal.InstallmentDay(detail.Installment, fullRateDay)
		if err != nil {
			return nil, fmt.Errorf("deposit %d/%d: %w", d.UID, d.ID, err)
		}

		amount := money.Floor(base)
		if detail.DepositDate.After(cal.EndOfDay(fifteenth)) {
			amount, _ = base.Mul(days).QuoRem(daysInMonth, 0)
		}
		interests = append(interests, newInterest(detail, baseDate, amount))
	}
	return interests, nil
}

func installment(cal *clock.Calendar, d models.Deposit, baseDate time.Time) (Result, error) {
	due := cal.AddMonths(baseDate, -1)

	var target *models.DepositDetail
	maxLabel := ""
	for i := range d.Details {
		detail := &d.Details[i]
		if detail.Installment > maxLabel {
			maxLabel = detail.Installment
		}
		if target != nil {
			continue
		}
		start, err := cal.ParseInstallment(detail.Installment)
		if err != nil {
			return Result{}, fmt.Errorf("deposit %d/%d: %w", d.UID, d.ID, err)
		}
		if start.Equal(due) {
			target = detail
		}
	}

	if target == nil || !target.HasPrincipal() || target.DepositLimit == nil {
		return Result{}, nil
	}
	if target.DepositDate.After(*target.DepositLimit) {
		return Result{}, nil
	}

	var res Result
	if target.Installment == maxLabel {
		last, err := cal.ParseInstallment(maxLabel)
		if err != nil {
			return Result{}, fmt.Errorf("deposit %d/%d: %w", d.UID, d.ID, err)
		}
		res.DepositEnd = baseDate.Equal(cal.StartOfMonth(cal.AddMonths(last, 1)))
	}

	for _, detail := range d.Details {
		if !eligible(detail) {
			continue
		}
		res.Interests = append(res.Interests, newInterest(detail, baseDate, money.Interest(detail.Amount.Decimal, detail.InterestRate.Decimal)))
	}
	return res, nil
}

func newInterest(detail models.DepositDetail, baseDate time.Time, amount decimal.Decimal) models.DepositInterest {
	return models.DepositInterest{
		UID:          detail.UID,
		ID:           detail.ID,
		Installment:  detail.Installment,
		InterestDate: baseDate,
		Amount:       amount,
	}
}
