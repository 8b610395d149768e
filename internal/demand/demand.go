package demand

import (
	"time"

	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	remarkInterest = "demand deposit interest"
	remarkReturn   = "demand deposit returned"
)

// Crediter applies point mutations in order and returns the resulting flow.
type Crediter interface {
	Balance(userID int64, fundType string) (decimal.Decimal, bool)
	Credit(userID int64, fundType, action string, amount decimal.Decimal, counterSide *int64, remark string) (models.FundFlow, error)
}

// Settlement is the outcome of closing expired demand deposits.
type Settlement struct {
	Flows   []models.FundFlow
	Settled []models.Demand
	Skipped []models.Demand
}

// Due reports whether a demand is open and its end is strictly before baseDate.
func Due(d models.Demand, baseDate time.Time) bool {
	return d.Status == models.DemandBegin && d.End != nil && d.End.Before(baseDate)
}

// Settle pays interest and returns principal for every due demand. Settled
// demands carry status done; the caller persists them and debits
// demand_balance by Amount.
func Settle(demands []models.Demand, baseDate time.Time, book Crediter, log logrus.FieldLogger) Settlement {
	var s Settlement
	for _, d := range demands {
		if !Due(d, baseDate) {
			continue
		}
		entry := log.WithFields(logrus.Fields{"uid": d.UID, "demand_id": d.ID})

		if _, ok := book.Balance(d.UID, models.FundPoint); !ok {
			entry.Warn("demand owner not found, skipping")
			s.Skipped = append(s.Skipped, d)
			continue
		}
		if !d.Amount.Valid || d.Amount.Decimal.IsZero() {
			entry.Warn("demand amount is empty, skipping")
			s.Skipped = append(s.Skipped, d)
			continue
		}

		if d.Interest.Valid && d.Interest.Decimal.Sign() > 0 {
			flow, err := book.Credit(d.UID, models.FundPoint, models.ActionDemandInterest, d.Interest.Decimal, nil, remarkInterest)
			if err != nil {
				entry.Errorf("failed to pay demand interest: %v", err)
				s.Skipped = append(s.Skipped, d)
				continue
			}
			s.Flows = append(s.Flows, flow)
		}

		flow, err := book.Credit(d.UID, models.FundPoint, models.ActionDemandDepositEnd, d.Amount.Decimal, nil, remarkReturn)
		if err != nil {
			entry.Errorf("failed to return demand principal: %v", err)
			s.Skipped = append(s.Skipped, d)
			continue
		}
		s.Flows = append(s.Flows, flow)

		d.Status = models.DemandDone
		s.Settled = append(s.Settled, d)
		entry.Infof("demand settled: interest=%s principal=%s", d.Interest.Decimal, d.Amount.Decimal)
	}
	return s
}
