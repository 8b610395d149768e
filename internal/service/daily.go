package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/accrual"
	"github.com/Dan9191/bank-batch/internal/apperr"
	"github.com/Dan9191/bank-batch/internal/demand"
	"github.com/Dan9191/bank-batch/internal/income"
	"github.com/Dan9191/bank-batch/internal/ledger"
	"github.com/Dan9191/bank-batch/internal/logging"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/money"
	"github.com/Dan9191/bank-batch/internal/repository"
	"github.com/sirupsen/logrus"
)

const remarkDepositInterest = "deposit interest"

// DailyReport counts what one daily run changed.
type DailyReport struct {
	BaseDate         time.Time
	Monthly          bool
	DepositInterests int
	DepositsSkipped  int
	DepositsEnded    int
	DetailsOverdue   int
	InterestsOverdue int
	Distributed      int
	Incomes          int
	DemandsSettled   int
	DemandsSkipped   int
	FundFlows        int
	BalancesTouched  int
}

// daily carries the state shared by the steps of one run.
type daily struct {
	tx       Tx
	baseDate time.Time
	users    models.Directory
	book     *ledger.Book
	log      logrus.FieldLogger
	report   DailyReport
}

// RunDaily executes the midnight batch for baseDate inside one transaction:
// monthly accrual on the first of the month, then the deposit-detail check,
// borrowing interest distribution and demand settlement. Any error rolls the
// whole run back.
func (s *Service) RunDaily(ctx context.Context, baseDate time.Time) (DailyReport, error) {
	baseDate = s.cal.StartOfDay(baseDate)
	log := logging.WithRun(s.log, "daily").WithField("base_date", baseDate.Format("2006-01-02"))
	log.Info("Daily run started")

	report, err := s.runDaily(ctx, baseDate, log)
	if err != nil {
		log.WithField("op", apperr.Op(err)).Errorf("Daily run failed and was rolled back: %v", err)
		return report, err
	}
	log.WithFields(logrus.Fields{
		"deposit_interests": report.DepositInterests,
		"deposits_ended":    report.DepositsEnded,
		"details_overdue":   report.DetailsOverdue,
		"distributed":       report.Distributed,
		"demands_settled":   report.DemandsSettled,
		"fund_flows":        report.FundFlows,
	}).Info("Daily run committed")
	return report, nil
}

func (s *Service) runDaily(ctx context.Context, baseDate time.Time, log logrus.FieldLogger) (DailyReport, error) {
	tx, err := s.store.Begin(ctx, s.config.Process("daily"))
	if err != nil {
		return DailyReport{BaseDate: baseDate}, err
	}
	defer tx.Rollback()

	users, err := tx.LoadUsers(ctx)
	if err != nil {
		return DailyReport{BaseDate: baseDate}, err
	}
	dir := models.NewDirectory(users)
	run := &daily{
		tx:       tx,
		baseDate: baseDate,
		users:    dir,
		book:     ledger.NewBook(dir),
		log:      log,
		report:   DailyReport{BaseDate: baseDate},
	}

	steps := []struct {
		name string
		fn   func(context.Context, *daily) error
	}{
		{"monthly", s.accrueDeposits},
		{"deposit_details", s.checkDepositDetails},
		{"borrow", s.distributeIncomes},
		{"demands", s.settleDemands},
		{"persist", s.persistLedger},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return run.report, err
		}
		if err := step.fn(ctx, run); err != nil {
			return run.report, apperr.Wrap("daily."+step.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return run.report, err
	}
	return run.report, nil
}

// accrueDeposits credits fixed-term deposit interest on the first of the month.
func (s *Service) accrueDeposits(ctx context.Context, run *daily) error {
	if run.baseDate.Day() != 1 {
		return nil
	}
	run.report.Monthly = true

	deposits, err := run.tx.ActiveDeposits(ctx)
	if err != nil {
		return err
	}
	accrued, err := run.tx.AccruedOn(ctx, run.baseDate)
	if err != nil {
		return err
	}

	var interests []models.DepositInterest
	var ended []repository.DepositKey
	for _, d := range deposits {
		entry := run.log.WithFields(logrus.Fields{"uid": d.UID, "deposit_id": d.ID})
		if accrued[repository.DepositKey{UID: d.UID, ID: d.ID}] {
			entry.Info("Deposit already accrued for this date, skipping")
			run.report.DepositsSkipped++
			continue
		}

		res, err := accrual.Accrue(s.cal, d, run.baseDate)
		if err != nil {
			entry.Errorf("Failed to accrue deposit: %v", err)
			run.report.DepositsSkipped++
			continue
		}
		interests = append(interests, res.Interests...)

		if total := res.Total(); money.Positive(total) {
			if _, err := run.book.Credit(d.UID, models.FundPoint, models.ActionDepositInterest, total, nil, remarkDepositInterest); err != nil {
				entry.Warnf("Deposit interest not credited: %v", err)
			} else {
				entry.Infof("Deposit interest %s", total)
			}
		}
		if res.DepositEnd {
			ended = append(ended, repository.DepositKey{UID: d.UID, ID: d.ID})
		}
	}

	if err := run.tx.InsertDepositInterests(ctx, interests); err != nil {
		return err
	}
	run.report.DepositInterests = len(interests)

	now := s.cal.Now()
	for _, key := range ended {
		ok, err := run.tx.EndDeposit(ctx, key.UID, key.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			run.log.WithFields(logrus.Fields{"uid": key.UID, "deposit_id": key.ID}).Warn("Deposit was no longer open, end skipped")
			continue
		}
		run.report.DepositsEnded++
	}
	return nil
}

// checkDepositDetails moves NDY installments past their deposit limit to overdue.
func (s *Service) checkDepositDetails(ctx context.Context, run *daily) error {
	details, err := run.tx.NotYetDueDetails(ctx)
	if err != nil {
		return err
	}
	for _, d := range details {
		entry := run.log.WithFields(logrus.Fields{"uid": d.UID, "deposit_id": d.ID, "installment": d.Installment})
		if d.DepositLimit == nil {
			entry.Warn("Deposit detail has no limit date")
			continue
		}
		if !run.baseDate.After(*d.DepositLimit) {
			continue
		}
		ok, err := run.tx.MarkDetailOverdue(ctx, d.UID, d.ID, d.Installment)
		if err != nil {
			entry.Errorf("Failed to mark deposit detail overdue: %v", err)
			continue
		}
		if ok {
			run.report.DetailsOverdue++
			entry.Infof("Deposit detail overdue, limit %s", d.DepositLimit.Format(time.DateTime))
		}
	}
	return nil
}

// distributeIncomes marks unpaid borrowing interest overdue and pays repaid
// interest out to guarantors and the borrower's upline.
func (s *Service) distributeIncomes(ctx context.Context, run *daily) error {
	due, err := run.tx.NotYetDueInterests(ctx, run.baseDate)
	if err != nil {
		return err
	}
	for _, rec := range due {
		ok, err := run.tx.SetInterestStatus(ctx, rec, models.InterestNotYetDue, models.InterestOverdue)
		if err != nil {
			return err
		}
		if ok {
			run.report.InterestsOverdue++
		}
	}

	divid, err := run.tx.GuarantorDivid(ctx)
	if err != nil {
		return err
	}
	repaid, err := run.tx.RepaidInterests(ctx)
	if err != nil {
		return err
	}

	dist := income.NewDistributor(divid, run.users, run.book, run.log).Distribute(repaid)
	if err := run.tx.InsertIncomes(ctx, dist.Incomes); err != nil {
		return err
	}
	for _, rec := range dist.Distributed {
		ok, err := run.tx.SetInterestStatus(ctx, rec, models.InterestRepaid, models.InterestDistributed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("borrowing interest %d/%d changed during distribution", rec.UID, rec.ID)
		}
	}
	run.report.Distributed = len(dist.Distributed)
	run.report.Incomes = len(dist.Incomes)
	return nil
}

// settleDemands closes expired demand deposits.
func (s *Service) settleDemands(ctx context.Context, run *daily) error {
	expired, err := run.tx.ExpiredDemands(ctx, run.baseDate)
	if err != nil {
		return err
	}
	settlement := demand.Settle(expired, run.baseDate, run.book, run.log)
	for _, d := range settlement.Settled {
		ok, err := run.tx.FinishDemand(ctx, d.UID, d.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("demand %d/%d changed during settlement", d.UID, d.ID)
		}
		if err := run.tx.AddDemandBalance(ctx, d.UID, d.Amount.Decimal.Neg()); err != nil {
			return err
		}
	}
	run.report.DemandsSettled = len(settlement.Settled)
	run.report.DemandsSkipped = len(settlement.Skipped)
	return nil
}

// persistLedger writes the run's fund flows in mutation order, then the net
// point change of every touched user.
func (s *Service) persistLedger(ctx context.Context, run *daily) error {
	flows := run.book.Flows()
	if err := run.tx.InsertFundFlows(ctx, flows); err != nil {
		return err
	}
	deltas := run.book.Deltas()
	for _, d := range deltas {
		if err := run.tx.AddPoint(ctx, d.UserID, d.Amount); err != nil {
			return err
		}
	}
	run.report.FundFlows = len(flows)
	run.report.BalancesTouched = len(deltas)
	return nil
}
