package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/notify"
	"github.com/Dan9191/bank-batch/internal/repository"
	"github.com/Dan9191/bank-batch/internal/risk"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Tx is one unit of work against the platform database.
type Tx interface {
	Commit() error
	Rollback() error

	LoadUsers(ctx context.Context) ([]*models.User, error)
	AuditUsers(ctx context.Context) ([]*models.User, error)
	LockUser(ctx context.Context, id int64) (*models.User, bool, error)
	AddPoint(ctx context.Context, id int64, delta decimal.Decimal) error
	AddDemandBalance(ctx context.Context, id int64, delta decimal.Decimal) error
	UpdateAudited(ctx context.Context, id int64, usdt, trx decimal.Decimal) error
	UpdateRisk(ctx context.Context, id int64, score int, level string) error

	ActiveDeposits(ctx context.Context) ([]models.Deposit, error)
	AccruedOn(ctx context.Context, interestDate time.Time) (map[repository.DepositKey]bool, error)
	InsertDepositInterests(ctx context.Context, interests []models.DepositInterest) error
	EndDeposit(ctx context.Context, uid, id int64, at time.Time) (bool, error)
	NotYetDueDetails(ctx context.Context) ([]models.DepositDetail, error)
	MarkDetailOverdue(ctx context.Context, uid, id int64, installment string) (bool, error)

	NotYetDueInterests(ctx context.Context, baseDate time.Time) ([]models.BorrowingInterest, error)
	RepaidInterests(ctx context.Context) ([]models.BorrowingInterest, error)
	SetInterestStatus(ctx context.Context, rec models.BorrowingInterest, from, to models.InterestStatus) (bool, error)
	InsertIncomes(ctx context.Context, incomes []models.Income) error
	InsertFundFlows(ctx context.Context, flows []models.FundFlow) error
	GuarantorDivid(ctx context.Context) (decimal.Decimal, error)

	ExpiredDemands(ctx context.Context, baseDate time.Time) ([]models.Demand, error)
	FinishDemand(ctx context.Context, uid, id int64) (bool, error)

	DepositRecords(ctx context.Context, userID int64) ([]models.DepositRecord, error)
	ReviewDepositRecord(ctx context.Context, id int64, score int, level string) error
	FailedWithdrawals(ctx context.Context, since time.Time) ([]models.WithdrawRecord, error)
	LargeWithdrawals(ctx context.Context, since time.Time, threshold decimal.Decimal) ([]models.WithdrawRecord, error)

	SystemConfig(ctx context.Context, key string) (string, bool, error)
	SetSystemConfig(ctx context.Context, key, value string) error
}

// Store opens transactions stamped with a process tag.
type Store interface {
	Begin(ctx context.Context, process string) (Tx, error)
}

// RepositoryStore adapts the SQL repository to Store.
type RepositoryStore struct {
	Repo *repository.Repository
}

func (s RepositoryStore) Begin(ctx context.Context, process string) (Tx, error) {
	tx, err := s.Repo.WithProcess(process).Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// WalletAuditor reads on-chain balances.
type WalletAuditor interface {
	AuditWallet(ctx context.Context, address string) (models.WalletBalance, error)
}

// RiskAssessor scores addresses and transfers with the external risk vendor.
type RiskAssessor interface {
	AssessWallet(ctx context.Context, tier risk.Tier, address string) (models.RiskAssessment, error)
	AssessTransaction(ctx context.Context, tier risk.Tier, txHash string) (models.RiskAssessment, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Send(ctx context.Context, channel notify.Channel, text string) error
}

// Deps are the external collaborators of the batch.
type Deps struct {
	Wallets  WalletAuditor
	Risks    RiskAssessor
	Notifier Notifier
}

// Service handles business logic
type Service struct {
	store    Store
	cal      *clock.Calendar
	wallets  WalletAuditor
	risks    RiskAssessor
	notifier Notifier
	log      logrus.FieldLogger
	config   *config.Config

	tiers         risk.TierTable
	dropThreshold decimal.Decimal
	alertLoc      *time.Location
}

// NewService initializes a new service
func NewService(store Store, cal *clock.Calendar, log logrus.FieldLogger, cfg *config.Config, deps Deps) (*Service, error) {
	tiers, err := cfg.TierTable()
	if err != nil {
		return nil, err
	}
	threshold, err := cfg.DropThreshold()
	if err != nil {
		return nil, err
	}
	alertLoc := cal.Location()
	if cfg.AlertTimezone != "" {
		if alertLoc, err = time.LoadLocation(cfg.AlertTimezone); err != nil {
			return nil, fmt.Errorf("invalid ALERT_TIMEZONE %q: %w", cfg.AlertTimezone, err)
		}
	}
	return &Service{
		store:         store,
		cal:           cal,
		wallets:       deps.Wallets,
		risks:         deps.Risks,
		notifier:      deps.Notifier,
		log:           log,
		config:        cfg,
		tiers:         tiers,
		dropThreshold: threshold,
		alertLoc:      alertLoc,
	}, nil
}

// BaseDate resolves the business date a run processes: the -t override in
// dev, otherwise today in the business timezone.
func (s *Service) BaseDate() (time.Time, error) {
	if s.config.TestDate != "" {
		d, err := s.cal.ParseDate(s.config.TestDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid test date: %w", err)
		}
		return d, nil
	}
	return s.cal.StartOfDay(s.cal.Now()), nil
}

func (s *Service) notify(ctx context.Context, log logrus.FieldLogger, channel notify.Channel, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, channel, text); err != nil {
		log.Warnf("Notification to %s not fully delivered: %v", channel, err)
	}
}
