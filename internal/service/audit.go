package service

import (
	"context"
	"fmt"

	"github.com/Dan9191/bank-batch/internal/logging"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/notify"
	"github.com/Dan9191/bank-batch/internal/risk"
	"github.com/sirupsen/logrus"
)

// AuditReport counts the outcome of one audit run.
type AuditReport struct {
	Users     int
	Audited   int
	Failed    int
	Escalated int
}

// RunAudit refreshes the on-chain balances and risk rating of every user with
// a wallet. Each user is processed in its own transaction so one failure
// rolls back only that user.
func (s *Service) RunAudit(ctx context.Context) (AuditReport, error) {
	log := logging.WithRun(s.log, "audit")
	log.Info("Audit run started")

	var report AuditReport
	users, err := s.auditUsers(ctx)
	if err != nil {
		log.Errorf("Failed to load audit users: %v", err)
		return report, err
	}
	report.Users = len(users)

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		entry := log.WithField("uid", u.ID)
		escalated, err := s.auditUser(ctx, u.ID, entry)
		if err != nil {
			entry.Errorf("Audit failed, user rolled back: %v", err)
			report.Failed++
			continue
		}
		report.Audited++
		if escalated {
			report.Escalated++
		}
	}

	log.WithFields(logrus.Fields{
		"users":     report.Users,
		"audited":   report.Audited,
		"failed":    report.Failed,
		"escalated": report.Escalated,
	}).Info("Audit run finished")
	return report, nil
}

func (s *Service) auditUsers(ctx context.Context) ([]*models.User, error) {
	tx, err := s.store.Begin(ctx, s.config.Process("audit"))
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	users, err := tx.AuditUsers(ctx)
	if err != nil {
		return nil, err
	}
	return users, tx.Commit()
}

// auditUser reports whether the user's level escalated to high.
func (s *Service) auditUser(ctx context.Context, id int64, log logrus.FieldLogger) (bool, error) {
	tx, err := s.store.Begin(ctx, s.config.Process("audit"))
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	u, found, err := tx.LockUser(ctx, id)
	if err != nil {
		return false, err
	}
	if !found || !u.HasWallet() {
		log.Info("User no longer has a wallet, skipping")
		return false, tx.Commit()
	}
	wallet := *u.Wallet

	balance, err := s.wallets.AuditWallet(ctx, wallet)
	if err != nil {
		return false, fmt.Errorf("wallet audit: %w", err)
	}
	if err := tx.UpdateAudited(ctx, u.ID, balance.USDT, balance.TRX); err != nil {
		return false, err
	}
	log.Infof("Audited wallet: usdt=%s trx=%s", balance.USDT, balance.TRX)

	previous := risk.ParseLevel(u.RiskLevel)
	tier := s.tiers.Select(previous, balance.USDT)

	walletAssessment, err := s.risks.AssessWallet(ctx, tier, wallet)
	if err != nil {
		return false, fmt.Errorf("wallet risk: %w", err)
	}
	walletLevel, walletScore := risk.Analyse(walletAssessment)
	results := []risk.Result{{Level: walletLevel, Score: walletScore}}

	var alerts []string
	records, err := tx.DepositRecords(ctx, u.ID)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.HasCachedRisk() {
			results = append(results, risk.Result{Level: risk.ParseLevel(*rec.RiskLevel), Score: risk.Score(*rec.RiskScore)})
			continue
		}
		a, err := s.risks.AssessTransaction(ctx, tier, rec.TxHash)
		if err != nil {
			return false, fmt.Errorf("deposit record %d risk: %w", rec.ID, err)
		}
		level, score := risk.Analyse(a)
		if err := tx.ReviewDepositRecord(ctx, rec.ID, int(score), string(level)); err != nil {
			return false, err
		}
		results = append(results, risk.Result{Level: level, Score: score})
		if level == risk.High {
			alerts = append(alerts, risk.DepositNotification(u, rec, a))
		}
	}

	merged := risk.MergeAll(results...)
	level := risk.ApplyOverride(u.HWRiskLevel, merged.Level)
	if err := tx.UpdateRisk(ctx, u.ID, int(merged.Score), string(level)); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	log.WithFields(logrus.Fields{
		"tier":     tier,
		"previous": previous,
		"merged":   merged.Level,
		"level":    level,
		"score":    int(merged.Score),
	}).Info("Risk updated")

	escalated := risk.Escalated(previous, level)
	if escalated {
		alerts = append([]string{fmt.Sprintf("%s\n\nrating: %s -> %s", risk.WalletNotification(u, walletAssessment), previous, level)}, alerts...)
	}
	for _, text := range alerts {
		s.notify(ctx, log, notify.ChannelRisk, text)
	}
	return escalated, nil
}
