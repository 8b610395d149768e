package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/logging"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/money"
	"github.com/Dan9191/bank-batch/internal/notify"
	"github.com/shopspring/decimal"
)

// system_configs keys owned by the monitoring jobs.
const (
	keyLastMonitoring         = "last_monitoring"
	keyPreDepth               = "pre_depth"
	keyLargeWithdrawThreshold = "withdraw_large_amount_threshold"
)

const heartbeat = "Wallet patrol running"

// alert is a notification held back until its transaction commits.
type alert struct {
	channel notify.Channel
	text    string
}

// RunMinutely reports failed and large withdrawals created since the last
// watermark, then advances the watermark.
func (s *Service) RunMinutely(ctx context.Context) error {
	log := logging.WithRun(s.log, "minutely")

	tx, err := s.store.Begin(ctx, s.config.Process("monitoring"))
	if err != nil {
		log.Errorf("Monitoring failed: %v", err)
		return err
	}
	defer tx.Rollback()

	// captured before querying so rows landing mid-run are picked up next time
	now := s.cal.Now()
	since, err := s.lastMonitoring(ctx, tx)
	if err != nil {
		log.Errorf("Monitoring failed: %v", err)
		return err
	}
	log = log.WithField("since", since.Format(time.RFC3339))

	failed, err := tx.FailedWithdrawals(ctx, since)
	if err != nil {
		log.Errorf("Monitoring failed: %v", err)
		return err
	}
	var alerts []alert
	for _, w := range failed {
		alerts = append(alerts, alert{notify.ChannelOps, s.withdrawalMessage(w, "withdrawal failed")})
	}

	var large []models.WithdrawRecord
	raw, found, err := tx.SystemConfig(ctx, keyLargeWithdrawThreshold)
	if err != nil {
		log.Errorf("Monitoring failed: %v", err)
		return err
	}
	threshold, perr := decimal.NewFromString(raw)
	switch {
	case !found:
		log.Warn("Large withdrawal threshold not configured, skipping")
	case perr != nil:
		log.Warnf("Invalid large withdrawal threshold %q, skipping", raw)
	default:
		large, err = tx.LargeWithdrawals(ctx, since, threshold)
		if err != nil {
			log.Errorf("Monitoring failed: %v", err)
			return err
		}
		for _, w := range large {
			alerts = append(alerts, alert{notify.ChannelLargeWithdrawal, s.withdrawalMessage(w, "large withdrawal")})
		}
	}

	if err := tx.SetSystemConfig(ctx, keyLastMonitoring, strconv.FormatInt(clock.ToMillis(now), 10)); err != nil {
		log.Errorf("Monitoring failed: %v", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		log.Errorf("Monitoring failed: %v", err)
		return err
	}
	for _, a := range alerts {
		s.notify(ctx, log, a.channel, a.text)
	}
	log.Infof("Monitoring done: %d failed, %d large withdrawals", len(failed), len(large))
	return nil
}

func (s *Service) lastMonitoring(ctx context.Context, tx Tx) (time.Time, error) {
	raw, found, err := tx.SystemConfig(ctx, keyLastMonitoring)
	if err != nil {
		return time.Time{}, err
	}
	ms, perr := strconv.ParseInt(raw, 10, 64)
	if !found || perr != nil {
		ms = 0
	}
	return s.cal.FromMillis(ms), nil
}

func (s *Service) withdrawalMessage(w models.WithdrawRecord, what string) string {
	return fmt.Sprintf("%s (ID:%d, login:%s) %s. time: %s, amount: %s, to: %s",
		w.Name, w.UserID, w.LoginID, what,
		w.CreatedAt.In(s.alertLoc).Format("2006/01/02 15:04:05"),
		w.Amount.Truncate(money.USDTDecimals).StringFixed(money.USDTDecimals),
		w.ToAddress)
}

// RunHourly compares the main wallet's USDT balance with the previous
// reading and alerts when it dropped by at least the configured threshold.
func (s *Service) RunHourly(ctx context.Context) error {
	log := logging.WithRun(s.log, "hourly")
	if s.config.MainWallet == "" {
		log.Warn("MAIN_WALLET not configured, skipping")
		return nil
	}

	tx, err := s.store.Begin(ctx, s.config.Process("monitoring"))
	if err != nil {
		log.Errorf("Hourly monitoring failed: %v", err)
		return err
	}
	defer tx.Rollback()

	raw, found, err := tx.SystemConfig(ctx, keyPreDepth)
	if err != nil {
		log.Errorf("Hourly monitoring failed: %v", err)
		return err
	}
	var previous *decimal.Decimal
	if found {
		if d, err := decimal.NewFromString(raw); err == nil {
			previous = &d
		} else {
			log.Warnf("Ignoring invalid %s value %q", keyPreDepth, raw)
		}
	}

	balance, err := s.wallets.AuditWallet(ctx, s.config.MainWallet)
	if err != nil {
		log.Errorf("Hourly monitoring failed: %v", err)
		return err
	}
	current := balance.USDT

	var alerts []alert
	if previous == nil {
		log.Info("No previous wallet balance, skipping alert check")
	} else {
		decrease := previous.Sub(current)
		log.Infof("Main wallet USDT %s -> %s", previous, current)
		alerts = append(alerts, alert{notify.ChannelWallet, heartbeat})
		if decrease.GreaterThanOrEqual(s.dropThreshold) {
			alerts = append(alerts, alert{notify.ChannelWallet, fmt.Sprintf(
				"Main wallet withdrawal alert: balance an hour ago %s, now %s, withdrawn %s.",
				money.ToMajor(*previous, money.USDTDecimals),
				money.ToMajor(current, money.USDTDecimals),
				money.ToMajor(decrease, money.USDTDecimals))})
		}
	}

	if err := tx.SetSystemConfig(ctx, keyPreDepth, current.String()); err != nil {
		log.Errorf("Hourly monitoring failed: %v", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		log.Errorf("Hourly monitoring failed: %v", err)
		return err
	}
	for _, a := range alerts {
		s.notify(ctx, log, a.channel, a.text)
	}
	return nil
}
