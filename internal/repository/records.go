package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
)

// DepositRecords returns a user's inbound transfers with their cached risk.
func (r *Repository) DepositRecords(ctx context.Context, userID int64) ([]models.DepositRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, tx_hash, from_address, amount, reviewed, risk_score, risk_level
		FROM deposit_records
		WHERE user_id = $1
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit records for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []models.DepositRecord
	for rows.Next() {
		var (
			rec      models.DepositRecord
			from     sql.NullString
			amount   decimal.NullDecimal
			reviewed sql.NullBool
			score    sql.NullInt64
			level    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TxHash, &from, &amount, &reviewed, &score, &level); err != nil {
			return nil, fmt.Errorf("failed to scan deposit record: %w", err)
		}
		rec.FromAddress = from.String
		rec.Amount = amount.Decimal
		rec.Reviewed = reviewed.Bool
		if score.Valid {
			s := int(score.Int64)
			rec.RiskScore = &s
		}
		if level.Valid {
			l := level.String
			rec.RiskLevel = &l
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ReviewDepositRecord caches a fresh risk result and marks the record reviewed.
func (r *Repository) ReviewDepositRecord(ctx context.Context, id int64, score int, level string) error {
	_, err := r.Update(ctx, "deposit_records", Row{"id": id},
		Row{"reviewed": true, "risk_score": score, "risk_level": level})
	return err
}

const withdrawalColumns = `
		SELECT wr.user_id, wr.amount, wr.created_at, wr.to_address, wr.status, u.name, u.login_id
		FROM withdraw_records AS wr
		INNER JOIN users AS u ON u.id = wr.user_id`

// FailedWithdrawals returns failed withdrawals created after since.
func (r *Repository) FailedWithdrawals(ctx context.Context, since time.Time) ([]models.WithdrawRecord, error) {
	return r.queryWithdrawals(ctx, withdrawalColumns+`
		WHERE wr.status = $1 AND wr.created_at > $2
		ORDER BY wr.created_at ASC`, "failed", since)
}

// LargeWithdrawals returns withdrawals of at least threshold created after since.
func (r *Repository) LargeWithdrawals(ctx context.Context, since time.Time, threshold decimal.Decimal) ([]models.WithdrawRecord, error) {
	return r.queryWithdrawals(ctx, withdrawalColumns+`
		WHERE wr.created_at > $1 AND wr.amount >= $2
		ORDER BY wr.created_at ASC`, since, threshold)
}

func (r *Repository) queryWithdrawals(ctx context.Context, query string, args ...any) ([]models.WithdrawRecord, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawals: %w", err)
	}
	defer rows.Close()

	var out []models.WithdrawRecord
	for rows.Next() {
		var (
			w                         models.WithdrawRecord
			amount                    decimal.NullDecimal
			to, status, name, loginID sql.NullString
		)
		if err := rows.Scan(&w.UserID, &amount, &w.CreatedAt, &to, &status, &name, &loginID); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		w.Amount = amount.Decimal
		w.ToAddress, w.Status, w.Name, w.LoginID = to.String, status.String, name.String, loginID.String
		out = append(out, w)
	}
	return out, rows.Err()
}
