package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
)

const userColumns = `id, name, login_id, email, point, balance, loan, demand_balance,
		parent, parent_divid, wallet, audited_usdt, audited_trx, risk_score, risk_level, hw_risk_level`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*models.User, error) {
	var (
		u                                          models.User
		name, loginID, email, wallet               sql.NullString
		riskLevel, hwRiskLevel                     sql.NullString
		point, balance, loan, demandBal, usdt, trx decimal.NullDecimal
		parent, riskScore                          sql.NullInt64
	)
	err := s.Scan(&u.ID, &name, &loginID, &email, &point, &balance, &loan, &demandBal,
		&parent, &u.ParentDivid, &wallet, &usdt, &trx, &riskScore, &riskLevel, &hwRiskLevel)
	if err != nil {
		return nil, err
	}
	u.Name, u.LoginID, u.Email = name.String, loginID.String, email.String
	u.Point = point.Decimal
	u.Balance = balance.Decimal
	u.Loan = loan.Decimal
	u.DemandBalance = demandBal.Decimal
	u.AuditedUSDT = usdt.Decimal
	u.AuditedTRX = trx.Decimal
	u.Parent = int64Of(parent)
	if wallet.Valid {
		w := wallet.String
		u.Wallet = &w
	}
	u.RiskScore = int(riskScore.Int64)
	u.RiskLevel = riskLevel.String
	u.HWRiskLevel = hwRiskLevel.String
	return &u, nil
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LoadUsers returns every user ordered by id.
func (r *Repository) LoadUsers(ctx context.Context) ([]*models.User, error) {
	users, err := r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// AuditUsers returns users with a registered wallet, most recently updated first.
func (r *Repository) AuditUsers(ctx context.Context) ([]*models.User, error) {
	users, err := r.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE wallet IS NOT NULL ORDER BY update_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit users: %w", err)
	}
	return users, nil
}

// LockUser reads a user row FOR UPDATE. found is false when no such user exists.
func (r *Repository) LockUser(ctx context.Context, id int64) (*models.User, bool, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock user %d: %w", id, err)
	}
	return u, true, nil
}

// AddPoint applies a signed delta to a user's point balance.
func (r *Repository) AddPoint(ctx context.Context, id int64, delta decimal.Decimal) error {
	return r.addColumn(ctx, "point", id, delta)
}

// AddDemandBalance applies a signed delta to a user's demand balance.
func (r *Repository) AddDemandBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	return r.addColumn(ctx, "demand_balance", id, delta)
}

func (r *Repository) addColumn(ctx context.Context, column string, id int64, delta decimal.Decimal) error {
	query := fmt.Sprintf(`UPDATE users SET %[1]s = COALESCE(%[1]s, 0) + $1, update_by = $2, update_at = $3, update_with = $4 WHERE id = $5`, column)
	res, err := r.q.ExecContext(ctx, query, delta, r.actor, r.now().UnixMilli(), r.process, id)
	if err != nil {
		return fmt.Errorf("failed to add %s to user %d: %w", column, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to add %s to user %d: user not found", column, id)
	}
	return nil
}

// UpdateAudited stores the audited on-chain balances of a user.
func (r *Repository) UpdateAudited(ctx context.Context, id int64, usdt, trx decimal.Decimal) error {
	_, err := r.Update(ctx, "users", Row{"id": id}, Row{"audited_usdt": usdt, "audited_trx": trx})
	return err
}

// UpdateRisk stores the merged risk rating of a user.
func (r *Repository) UpdateRisk(ctx context.Context, id int64, score int, level string) error {
	_, err := r.Update(ctx, "users", Row{"id": id}, Row{"risk_score": score, "risk_level": level})
	return err
}
