package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/models"
)

// DepositKey identifies a fixed-term deposit.
type DepositKey struct {
	UID int64
	ID  int64
}

// ActiveDeposits returns deposits in status begin with their details ordered by installment.
func (r *Repository) ActiveDeposits(ctx context.Context) ([]models.Deposit, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT uid, id, deposit_begin, deposit_end, minimum_amount, status
		FROM deposits
		WHERE status = $1
		ORDER BY deposit_begin DESC`, models.DepositBegin)
	if err != nil {
		return nil, fmt.Errorf("failed to load deposits: %w", err)
	}
	defer rows.Close()

	var deposits []models.Deposit
	index := make(map[DepositKey]int)
	for rows.Next() {
		var (
			d     models.Deposit
			begin int64
			end   sql.NullInt64
		)
		if err := rows.Scan(&d.UID, &d.ID, &begin, &end, &d.MinimumAmount, &d.Status); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		d.Begin = r.cal.FromMillis(begin)
		d.End = r.timeOf(end)
		index[DepositKey{d.UID, d.ID}] = len(deposits)
		deposits = append(deposits, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load deposits: %w", err)
	}
	if len(deposits) == 0 {
		return nil, nil
	}

	details, err := r.queryDetails(ctx, `
		SELECT dd.uid, dd.id, dd.installment, dd.deposit_date, dd.amount, dd.interest_rate, dd.deposit_limit, dd.status
		FROM deposit_details dd
		JOIN deposits d ON d.uid = dd.uid AND d.id = dd.id
		WHERE d.status = $1
		ORDER BY dd.uid, dd.id, dd.installment`, models.DepositBegin)
	if err != nil {
		return nil, err
	}
	for _, detail := range details {
		if i, ok := index[DepositKey{detail.UID, detail.ID}]; ok {
			deposits[i].Details = append(deposits[i].Details, detail)
		}
	}
	return deposits, nil
}

// NotYetDueDetails returns every installment still in status NDY.
func (r *Repository) NotYetDueDetails(ctx context.Context) ([]models.DepositDetail, error) {
	return r.queryDetails(ctx, `
		SELECT uid, id, installment, deposit_date, amount, interest_rate, deposit_limit, status
		FROM deposit_details
		WHERE status = $1
		ORDER BY uid, id, installment`, models.DetailNotYetDue)
}

func (r *Repository) queryDetails(ctx context.Context, query string, args ...any) ([]models.DepositDetail, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit details: %w", err)
	}
	defer rows.Close()

	var details []models.DepositDetail
	for rows.Next() {
		var (
			d           models.DepositDetail
			date, limit sql.NullInt64
		)
		if err := rows.Scan(&d.UID, &d.ID, &d.Installment, &date, &d.Amount, &d.InterestRate, &limit, &d.Status); err != nil {
			return nil, fmt.Errorf("failed to scan deposit detail: %w", err)
		}
		d.DepositDate = r.timeOf(date)
		d.DepositLimit = r.timeOf(limit)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load deposit details: %w", err)
	}
	return details, nil
}

// AccruedOn returns the deposits that already have interest rows for interestDate.
func (r *Repository) AccruedOn(ctx context.Context, interestDate time.Time) (map[DepositKey]bool, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT DISTINCT uid, id FROM deposit_interests WHERE interest_date = $1`, clock.ToMillis(interestDate))
	if err != nil {
		return nil, fmt.Errorf("failed to load accrued deposits: %w", err)
	}
	defer rows.Close()

	accrued := make(map[DepositKey]bool)
	for rows.Next() {
		var k DepositKey
		if err := rows.Scan(&k.UID, &k.ID); err != nil {
			return nil, fmt.Errorf("failed to scan accrued deposit: %w", err)
		}
		accrued[k] = true
	}
	return accrued, rows.Err()
}

// InsertDepositInterests stores accrued interest rows.
func (r *Repository) InsertDepositInterests(ctx context.Context, interests []models.DepositInterest) error {
	rows := make([]Row, len(interests))
	for i, in := range interests {
		rows[i] = Row{
			"uid":           in.UID,
			"id":            in.ID,
			"installment":   in.Installment,
			"interest_date": clock.ToMillis(in.InterestDate),
			"amount":        in.Amount,
		}
	}
	return r.InsertMany(ctx, "deposit_interests", rows)
}

// EndDeposit marks a matured deposit. It only transitions deposits still in begin.
func (r *Repository) EndDeposit(ctx context.Context, uid, id int64, at time.Time) (bool, error) {
	n, err := r.Update(ctx, "deposits",
		Row{"uid": uid, "id": id, "status": models.DepositBegin},
		Row{"status": models.DepositEnd, "deposit_end": clock.ToMillis(at)})
	return n > 0, err
}

// MarkDetailOverdue moves an NDY installment to overdue.
func (r *Repository) MarkDetailOverdue(ctx context.Context, uid, id int64, installment string) (bool, error) {
	n, err := r.Update(ctx, "deposit_details",
		Row{"uid": uid, "id": id, "installment": installment, "status": models.DetailNotYetDue},
		Row{"status": models.DetailOverdue})
	return n > 0, err
}
