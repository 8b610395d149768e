package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
)

// NotYetDueInterests returns NDY interest periods that ended before baseDate.
func (r *Repository) NotYetDueInterests(ctx context.Context, baseDate time.Time) ([]models.BorrowingInterest, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT uid, id, interest_from, interest_to, interest_date, amount, status
		FROM borrowing_interests
		WHERE status = $1 AND interest_to < $2
		ORDER BY uid, id, interest_from`, models.InterestNotYetDue, clock.ToMillis(baseDate))
	if err != nil {
		return nil, fmt.Errorf("failed to load due borrowing interests: %w", err)
	}
	defer rows.Close()

	var out []models.BorrowingInterest
	for rows.Next() {
		rec, err := r.scanInterest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RepaidInterests returns repaid interest periods joined with their loan's guarantors.
func (r *Repository) RepaidInterests(ctx context.Context) ([]models.BorrowingInterest, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT bi.uid, bi.id, bi.interest_from, bi.interest_to, bi.interest_date, bi.amount, bi.status,
		       b.guarantor1, b.guarantor2, b.guarantor3
		FROM borrowing_interests bi
		JOIN borrowings b ON bi.uid = b.uid AND bi.id = b.id
		WHERE bi.status = $1
		ORDER BY bi.uid, bi.id, bi.interest_from`, models.InterestRepaid)
	if err != nil {
		return nil, fmt.Errorf("failed to load repaid borrowing interests: %w", err)
	}
	defer rows.Close()

	var out []models.BorrowingInterest
	for rows.Next() {
		var g1, g2, g3 sql.NullInt64
		rec, err := r.scanInterest(rows, &g1, &g2, &g3)
		if err != nil {
			return nil, err
		}
		rec.Guarantors = [3]*int64{int64Of(g1), int64Of(g2), int64Of(g3)}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) scanInterest(s rowScanner, extra ...any) (models.BorrowingInterest, error) {
	var (
		rec      models.BorrowingInterest
		from, to int64
		date     sql.NullInt64
		amount   decimal.NullDecimal
	)
	dest := append([]any{&rec.UID, &rec.ID, &from, &to, &date, &amount, &rec.Status}, extra...)
	if err := s.Scan(dest...); err != nil {
		return rec, fmt.Errorf("failed to scan borrowing interest: %w", err)
	}
	rec.InterestFrom = r.cal.FromMillis(from)
	rec.InterestTo = r.cal.FromMillis(to)
	rec.InterestDate = r.timeOf(date)
	rec.Amount = amount.Decimal
	return rec, nil
}

// SetInterestStatus transitions one interest period from one status to another.
func (r *Repository) SetInterestStatus(ctx context.Context, rec models.BorrowingInterest, from, to models.InterestStatus) (bool, error) {
	n, err := r.Update(ctx, "borrowing_interests",
		Row{
			"uid":           rec.UID,
			"id":            rec.ID,
			"interest_from": clock.ToMillis(rec.InterestFrom),
			"interest_to":   clock.ToMillis(rec.InterestTo),
			"status":        from,
		},
		Row{"status": to})
	return n > 0, err
}

// InsertIncomes stores distributed incomes.
func (r *Repository) InsertIncomes(ctx context.Context, incomes []models.Income) error {
	rows := make([]Row, len(incomes))
	for i, in := range incomes {
		rows[i] = Row{
			"uid":           in.UID,
			"borrowing_uid": in.BorrowingUID,
			"bid":           in.BorrowingID,
			"interest_from": clock.ToMillis(in.InterestFrom),
			"interest_to":   clock.ToMillis(in.InterestTo),
			"amount":        in.Amount,
			"is_guarantee":  in.IsGuarantee,
		}
	}
	return r.InsertMany(ctx, "incomes", rows)
}

// InsertFundFlows stores flows in the given order.
func (r *Repository) InsertFundFlows(ctx context.Context, flows []models.FundFlow) error {
	rows := make([]Row, len(flows))
	for i, f := range flows {
		var counter any
		if f.CounterSide != nil {
			counter = *f.CounterSide
		}
		rows[i] = Row{
			"user_id":       f.UserID,
			"fund_type":     f.FundType,
			"action":        f.Action,
			"amount":        f.Amount,
			"balance_after": f.BalanceAfter,
			"counter_side":  counter,
			"remark":        f.Remark,
		}
	}
	return r.InsertMany(ctx, "user_fund_flows", rows)
}

// GuarantorDivid reads the global guarantor cut, defaulting to zero.
func (r *Repository) GuarantorDivid(ctx context.Context) (decimal.Decimal, error) {
	v, found, err := r.SystemConfig(ctx, "guarantor_divid")
	if err != nil || !found || v == "" {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid guarantor_divid %q: %w", v, err)
	}
	return d, nil
}
