package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/models"
)

// ExpiredDemands returns begin-status demands whose end is before baseDate.
func (r *Repository) ExpiredDemands(ctx context.Context, baseDate time.Time) ([]models.Demand, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT uid, id, demand_begin, demand_end, amount, status, interest_rate, interest
		FROM demands
		WHERE demand_end IS NOT NULL AND demand_end < $1 AND status = $2
		ORDER BY demand_end ASC`, clock.ToMillis(baseDate), models.DemandBegin)
	if err != nil {
		return nil, fmt.Errorf("failed to load expired demands: %w", err)
	}
	defer rows.Close()

	var out []models.Demand
	for rows.Next() {
		var (
			d     models.Demand
			begin int64
			end   sql.NullInt64
		)
		if err := rows.Scan(&d.UID, &d.ID, &begin, &end, &d.Amount, &d.Status, &d.InterestRate, &d.Interest); err != nil {
			return nil, fmt.Errorf("failed to scan demand: %w", err)
		}
		d.Begin = r.cal.FromMillis(begin)
		d.End = r.timeOf(end)
		out = append(out, d)
	}
	return out, rows.Err()
}

// FinishDemand moves a demand from begin to done.
func (r *Repository) FinishDemand(ctx context.Context, uid, id int64) (bool, error) {
	n, err := r.Update(ctx, "demands",
		Row{"uid": uid, "id": id, "status": models.DemandBegin},
		Row{"status": models.DemandDone})
	return n > 0, err
}
