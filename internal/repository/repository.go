package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dan9191/bank-batch/internal/apperr"
	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/lib/pq"
)

// insertChunk bounds rows per multi-row INSERT to stay under the bind parameter limit.
const insertChunk = 500

// ErrNotInTx is returned by Commit and Rollback on a non-transactional repository.
var ErrNotInTx = errors.New("repository is not in a transaction")

// Row is a column-to-value map for generic writes.
type Row map[string]any

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	db      *sql.DB
	tx      *sql.Tx
	q       querier
	cal     *clock.Calendar
	actor   int64
	process string
	now     func() time.Time
	master  map[string]bool
}

// NewRepository initializes a new repository. Writes are stamped with actor and process.
func NewRepository(db *sql.DB, cal *clock.Calendar, actor int64, process string) *Repository {
	return &Repository{
		db:      db,
		q:       db,
		cal:     cal,
		actor:   actor,
		process: process,
		now:     time.Now,
		master:  map[string]bool{"system_configs": true},
	}
}

// WithProcess returns a copy that stamps writes with a different process tag.
func (r *Repository) WithProcess(process string) *Repository {
	c := *r
	c.process = process
	return &c
}

// Begin starts a transaction. The returned repository runs every query inside it.
func (r *Repository) Begin(ctx context.Context) (*Repository, error) {
	if r.tx != nil {
		return nil, apperr.New("repository.Begin", "transaction already open")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrapf("repository.Begin", err, "failed to begin transaction")
	}
	c := *r
	c.tx = tx
	c.q = tx
	return &c, nil
}

// Commit commits the open transaction.
func (r *Repository) Commit() error {
	if r.tx == nil {
		return apperr.Wrap("repository.Commit", ErrNotInTx)
	}
	if err := r.tx.Commit(); err != nil {
		return apperr.Wrapf("repository.Commit", err, "failed to commit")
	}
	return nil
}

// Rollback aborts the open transaction. Rolling back a finished transaction is a no-op.
func (r *Repository) Rollback() error {
	if r.tx == nil {
		return apperr.Wrap("repository.Rollback", ErrNotInTx)
	}
	if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return apperr.Wrapf("repository.Rollback", err, "failed to rollback")
	}
	return nil
}

func (r *Repository) stampCreate(table string, row Row) Row {
	out := make(Row, len(row)+6)
	for k, v := range row {
		out[k] = v
	}
	if r.master[table] {
		return out
	}
	now := clock.ToMillis(r.now())
	out["create_by"], out["create_at"], out["create_with"] = r.actor, now, r.process
	out["update_by"], out["update_at"], out["update_with"] = r.actor, now, r.process
	return out
}

func (r *Repository) stampUpdate(table string, fields Row) Row {
	out := make(Row, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	if r.master[table] {
		return out
	}
	out["update_by"], out["update_at"], out["update_with"] = r.actor, clock.ToMillis(r.now()), r.process
	return out
}

func columns(row Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func quoteAll(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// Insert writes one row, stamping audit columns.
func (r *Repository) Insert(ctx context.Context, table string, row Row) error {
	return r.InsertMany(ctx, table, []Row{row})
}

// InsertMany writes rows that share one column set.
func (r *Repository) InsertMany(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cols := columns(r.stampCreate(table, rows[0]))
	for start := 0; start < len(rows); start += insertChunk {
		end := start + insertChunk
		if end > len(rows) {
			end = len(rows)
		}
		if err := r.insertChunk(ctx, table, cols, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) insertChunk(ctx context.Context, table string, cols []string, rows []Row) error {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", pq.QuoteIdentifier(table), quoteAll(cols))

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		stamped := r.stampCreate(table, row)
		if len(stamped) != len(cols) {
			return apperr.New("repository.InsertMany", fmt.Sprintf("row %d of %s has %d columns, expected %d", i, table, len(stamped), len(cols)))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range cols {
			v, ok := stamped[c]
			if !ok {
				return apperr.New("repository.InsertMany", fmt.Sprintf("row %d of %s is missing column %s", i, table, c))
			}
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteString(")")
	}

	if _, err := r.q.ExecContext(ctx, b.String(), args...); err != nil {
		return apperr.Wrapf("repository.InsertMany", err, "failed to insert into %s", table)
	}
	return nil
}

// Update sets fields on rows matching every key and returns the affected count.
func (r *Repository) Update(ctx context.Context, table string, keys, fields Row) (int64, error) {
	if len(keys) == 0 {
		return 0, apperr.New("repository.Update", "refusing to update "+table+" without keys")
	}
	stamped := r.stampUpdate(table, fields)
	if len(stamped) == 0 {
		return 0, apperr.New("repository.Update", "nothing to set on "+table)
	}
	setCols := columns(stamped)
	keyCols := columns(keys)

	args := make([]any, 0, len(setCols)+len(keyCols))
	sets := make([]string, len(setCols))
	for i, c := range setCols {
		args = append(args, stamped[c])
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c), len(args))
	}
	conds := make([]string, len(keyCols))
	for i, c := range keyCols {
		args = append(args, keys[c])
		conds[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c), len(args))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		pq.QuoteIdentifier(table), strings.Join(sets, ", "), strings.Join(conds, " AND "))
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperr.Wrapf("repository.Update", err, "failed to update %s", table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrapf("repository.Update", err, "failed to read affected rows for %s", table)
	}
	return n, nil
}

func (r *Repository) timeOf(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := r.cal.FromMillis(ms.Int64)
	return &t
}

func millisOf(t *time.Time) any {
	if t == nil {
		return nil
	}
	return clock.ToMillis(*t)
}

func int64Of(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
