package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	applogger "FinPattern/pkg/logger"
)

// insertChunk bounds the rows of one multi-VALUES insert.
const insertChunk = 2000

// chTable carries the pool, logger and table name every ClickHouse
// repository shares.
type chTable struct {
	db    *sql.DB
	l     *applogger.Logger
	table string
}

func newCHTable(db *sql.DB, l *applogger.Logger, table string) chTable {
	if l == nil {
		l = applogger.NewNop()
	}
	return chTable{db: db, l: l, table: table}
}

func (t chTable) fail(op string, err error, fields ...applogger.Field) error {
	fs := append([]applogger.Field{applogger.String("table", t.table), applogger.Error(err)}, fields...)
	t.l.Error("clickhouse "+op+" error", fs...)
	return fmt.Errorf("%s: %w", op, err)
}

func (t chTable) ok(op string, start time.Time, rows int) {
	t.l.Debug("clickhouse "+op+" ok",
		applogger.String("table", t.table),
		applogger.Int("rows", rows),
		applogger.Duration("duration_ms", time.Since(start)),
	)
}

// insert writes rows with one multi-VALUES statement per chunk.
func (t chTable) insert(ctx context.Context, op string, cols []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for from := 0; from < len(rows); from += insertChunk {
		to := min(from+insertChunk, len(rows))
		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*len(cols))
		for _, r := range rows[from:to] {
			values = append(values, ph)
			args = append(args, r...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", t.table, strings.Join(cols, ", "), strings.Join(values, ","))
		if _, err := t.db.ExecContext(ctx, q, args...); err != nil {
			return t.fail(op, err, applogger.Int("rows", to-from))
		}
	}
	t.ok(op, start, len(rows))
	return nil
}

// count runs SELECT count() with an optional WHERE clause.
func (t chTable) count(ctx context.Context, op, where string, args ...interface{}) (int64, error) {
	q := fmt.Sprintf("SELECT count() FROM %s FINAL", t.table)
	if where != "" {
		q += " WHERE " + where
	}
	var n uint64
	if err := t.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, t.fail(op, err)
	}
	return int64(n), nil
}

// bound returns min or max of a time column. ok is false when no row
// matches, since ClickHouse answers an empty aggregate with the epoch.
func (t chTable) bound(ctx context.Context, op, agg, col, where string) (time.Time, bool, error) {
	q := fmt.Sprintf("SELECT count(), %s(%s) FROM %s FINAL", agg, col, t.table)
	if where != "" {
		q += " WHERE " + where
	}
	var (
		n  uint64
		ts time.Time
	)
	if err := t.db.QueryRowContext(ctx, q).Scan(&n, &ts); err != nil {
		return time.Time{}, false, t.fail(op, err)
	}
	if n == 0 {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

func version() uint64 { return uint64(time.Now().UnixNano()) }
