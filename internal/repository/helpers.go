package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// RowCursor is a forward-only iterator over query results. *sqlx.Rows satisfies it.
type RowCursor interface {
	Next() bool
	StructScan(dest interface{}) error
	Err() error
	Close() error
}

// wallClockLayout renders a time as a Postgres TIMESTAMP literal.
const wallClockLayout = "2006-01-02 15:04:05"

// wallClock formats t in its own location so it compares against date + time-slot columns.
func wallClock(t time.Time) string {
	return t.Format(wallClockLayout)
}

func dateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}

func pick(db *sqlx.DB, exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return db
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}

func pqStringArray(values []string) interface{} {
	return pq.Array(values)
}

// requireAffected converts a zero-row write into sql.ErrNoRows.
func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func affectedCount(result sql.Result, op string) (int, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return int(affected), nil
}
