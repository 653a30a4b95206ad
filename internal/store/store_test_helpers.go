package store

import (
	"context"
	"database/sql"
)

// stubDB satisfies DB and Tx; nil funcs succeed with no rows.
type stubDB struct {
	getFn    func(ctx context.Context, dest any, query string, args ...any) error
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
	execFn   func(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s stubDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.getFn == nil {
		return nil
	}
	return s.getFn(ctx, dest, query, args...)
}

func (s stubDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

func (s stubDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.execFn == nil {
		return rowsResult(0), nil
	}
	return s.execFn(ctx, query, args...)
}

type rowsResult int64

func (r rowsResult) LastInsertId() (int64, error) { return 0, nil }
func (r rowsResult) RowsAffected() (int64, error) { return int64(r), nil }

// execLog records every statement and reports rows as affected.
type execLog struct {
	queries []string
	args    [][]any
	rows    int64
}

func (l *execLog) execer() stubDB {
	return stubDB{execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
		l.queries = append(l.queries, query)
		l.args = append(l.args, args)
		return rowsResult(l.rows), nil
	}}
}
