package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Tx
// ─────────────────────────────────────────────────────────────────────────────

// Tx wraps *sql.Tx and mirrors the DB API surface so repositories can accept
// either through the Querier interface.
type Tx struct {
	sqltx   *sql.Tx
	hooks   hookChain
	errMap  ErrorMapper
	dialect Dialect
	timeout time.Duration
}

// Exec executes a statement that does not return rows.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()
	query = t.dialect.Rebind(query)
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	res, err := t.sqltx.ExecContext(ctx, query, args...)
	err = t.mapErr(err)
	t.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query returning rows. The caller MUST close *Rows.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	ctx, cancel := withTimeout(ctx, t.timeout)
	query = t.dialect.Rebind(query)
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	rows, err := t.sqltx.QueryContext(ctx, query, args...)
	err = t.mapErr(err)
	t.hooks.After(ctx, query, args, time.Since(start), err)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Rows{Rows: rows, ctx: ctx, cancel: cancel, errMap: t.errMap}, nil
}

// QueryRow executes a query expected to return at most one row.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := withTimeout(ctx, t.timeout)
	query = t.dialect.Rebind(query)
	start := time.Now()
	t.hooks.Before(ctx, query, args)
	raw := t.sqltx.QueryRowContext(ctx, query, args...)
	t.hooks.After(ctx, query, args, time.Since(start), nil)
	return &Row{raw: raw, ctx: ctx, cancel: cancel, errMap: t.errMap}
}

// Prepare creates a prepared statement within the transaction.
func (t *Tx) Prepare(ctx context.Context, query string) (*Stmt, error) {
	query = t.dialect.Rebind(query)
	pctx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()
	s, err := t.sqltx.PrepareContext(pctx, query)
	if err != nil {
		return nil, t.mapErr(err)
	}
	return &Stmt{stmt: s, query: query, hooks: t.hooks, errMap: t.errMap, timeout: t.timeout}, nil
}

// Dialect returns the SQL dialect of the parent pool.
func (t *Tx) Dialect() Dialect { return t.dialect }

func (t *Tx) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return t.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// ExecTx
// ─────────────────────────────────────────────────────────────────────────────

// TxOptions configures isolation level and the read-only flag.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// ExecTx starts a transaction, executes fn, and commits on success or rolls
// back on error or panic. Nested transactions are not supported.
//
//	err := database.ExecTx(ctx, func(tx *db.Tx) error {
//	    _, err := repo.NewStarRepo(tx).BatchInsert(ctx, params)
//	    return err
//	})
func (d *DB) ExecTx(ctx context.Context, fn func(*Tx) error, opts ...TxOptions) (err error) {
	var sqlOpts *sql.TxOptions
	if len(opts) > 0 {
		sqlOpts = &sql.TxOptions{
			Isolation: opts[0].Isolation,
			ReadOnly:  opts[0].ReadOnly,
		}
	}

	sqltx, err := d.sqldb.BeginTx(ctx, sqlOpts)
	if err != nil {
		return d.mapErr(err)
	}

	tx := &Tx{
		sqltx:   sqltx,
		hooks:   d.hooks,
		errMap:  d.errMap,
		dialect: d.dialect,
		timeout: d.cfg.DefaultTimeout,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqltx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqltx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("stars/db: rollback failed (%v) after original error: %w", rbErr, err)
			}
		}
	}()

	err = fn(tx)
	if err != nil {
		return d.mapErr(err)
	}

	if err = sqltx.Commit(); err != nil {
		return d.mapErr(err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Querier
// ─────────────────────────────────────────────────────────────────────────────

// Querier is the interface shared by *DB and *Tx. Repository constructors
// accept a Querier so they work unchanged inside transactions.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Prepare(ctx context.Context, query string) (*Stmt, error)
	Dialect() Dialect
}

var (
	_ Querier = (*DB)(nil)
	_ Querier = (*Tx)(nil)
)
