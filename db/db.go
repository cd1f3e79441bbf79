// Package db is the SQL-first persistence toolkit behind the star store.
// It is NOT an ORM: every statement is written by hand, and the toolkit only
// adds context handling, hook dispatch, error mapping, dialect rebinding and
// transactions on top of database/sql.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds all options for opening and managing the connection pool.
type Config struct {
	// DSN is the driver-specific data-source name.
	DSN string

	// DriverName is "postgres", "mysql", or "sqlite3".
	DriverName string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Default query timeout applied when no deadline is set on the context.
	// Zero means no default timeout.
	DefaultTimeout time.Duration

	// Hooks executed around every statement (logging, metrics, tracing).
	// Nil entries are skipped.
	Hooks []Hook
}

// ─────────────────────────────────────────────────────────────────────────────
// DB
// ─────────────────────────────────────────────────────────────────────────────

// DB is a concurrency-safe wrapper around *sql.DB.
//
// All methods accept a context.Context so callers control timeouts and
// cancellation. The underlying *sql.DB is reachable via Raw().
type DB struct {
	sqldb   *sql.DB
	cfg     Config
	hooks   hookChain
	errMap  ErrorMapper
	dialect Dialect
}

// Open opens the database described by cfg and verifies connectivity with Ping.
// Callers are responsible for calling Close() when the application shuts down.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("stars/db: DSN must not be empty")
	}
	if cfg.DriverName == "" {
		return nil, fmt.Errorf("stars/db: DriverName must not be empty")
	}

	sqldb, err := sql.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("stars/db: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	d := &DB{
		sqldb:   sqldb,
		cfg:     cfg,
		hooks:   newHookChain(cfg.Hooks),
		errMap:  DefaultErrorMapper(),
		dialect: dialectFor(cfg.DriverName),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("stars/db: ping: %w", err)
	}

	return d, nil
}

// Raw returns the underlying *sql.DB. Migrations use it to build a
// golang-migrate database instance on the same pool.
func (d *DB) Raw() *sql.DB { return d.sqldb }

// DriverName returns the database/sql driver name the pool was opened with.
func (d *DB) DriverName() string { return d.cfg.DriverName }

// Dialect returns the SQL dialect of the open driver.
func (d *DB) Dialect() Dialect { return d.dialect }

// SetErrorMapper replaces the default error mapper.
func (d *DB) SetErrorMapper(m ErrorMapper) { d.errMap = m }

// Close closes all pooled connections. Safe to call multiple times.
func (d *DB) Close() error { return d.sqldb.Close() }

// Ping verifies that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.applyDefaultTimeout(ctx)
	defer cancel()
	return d.mapErr(d.sqldb.PingContext(ctx))
}

// Stats returns pool statistics for monitoring.
func (d *DB) Stats() sql.DBStats { return d.sqldb.Stats() }

// ─────────────────────────────────────────────────────────────────────────────
// Query execution helpers
// ─────────────────────────────────────────────────────────────────────────────

// Exec executes a statement that returns no rows (INSERT, UPDATE, DELETE, DDL).
// Placeholders are written as '?' and rebound for the open dialect.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := d.applyDefaultTimeout(ctx)
	defer cancel()
	query = d.dialect.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	res, err := d.sqldb.ExecContext(ctx, query, args...)
	err = d.mapErr(err)
	d.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Query executes a query that returns rows.
// The caller MUST close the returned *Rows; closing also releases the
// default timeout, which covers the whole iteration.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	ctx, cancel := d.applyDefaultTimeout(ctx)
	query = d.dialect.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	rows, err := d.sqldb.QueryContext(ctx, query, args...)
	err = d.mapErr(err)
	d.hooks.After(ctx, query, args, time.Since(start), err)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Rows{Rows: rows, ctx: ctx, cancel: cancel, errMap: d.errMap}, nil
}

// QueryRow executes a query expected to return at most one row.
// ErrNotFound is returned from Scan when no row matches. The default timeout
// runs until Scan returns.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := d.applyDefaultTimeout(ctx)
	query = d.dialect.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	raw := d.sqldb.QueryRowContext(ctx, query, args...)
	d.hooks.After(ctx, query, args, time.Since(start), nil) // err unknown until Scan
	return &Row{raw: raw, ctx: ctx, cancel: cancel, errMap: d.errMap}
}

// Prepare creates a prepared statement for repeated use. The default timeout
// bounds the prepare call and every execution of the statement.
// The caller is responsible for calling stmt.Close().
func (d *DB) Prepare(ctx context.Context, query string) (*Stmt, error) {
	query = d.dialect.Rebind(query)
	pctx, cancel := d.applyDefaultTimeout(ctx)
	defer cancel()
	s, err := d.sqldb.PrepareContext(pctx, query)
	if err != nil {
		return nil, d.mapErr(err)
	}
	return &Stmt{stmt: s, query: query, hooks: d.hooks, errMap: d.errMap, timeout: d.cfg.DefaultTimeout}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (d *DB) applyDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, d.cfg.DefaultTimeout)
}

// withTimeout bounds ctx by timeout unless timeout is zero or ctx already
// carries a deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (d *DB) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return d.errMap.Map(err)
}

// mapReadErr maps an error surfaced while reading results. Drivers report an
// expired deadline in their own words, so a done ctx wins over the mapper.
func mapReadErr(ctx context.Context, m ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && !errors.Is(err, sql.ErrNoRows) {
		var dbe *DBError
		if errors.As(err, &dbe) {
			return err
		}
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	}
	return m.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Row
// ─────────────────────────────────────────────────────────────────────────────

// Row wraps *sql.Row and maps errors through the unified error mapper.
type Row struct {
	raw    *sql.Row
	ctx    context.Context
	cancel context.CancelFunc
	errMap ErrorMapper
}

// Scan copies columns from the matched row into dest values and releases
// the row's timeout. ErrNotFound is returned when no row was found.
func (r *Row) Scan(dest ...any) error {
	defer r.cancel()
	return mapReadErr(r.ctx, r.errMap, r.raw.Scan(dest...))
}

// ─────────────────────────────────────────────────────────────────────────────
// Rows
// ─────────────────────────────────────────────────────────────────────────────

// Rows wraps *sql.Rows. Scan and Err map errors; Close releases the timeout.
type Rows struct {
	*sql.Rows
	ctx    context.Context
	cancel context.CancelFunc
	errMap ErrorMapper
}

// Scan copies the current row into dest.
func (r *Rows) Scan(dest ...any) error {
	return mapReadErr(r.ctx, r.errMap, r.Rows.Scan(dest...))
}

// Err returns the error, if any, that ended the iteration.
func (r *Rows) Err() error {
	return mapReadErr(r.ctx, r.errMap, r.Rows.Err())
}

// Close closes the rows and cancels the query context.
func (r *Rows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Stmt
// ─────────────────────────────────────────────────────────────────────────────

// Stmt wraps a prepared *sql.Stmt with hook dispatch and error mapping.
type Stmt struct {
	stmt    *sql.Stmt
	query   string
	hooks   hookChain
	errMap  ErrorMapper
	timeout time.Duration
}

// Exec executes the prepared statement.
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		err = s.errMap.Map(err)
	}
	s.hooks.After(ctx, s.query, args, time.Since(start), err)
	return res, err
}

// QueryRow executes the prepared statement expecting one row.
func (s *Stmt) QueryRow(ctx context.Context, args ...any) *Row {
	ctx, cancel := withTimeout(ctx, s.timeout)
	start := time.Now()
	s.hooks.Before(ctx, s.query, args)
	raw := s.stmt.QueryRowContext(ctx, args...)
	s.hooks.After(ctx, s.query, args, time.Since(start), nil)
	return &Row{raw: raw, ctx: ctx, cancel: cancel, errMap: s.errMap}
}

// Close releases the prepared statement resources.
func (s *Stmt) Close() error { return s.stmt.Close() }

// ─────────────────────────────────────────────────────────────────────────────
// WithRetry
// ─────────────────────────────────────────────────────────────────────────────

// RetryConfig controls retry behaviour for transient errors.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	// RetryOn decides whether a given error should trigger a retry.
	// Defaults to retrying on ErrDeadlock, ErrTimeout and ErrConnectionFailed.
	RetryOn func(error) bool
}

// WithRetry executes fn, retrying on transient errors per cfg.
// The service uses it only at startup, while waiting for the database to
// accept connections; request handling never retries.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	retryOn := cfg.RetryOn
	if retryOn == nil {
		retryOn = func(err error) bool {
			return IsDeadlock(err) || IsTimeout(err) || IsConnectionFailed(err)
		}
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryOn(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("stars/db: all %d attempts failed, last error: %w", attempts, lastErr)
}
