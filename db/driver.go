package db

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Dialect
// ─────────────────────────────────────────────────────────────────────────────

// BindStyle is the placeholder syntax a driver expects.
type BindStyle int

const (
	// BindQuestion keeps '?' placeholders (sqlite3, mysql).
	BindQuestion BindStyle = iota
	// BindDollar rewrites placeholders to $1, $2, ... (postgres).
	BindDollar
)

// Dialect describes the SQL differences the repositories care about.
type Dialect struct {
	Name string
	Bind BindStyle
	// Returning reports whether INSERT ... RETURNING is supported.
	Returning bool
}

// Rebind rewrites '?' placeholders into the dialect's bind style.
// Statements must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d.Bind != BindDollar || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func dialectFor(driverName string) Dialect {
	if drv, err := LookupDriver(driverName); err == nil {
		return drv.Dialect()
	}
	return Dialect{Name: driverName, Bind: BindQuestion}
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver interface
// ─────────────────────────────────────────────────────────────────────────────

// Driver encapsulates database-specific behaviour: DSN construction, the
// error mapper and the SQL dialect.
type Driver interface {
	// Name returns the name passed to sql.Register, e.g. "postgres".
	Name() string

	// DSN converts structured options into a driver DSN string.
	DSN(opts DriverOptions) (string, error)

	// ErrorMapper returns a mapper tuned to this driver's error types.
	ErrorMapper() ErrorMapper

	// Dialect returns the placeholder style and feature flags.
	Dialect() Dialect
}

// DriverOptions carries the common connection parameters in a structured,
// driver-agnostic form.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-full", etc.
	// Extra holds driver-specific key/value parameters.
	Extra map[string]string
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver adds a Driver to the registry.
// Panics if a driver with the same name is already registered.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name()]; ok {
		panic(fmt.Sprintf("stars/db: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name or an error.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("stars/db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver opens a DB using a registered Driver and structured options.
//
//	database, err := db.OpenWithDriver("postgres", db.DriverOptions{
//	    Host: "localhost", Port: 5432,
//	    User: "stars", Password: "secret", Database: "stars",
//	}, db.Config{MaxOpenConns: 25})
func OpenWithDriver(driverName string, driverOpts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}

	dsn, err := drv.DSN(driverOpts)
	if err != nil {
		return nil, fmt.Errorf("stars/db: DSN construction failed: %w", err)
	}

	cfg.DriverName = drv.Name()
	cfg.DSN = dsn

	database, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	database.SetErrorMapper(ChainMapper(drv.ErrorMapper(), DefaultErrorMapper()))
	return database, nil
}

// sortedExtra returns Extra keys in a stable order so DSNs are reproducible.
func sortedExtra(extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq)
// ─────────────────────────────────────────────────────────────────────────────

// PostgresDriver is the lib/pq adapter.
type PostgresDriver struct{}

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("postgres driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, port, o.User, o.Password, o.Database, sslMode,
	)
	for _, k := range sortedExtra(o.Extra) {
		dsn += fmt.Sprintf(" %s=%s", k, o.Extra[k])
	}
	return dsn, nil
}

func (PostgresDriver) ErrorMapper() ErrorMapper { return ErrorMapperFunc(mapPQOnly) }
func (PostgresDriver) Dialect() Dialect {
	return Dialect{Name: "postgres", Bind: BindDollar, Returning: true}
}

func mapPQOnly(err error) error {
	if mapped := mapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver is the go-sql-driver/mysql adapter.
type MySQLDriver struct{}

func (MySQLDriver) Name() string { return "mysql" }

func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		o.User, o.Password, o.Host, port, o.Database)
	for _, k := range sortedExtra(o.Extra) {
		dsn += fmt.Sprintf("&%s=%s", k, url.QueryEscape(o.Extra[k]))
	}
	return dsn, nil
}

func (MySQLDriver) ErrorMapper() ErrorMapper { return ErrorMapperFunc(mapMySQLOnly) }
func (MySQLDriver) Dialect() Dialect {
	return Dialect{Name: "mysql", Bind: BindQuestion, Returning: false}
}

func mapMySQLOnly(err error) error {
	if mapped := mapMySQLError(err); mapped != nil {
		return mapped
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite (mattn/go-sqlite3)
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver is the mattn/go-sqlite3 adapter.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite3" }

func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	dsn := o.Database
	for i, k := range sortedExtra(o.Extra) {
		if i == 0 {
			dsn += "?"
		} else {
			dsn += "&"
		}
		dsn += k + "=" + o.Extra[k]
	}
	return dsn, nil
}

func (SQLiteDriver) ErrorMapper() ErrorMapper { return ErrorMapperFunc(mapSQLiteOnly) }
func (SQLiteDriver) Dialect() Dialect {
	return Dialect{Name: "sqlite3", Bind: BindQuestion, Returning: true}
}

func mapSQLiteOnly(err error) error {
	if mapped := mapSQLiteError(err); mapped != nil {
		return mapped
	}
	return err
}

// The database/sql drivers register themselves when errors.go imports them.
func init() {
	RegisterDriver(PostgresDriver{})
	RegisterDriver(MySQLDriver{})
	RegisterDriver(SQLiteDriver{})
}
