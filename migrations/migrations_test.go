package migrations_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/db"
	"github.com/dsuszek/dev-task/migrations"
)

func openMemoryDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(db.Config{DSN: ":memory:", DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestUp_CreatesStarsTable(t *testing.T) {
	d := openMemoryDB(t)

	require.NoError(t, migrations.Up(d, zap.NewNop()))

	_, err := d.Exec(context.Background(), `INSERT INTO stars (name, distance) VALUES (?, ?)`, "Sol", 0)
	require.NoError(t, err)
}

func TestUp_Idempotent(t *testing.T) {
	d := openMemoryDB(t)

	require.NoError(t, migrations.Up(d, nil))
	require.NoError(t, migrations.Up(d, nil))

	m, err := migrations.New(d, nil)
	require.NoError(t, err)
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
}

func TestDown_DropsTable(t *testing.T) {
	d := openMemoryDB(t)

	m, err := migrations.New(d, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Steps(-2))

	_, err = d.Exec(context.Background(), `SELECT COUNT(*) FROM stars`)
	assert.Error(t, err)
}

func TestApply_ClosesPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stars.db")
	d, err := db.Open(db.Config{DSN: path, DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)

	require.NoError(t, migrations.Apply(d, zap.NewNop()))
	assert.Error(t, d.Ping(context.Background()), "Apply must release its pool")

	reopened, err := db.Open(db.Config{DSN: path, DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	m, err := migrations.New(reopened, nil)
	require.NoError(t, err)
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	// An up-to-date schema is not an error.
	again, err := db.Open(db.Config{DSN: path, DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	assert.NoError(t, migrations.Apply(again, nil))
}
