package repo_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/db"
	"github.com/dsuszek/dev-task/migrations"
	"github.com/dsuszek/dev-task/models"
	"github.com/dsuszek/dev-task/repo"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// newTestDB opens an in-memory SQLite database with the stars schema applied.
// A single connection keeps every statement on the same in-memory database.
func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(db.Config{
		DSN:          ":memory:",
		DriverName:   "sqlite3",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func mustInsert(t *testing.T, r repo.StarRepository, name string, distance int64) *models.Star {
	t.Helper()
	s, err := r.Insert(context.Background(), models.CreateStarParams{Name: name, Distance: distance})
	if err != nil {
		t.Fatalf("Insert(%q): %v", name, err)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Insert / GetByID
// ─────────────────────────────────────────────────────────────────────────────

func TestStarRepo_InsertAndGetByID(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))
	ctx := context.Background()

	created := mustInsert(t, r, "Sirius", 9)
	if created.ID == 0 {
		t.Fatal("expected store-assigned id")
	}

	got, err := r.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if *got != *created {
		t.Errorf("got %+v, want %+v", got, created)
	}
}

func TestStarRepo_InsertAssignsDistinctIDs(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))

	a := mustInsert(t, r, "Vega", 25)
	b := mustInsert(t, r, "Vega", 25)
	if a.ID == b.ID {
		t.Errorf("expected distinct ids, both were %d", a.ID)
	}
}

func TestStarRepo_GetByID_NotFound(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))

	_, err := r.GetByID(context.Background(), 42)
	if !db.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// FindAll / Count
// ─────────────────────────────────────────────────────────────────────────────

func TestStarRepo_FindAll_Empty(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))

	stars, err := r.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if stars == nil || len(stars) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", stars)
	}
}

func TestStarRepo_FindAll_InsertionOrder(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))
	want := []string{"StarA", "StarB", "StarA", "StarC"}
	for i, name := range want {
		mustInsert(t, r, name, int64(10-i))
	}

	stars, err := r.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(stars) != len(want) {
		t.Fatalf("expected %d stars, got %d", len(want), len(stars))
	}
	for i, s := range stars {
		if s.Name != want[i] {
			t.Errorf("stars[%d].Name = %q, want %q", i, s.Name, want[i])
		}
		if i > 0 && s.ID <= stars[i-1].ID {
			t.Errorf("ids not ascending at %d: %d after %d", i, s.ID, stars[i-1].ID)
		}
	}
}

func TestStarRepo_Count(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))
	mustInsert(t, r, "Altair", 17)
	mustInsert(t, r, "Deneb", 2600)

	n, err := r.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update / Delete
// ─────────────────────────────────────────────────────────────────────────────

func TestStarRepo_Update(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))
	ctx := context.Background()
	created := mustInsert(t, r, "Polaris", 433)

	updated, err := r.Update(ctx, models.Star{ID: created.ID, Name: "Polaris Aa", Distance: 447})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID != created.ID || updated.Name != "Polaris Aa" || updated.Distance != 447 {
		t.Errorf("unexpected star after update: %+v", updated)
	}

	got, _ := r.GetByID(ctx, created.ID)
	if got.Name != "Polaris Aa" {
		t.Errorf("update not persisted, got %+v", got)
	}
}

func TestStarRepo_Update_NotFound(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))

	_, err := r.Update(context.Background(), models.Star{ID: 99, Name: "Ghost", Distance: 1})
	if !db.IsNotFound(err) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStarRepo_Delete(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))
	ctx := context.Background()
	created := mustInsert(t, r, "Betelgeuse", 548)

	if err := r.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.GetByID(ctx, created.ID); !db.IsNotFound(err) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := r.Delete(ctx, created.ID); !db.IsNotFound(err) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// BatchInsert
// ─────────────────────────────────────────────────────────────────────────────

func TestStarRepo_BatchInsert_InTx(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	params := []models.CreateStarParams{
		{Name: "Rigel", Distance: 860},
		{Name: "Procyon", Distance: 11},
		{Name: "Capella", Distance: 43},
	}

	var inserted []models.Star
	err := database.ExecTx(ctx, func(tx *db.Tx) error {
		var err error
		inserted, err = repo.NewStarRepo(tx).BatchInsert(ctx, params)
		return err
	})
	if err != nil {
		t.Fatalf("ExecTx: %v", err)
	}
	if len(inserted) != len(params) {
		t.Fatalf("expected %d stars, got %d", len(params), len(inserted))
	}
	for i, s := range inserted {
		if s.ID == 0 || s.Name != params[i].Name || s.Distance != params[i].Distance {
			t.Errorf("inserted[%d] = %+v", i, s)
		}
	}

	n, _ := repo.NewStarRepo(database).Count(ctx)
	if n != 3 {
		t.Errorf("expected 3 rows after commit, got %d", n)
	}
}

func TestStarRepo_BatchInsert_RollbackOnError(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("abort")

	err := database.ExecTx(ctx, func(tx *db.Tx) error {
		if _, err := repo.NewStarRepo(tx).BatchInsert(ctx, []models.CreateStarParams{{Name: "Mira", Distance: 300}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected abort error, got %v", err)
	}

	n, _ := repo.NewStarRepo(database).Count(ctx)
	if n != 0 {
		t.Errorf("expected rollback to leave 0 rows, got %d", n)
	}
}

func TestStarRepo_BatchInsert_Empty(t *testing.T) {
	r := repo.NewStarRepo(newTestDB(t))

	stars, err := r.BatchInsert(context.Background(), nil)
	if err != nil {
		t.Fatalf("BatchInsert: %v", err)
	}
	if len(stars) != 0 {
		t.Errorf("expected no stars, got %d", len(stars))
	}
}
