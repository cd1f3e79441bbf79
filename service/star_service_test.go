package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/db"
	"github.com/dsuszek/dev-task/migrations"
	"github.com/dsuszek/dev-task/models"
	"github.com/dsuszek/dev-task/repo"
	"github.com/dsuszek/dev-task/service"
)

// MockStarRepository is a testify mock of repo.StarRepository.
type MockStarRepository struct {
	mock.Mock
}

func (m *MockStarRepository) GetByID(ctx context.Context, id int64) (*models.Star, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*models.Star)
	return s, args.Error(1)
}

func (m *MockStarRepository) FindAll(ctx context.Context) ([]models.Star, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).([]models.Star)
	return s, args.Error(1)
}

func (m *MockStarRepository) Insert(ctx context.Context, params models.CreateStarParams) (*models.Star, error) {
	args := m.Called(ctx, params)
	s, _ := args.Get(0).(*models.Star)
	return s, args.Error(1)
}

func (m *MockStarRepository) Update(ctx context.Context, star models.Star) (*models.Star, error) {
	args := m.Called(ctx, star)
	s, _ := args.Get(0).(*models.Star)
	return s, args.Error(1)
}

func (m *MockStarRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStarRepository) BatchInsert(ctx context.Context, params []models.CreateStarParams) ([]models.Star, error) {
	args := m.Called(ctx, params)
	s, _ := args.Get(0).([]models.Star)
	return s, args.Error(1)
}

func (m *MockStarRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

var _ repo.StarRepository = (*MockStarRepository)(nil)

func sample() []models.Star {
	return []models.Star{
		{ID: 1, Name: "StarA", Distance: 10},
		{ID: 2, Name: "StarB", Distance: 5},
		{ID: 3, Name: "StarC", Distance: 15},
		{ID: 4, Name: "StarA", Distance: 10},
		{ID: 5, Name: "StarE", Distance: 5},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD
// ─────────────────────────────────────────────────────────────────────────────

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("GetByID", ctx, int64(1)).Return(&models.Star{ID: 1, Name: "Sol", Distance: 0}, nil)

	svc := service.NewStarService(r, zap.NewNop())
	star, err := svc.GetByID(ctx, 1)

	require.NoError(t, err)
	assert.Equal(t, "Sol", star.Name)
	r.AssertExpectations(t)
}

func TestGetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("GetByID", ctx, int64(7)).Return(nil, &db.DBError{Sentinel: db.ErrNotFound})

	svc := service.NewStarService(r, nil)
	_, err := svc.GetByID(ctx, 7)

	require.Error(t, err)
	assert.True(t, service.IsNotFound(err))
	assert.Equal(t, "Star with id 7 not found", err.Error())
}

func TestGetByID_StoreFailure(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("GetByID", ctx, int64(3)).Return(nil, errors.New("disk on fire"))

	svc := service.NewStarService(r, nil)
	_, err := svc.GetByID(ctx, 3)

	require.Error(t, err)
	assert.False(t, service.IsNotFound(err))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	params := models.CreateStarParams{Name: "Vega", Distance: 25}
	r := new(MockStarRepository)
	r.On("Insert", ctx, params).Return(&models.Star{ID: 11, Name: "Vega", Distance: 25}, nil)

	svc := service.NewStarService(r, nil)
	star, err := svc.Create(ctx, params)

	require.NoError(t, err)
	assert.Equal(t, int64(11), star.ID)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("GetByID", ctx, int64(4)).Return(&models.Star{ID: 4, Name: "Old", Distance: 1}, nil)
	r.On("Update", ctx, models.Star{ID: 4, Name: "New", Distance: 2}).
		Return(&models.Star{ID: 4, Name: "New", Distance: 2}, nil)

	svc := service.NewStarService(r, nil)
	star, err := svc.Update(ctx, 4, models.UpdateStarParams{Name: "New", Distance: 2})

	require.NoError(t, err)
	assert.Equal(t, models.Star{ID: 4, Name: "New", Distance: 2}, *star)
	r.AssertExpectations(t)
}

func TestUpdate_NotFound(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("GetByID", ctx, int64(9)).Return(nil, db.ErrNotFound)

	svc := service.NewStarService(r, nil)
	_, err := svc.Update(ctx, 9, models.UpdateStarParams{Name: "x"})

	assert.True(t, service.IsNotFound(err))
	r.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("Delete", ctx, int64(2)).Return(nil)
	r.On("Delete", ctx, int64(3)).Return(db.ErrNotFound)

	svc := service.NewStarService(r, nil)

	assert.NoError(t, svc.Delete(ctx, 2))
	err := svc.Delete(ctx, 3)
	assert.True(t, service.IsNotFound(err))
	assert.Equal(t, "Star with id 3 not found", err.Error())
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived queries
// ─────────────────────────────────────────────────────────────────────────────

func TestDerivedQueries_EmptyStore(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("FindAll", ctx).Return([]models.Star{}, nil)
	svc := service.NewStarService(r, nil)

	_, err := svc.Closest(ctx, 3)
	assert.True(t, service.IsNoDataAvailable(err))

	_, err = svc.CountByDistance(ctx)
	assert.True(t, service.IsNoDataAvailable(err))

	_, err = svc.Unique(ctx)
	assert.True(t, service.IsNoDataAvailable(err))
	assert.Equal(t, "List of stars is null or empty", err.Error())
}

func TestClosest(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("FindAll", ctx).Return(sample(), nil)
	svc := service.NewStarService(r, nil)

	stars, err := svc.Closest(ctx, 3)

	require.NoError(t, err)
	require.Len(t, stars, 3)
	assert.Equal(t, []int64{2, 5, 1}, []int64{stars[0].ID, stars[1].ID, stars[2].ID})
}

func TestCountByDistance(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("FindAll", ctx).Return(sample(), nil)
	svc := service.NewStarService(r, nil)

	counts, err := svc.CountByDistance(ctx)

	require.NoError(t, err)
	raw, err := json.Marshal(counts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"5":2,"10":2,"15":1}`, string(raw))
}

func TestUnique(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("FindAll", ctx).Return(sample(), nil)
	svc := service.NewStarService(r, nil)

	stars, err := svc.Unique(ctx)

	require.NoError(t, err)
	require.Len(t, stars, 4)
	assert.Equal(t, int64(4), stars[0].ID)
	assert.Equal(t, "StarB", stars[1].Name)
}

func TestDerivedQueries_StoreFailure(t *testing.T) {
	ctx := context.Background()
	r := new(MockStarRepository)
	r.On("FindAll", ctx).Return(nil, errors.New("connection reset"))
	svc := service.NewStarService(r, nil)

	_, err := svc.Closest(ctx, 1)

	require.Error(t, err)
	assert.False(t, service.IsNoDataAvailable(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Seed
// ─────────────────────────────────────────────────────────────────────────────

func TestSeed_WithoutTx(t *testing.T) {
	ctx := context.Background()
	params := []models.CreateStarParams{{Name: "Rigel", Distance: 860}}
	r := new(MockStarRepository)
	r.On("BatchInsert", ctx, params).Return([]models.Star{{ID: 1, Name: "Rigel", Distance: 860}}, nil)

	svc := service.NewStarService(r, nil)
	stars, err := svc.Seed(ctx, params)

	require.NoError(t, err)
	assert.Len(t, stars, 1)
}

func newSQLiteDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(db.Config{DSN: ":memory:", DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, migrations.Up(database, nil))
	return database
}

func TestSeed_WithTxRunner_Commits(t *testing.T) {
	ctx := context.Background()
	database := newSQLiteDB(t)
	svc := service.NewStarService(repo.NewStarRepo(database), nil,
		service.WithTxRunner(service.NewTxRunner(database)))

	stars, err := svc.Seed(ctx, []models.CreateStarParams{
		{Name: "Sol", Distance: 0},
		{Name: "Proxima", Distance: 4},
	})
	require.NoError(t, err)
	assert.Len(t, stars, 2)

	all, err := svc.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSeed_WithTxRunner_RollsBack(t *testing.T) {
	ctx := context.Background()
	database := newSQLiteDB(t)
	boom := errors.New("boom")
	runner := func(ctx context.Context, fn func(repo.StarRepository) error) error {
		return database.ExecTx(ctx, func(tx *db.Tx) error {
			if err := fn(repo.NewStarRepo(tx)); err != nil {
				return err
			}
			return boom
		})
	}
	svc := service.NewStarService(repo.NewStarRepo(database), nil, service.WithTxRunner(runner))

	_, err := svc.Seed(ctx, []models.CreateStarParams{{Name: "Sol", Distance: 0}})
	require.ErrorIs(t, err, boom)

	n, err := repo.NewStarRepo(database).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
