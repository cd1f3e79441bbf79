// Package service orchestrates the star store and the query engine. It owns
// the "no data available" policy for derived queries and translates store
// absence into service errors.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/db"
	"github.com/dsuszek/dev-task/models"
	"github.com/dsuszek/dev-task/query"
	"github.com/dsuszek/dev-task/repo"
)

// TxRunner runs fn against a repository bound to a single transaction and
// commits only when fn returns nil.
type TxRunner func(ctx context.Context, fn func(repo.StarRepository) error) error

// Option configures a StarService.
type Option func(*StarService)

// WithTxRunner makes Seed all-or-nothing.
func WithTxRunner(run TxRunner) Option {
	return func(s *StarService) { s.runTx = run }
}

// StarService implements the star use cases.
type StarService struct {
	repo   repo.StarRepository
	runTx  TxRunner
	logger *zap.Logger
}

// NewStarService returns a StarService backed by r. A nil logger is replaced
// by a no-op logger.
func NewStarService(r repo.StarRepository, logger *zap.Logger, opts ...Option) *StarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StarService{repo: r, logger: logger.Named("star_service")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTxRunner binds a TxRunner to database, wrapping each call in db.ExecTx.
func NewTxRunner(database *db.DB) TxRunner {
	return func(ctx context.Context, fn func(repo.StarRepository) error) error {
		return database.ExecTx(ctx, func(tx *db.Tx) error {
			return fn(repo.NewStarRepo(tx))
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns the star with id.
func (s *StarService) GetByID(ctx context.Context, id int64) (*models.Star, error) {
	star, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(err, id, "get")
	}
	return star, nil
}

// Create persists a new star and returns it with its assigned id.
func (s *StarService) Create(ctx context.Context, params models.CreateStarParams) (*models.Star, error) {
	star, err := s.repo.Insert(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("service: create star: %w", err)
	}
	s.logger.Debug("star created", zap.Int64("id", star.ID), zap.String("name", star.Name))
	return star, nil
}

// Update overwrites name and distance of the star with id.
func (s *StarService) Update(ctx context.Context, id int64, params models.UpdateStarParams) (*models.Star, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeErr(err, id, "update")
	}

	current.Name = params.Name
	current.Distance = params.Distance
	updated, err := s.repo.Update(ctx, *current)
	if err != nil {
		return nil, s.storeErr(err, id, "update")
	}
	return updated, nil
}

// Delete removes the star with id.
func (s *StarService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.storeErr(err, id, "delete")
	}
	s.logger.Debug("star deleted", zap.Int64("id", id))
	return nil
}

// FindAll returns every star in insertion order.
func (s *StarService) FindAll(ctx context.Context) ([]models.Star, error) {
	stars, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list stars: %w", err)
	}
	return stars, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Derived queries
// ─────────────────────────────────────────────────────────────────────────────

// Closest returns the n stars nearest to the observer.
func (s *StarService) Closest(ctx context.Context, n int) ([]models.Star, error) {
	stars, err := s.nonEmpty(ctx)
	if err != nil {
		return nil, err
	}
	return query.NearestN(stars, n), nil
}

// CountByDistance returns how many stars sit at each distance.
func (s *StarService) CountByDistance(ctx context.Context) (*query.DistanceCounts, error) {
	stars, err := s.nonEmpty(ctx)
	if err != nil {
		return nil, err
	}
	return query.CountByDistance(stars), nil
}

// Unique returns one star per name.
func (s *StarService) Unique(ctx context.Context) ([]models.Star, error) {
	stars, err := s.nonEmpty(ctx)
	if err != nil {
		return nil, err
	}
	return query.DedupeByName(stars), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Seed
// ─────────────────────────────────────────────────────────────────────────────

// Seed inserts params as one batch. With a TxRunner configured the batch is
// all-or-nothing.
func (s *StarService) Seed(ctx context.Context, params []models.CreateStarParams) ([]models.Star, error) {
	var inserted []models.Star
	insert := func(r repo.StarRepository) error {
		var err error
		inserted, err = r.BatchInsert(ctx, params)
		return err
	}

	var err error
	if s.runTx != nil {
		err = s.runTx(ctx, insert)
	} else {
		err = insert(s.repo)
	}
	if err != nil {
		return nil, fmt.Errorf("service: seed: %w", err)
	}
	s.logger.Info("stars seeded", zap.Int("count", len(inserted)))
	return inserted, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func (s *StarService) nonEmpty(ctx context.Context) ([]models.Star, error) {
	stars, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(stars) == 0 {
		return nil, noData()
	}
	return stars, nil
}

func (s *StarService) storeErr(err error, id int64, op string) error {
	if db.IsNotFound(err) {
		return notFound(id)
	}
	return fmt.Errorf("service: %s star %d: %w", op, id, err)
}
