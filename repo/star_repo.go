package repo

import (
	"context"
	"fmt"

	"github.com/dsuszek/dev-task/db"
	"github.com/dsuszek/dev-task/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// StarRepository
// ─────────────────────────────────────────────────────────────────────────────

// StarRepository is the star store: id-keyed CRUD plus a full scan.
// Lookups of a missing id return db.ErrNotFound.
type StarRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Star, error)
	FindAll(ctx context.Context) ([]models.Star, error)
	Insert(ctx context.Context, params models.CreateStarParams) (*models.Star, error)
	Update(ctx context.Context, star models.Star) (*models.Star, error)
	Delete(ctx context.Context, id int64) error
	BatchInsert(ctx context.Context, params []models.CreateStarParams) ([]models.Star, error)
	Count(ctx context.Context) (int64, error)
}

// starRepo is the production implementation backed by a db.Querier.
type starRepo struct {
	q db.Querier
}

// NewStarRepo returns a StarRepository backed by q.
// q can be a *db.DB or *db.Tx.
func NewStarRepo(q db.Querier) StarRepository {
	return &starRepo{q: q}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQL
// ─────────────────────────────────────────────────────────────────────────────

// Placeholders are written as '?' and rebound by the db layer.
const (
	sqlInsertStar = `
		INSERT INTO stars (name, distance)
		VALUES (?, ?)`

	sqlInsertStarReturning = sqlInsertStar + `
		RETURNING id, name, distance`

	sqlGetStarByID = `
		SELECT id, name, distance
		FROM   stars
		WHERE  id = ?`

	// Ordering by id keeps scan order equal to insertion order, which the
	// dedupe query relies on.
	sqlListStars = `
		SELECT id, name, distance
		FROM   stars
		ORDER  BY id`

	sqlUpdateStar = `
		UPDATE stars
		SET    name = ?, distance = ?
		WHERE  id = ?`

	sqlDeleteStar = `
		DELETE FROM stars WHERE id = ?`

	sqlCountStars = `
		SELECT COUNT(*) FROM stars`
)

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a single star by primary key.
func (r *starRepo) GetByID(ctx context.Context, id int64) (*models.Star, error) {
	return scanStar(r.q.QueryRow(ctx, sqlGetStarByID, id))
}

// FindAll returns every star ordered by id. An empty table yields an empty,
// non-nil slice.
func (r *starRepo) FindAll(ctx context.Context) ([]models.Star, error) {
	rows, err := r.q.Query(ctx, sqlListStars)
	if err != nil {
		return nil, fmt.Errorf("repo/star: list: %w", err)
	}
	defer rows.Close()

	stars := make([]models.Star, 0)
	for rows.Next() {
		var s models.Star
		if err := rows.Scan(&s.ID, &s.Name, &s.Distance); err != nil {
			return nil, fmt.Errorf("repo/star: scan: %w", err)
		}
		stars = append(stars, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo/star: rows: %w", err)
	}
	return stars, nil
}

// Count returns the total number of stars.
func (r *starRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRow(ctx, sqlCountStars).Scan(&n); err != nil {
		return 0, fmt.Errorf("repo/star: count: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Insert creates a new star and returns it with the store-assigned id.
func (r *starRepo) Insert(ctx context.Context, params models.CreateStarParams) (*models.Star, error) {
	if r.q.Dialect().Returning {
		return scanStar(r.q.QueryRow(ctx, sqlInsertStarReturning, params.Name, params.Distance))
	}

	res, err := r.q.Exec(ctx, sqlInsertStar, params.Name, params.Distance)
	if err != nil {
		return nil, fmt.Errorf("repo/star: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("repo/star: last insert id: %w", err)
	}
	return &models.Star{ID: id, Name: params.Name, Distance: params.Distance}, nil
}

// Update overwrites name and distance of the star with star.ID and returns
// the stored record. The row is re-read instead of trusting RowsAffected,
// which MySQL reports as zero when the values did not change.
func (r *starRepo) Update(ctx context.Context, star models.Star) (*models.Star, error) {
	if _, err := r.q.Exec(ctx, sqlUpdateStar, star.Name, star.Distance, star.ID); err != nil {
		return nil, fmt.Errorf("repo/star: update: %w", err)
	}
	return r.GetByID(ctx, star.ID)
}

// Delete removes a star by id.
// Returns db.ErrNotFound if no row was deleted.
func (r *starRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.q.Exec(ctx, sqlDeleteStar, id)
	if err != nil {
		return fmt.Errorf("repo/star: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo/star: delete: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// BatchInsert inserts stars through one prepared statement. Wrap the
// repository in a transaction (db.ExecTx) to make the batch all-or-nothing.
func (r *starRepo) BatchInsert(ctx context.Context, params []models.CreateStarParams) ([]models.Star, error) {
	if len(params) == 0 {
		return []models.Star{}, nil
	}

	returning := r.q.Dialect().Returning
	query := sqlInsertStar
	if returning {
		query = sqlInsertStarReturning
	}

	stmt, err := r.q.Prepare(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repo/star: prepare: %w", err)
	}
	defer stmt.Close()

	stars := make([]models.Star, 0, len(params))
	for _, p := range params {
		if returning {
			s, err := scanStar(stmt.QueryRow(ctx, p.Name, p.Distance))
			if err != nil {
				return nil, err
			}
			stars = append(stars, *s)
			continue
		}

		res, err := stmt.Exec(ctx, p.Name, p.Distance)
		if err != nil {
			return nil, fmt.Errorf("repo/star: batch insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("repo/star: last insert id: %w", err)
		}
		stars = append(stars, models.Star{ID: id, Name: p.Name, Distance: p.Distance})
	}
	return stars, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// scanStar
// ─────────────────────────────────────────────────────────────────────────────

func scanStar(row *db.Row) (*models.Star, error) {
	s := &models.Star{}
	if err := row.Scan(&s.ID, &s.Name, &s.Distance); err != nil {
		return nil, fmt.Errorf("repo/star: %w", err)
	}
	return s, nil
}

var _ StarRepository = (*starRepo)(nil)
