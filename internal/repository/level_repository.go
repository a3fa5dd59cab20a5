package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edupoint/rewards-api/internal/models"
)

// LevelRepository manages the XP level table.
type LevelRepository struct {
	db *sqlx.DB
}

// NewLevelRepository constructs the repository.
func NewLevelRepository(db *sqlx.DB) *LevelRepository {
	return &LevelRepository{db: db}
}

// List returns the level table ordered by min_xp ascending.
func (r *LevelRepository) List(ctx context.Context) ([]models.XPLevel, error) {
	const query = `SELECT id, name, min_xp, max_xp, created_at, updated_at FROM xp_levels ORDER BY min_xp ASC`
	var levels []models.XPLevel
	if err := r.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, fmt.Errorf("list xp levels: %w", err)
	}
	return levels, nil
}

// FindByID fetches one level.
func (r *LevelRepository) FindByID(ctx context.Context, id string) (*models.XPLevel, error) {
	const query = `SELECT id, name, min_xp, max_xp, created_at, updated_at FROM xp_levels WHERE id = $1`
	var level models.XPLevel
	if err := r.db.GetContext(ctx, &level, query, id); err != nil {
		return nil, err
	}
	return &level, nil
}

// Replace swaps the entire level table atomically. Level edits always arrive
// as a full table so contiguity can be validated against the final shape.
func (r *LevelRepository) Replace(ctx context.Context, levels []models.XPLevel) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin level replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM xp_levels"); err != nil {
		return fmt.Errorf("clear xp levels: %w", err)
	}

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO xp_levels (id, name, min_xp, max_xp, created_at, updated_at)
	VALUES (:id, :name, :min_xp, :max_xp, :created_at, :updated_at)`
	for i := range levels {
		if levels[i].ID == "" {
			levels[i].ID = uuid.NewString()
		}
		if levels[i].CreatedAt.IsZero() {
			levels[i].CreatedAt = now
		}
		levels[i].UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, insertQuery, levels[i]); err != nil {
			return fmt.Errorf("insert xp level: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit level replace: %w", err)
	}
	return nil
}
