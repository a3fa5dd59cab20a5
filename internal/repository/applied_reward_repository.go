package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

// AppliedRewardRepository persists the audit trail of rule applications. The
// idempotency_key column carries a unique index; it is the durable guard
// against double-crediting a retried request.
type AppliedRewardRepository struct {
	db *sqlx.DB
}

// NewAppliedRewardRepository constructs the repository.
func NewAppliedRewardRepository(db *sqlx.DB) *AppliedRewardRepository {
	return &AppliedRewardRepository{db: db}
}

// Create inserts a new application record. A duplicate idempotency key maps
// to ErrConflict so the caller can fetch and return the prior application.
func (r *AppliedRewardRepository) Create(ctx context.Context, reward *models.AppliedReward) error {
	if reward.ID == "" {
		reward.ID = uuid.NewString()
	}
	if reward.Status == "" {
		reward.Status = models.AppliedStatusPending
	}
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO applied_rewards (id, student_id, rule_id, applied_by, notes, idempotency_key, status, failure_code, created_at)
	VALUES (:id, :student_id, :rule_id, :applied_by, :notes, :idempotency_key, :status, :failure_code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reward); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return appErrors.Clone(appErrors.ErrConflict, "reward already applied for this idempotency key")
		}
		return fmt.Errorf("create applied reward: %w", err)
	}
	return nil
}

// FindByIdempotencyKey returns the prior application for a key, or nil.
func (r *AppliedRewardRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.AppliedReward, error) {
	const query = `SELECT id, student_id, rule_id, applied_by, notes, idempotency_key, status, failure_code, created_at
	FROM applied_rewards WHERE idempotency_key = $1`
	var reward models.AppliedReward
	if err := r.db.GetContext(ctx, &reward, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find applied reward: %w", err)
	}
	return &reward, nil
}

// UpdateStatus moves an application to a terminal state. Terminal rows are
// never reopened; retries create a new application.
func (r *AppliedRewardRepository) UpdateStatus(ctx context.Context, id string, status models.AppliedRewardStatus, failureCode *string) error {
	const query = `UPDATE applied_rewards SET status = $1, failure_code = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, status, failureCode, id); err != nil {
		return fmt.Errorf("update applied reward status: %w", err)
	}
	return nil
}

// List returns application history matching the filter, newest first.
func (r *AppliedRewardRepository) List(ctx context.Context, filter models.AppliedRewardFilter) ([]models.AppliedReward, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.RuleID != "" {
		args = append(args, filter.RuleID)
		where = append(where, fmt.Sprintf("rule_id = $%d", len(args)))
	}
	if filter.AppliedBy != "" {
		args = append(args, filter.AppliedBy)
		where = append(where, fmt.Sprintf("applied_by = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, rule_id, applied_by, notes, idempotency_key, status, failure_code, created_at
	FROM applied_rewards WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var rewards []models.AppliedReward
	if err := r.db.SelectContext(ctx, &rewards, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applied rewards: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM applied_rewards WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applied rewards: %w", err)
	}
	return rewards, total, nil
}
