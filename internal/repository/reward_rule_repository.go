package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edupoint/rewards-api/internal/models"
)

// RewardRuleRepository manages the attitude / XP rule catalog.
type RewardRuleRepository struct {
	db *sqlx.DB
}

// NewRewardRuleRepository constructs the repository.
func NewRewardRuleRepository(db *sqlx.DB) *RewardRuleRepository {
	return &RewardRuleRepository{db: db}
}

// FindByID fetches a rule by identifier.
func (r *RewardRuleRepository) FindByID(ctx context.Context, id string) (*models.RewardRule, error) {
	const query = `SELECT id, name, source, kind, reward_type, xp_value, atoms_value, active, created_at, updated_at
	FROM reward_rules WHERE id = $1`
	var rule models.RewardRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		return nil, err
	}
	return &rule, nil
}

// List returns catalog entries matching the filter.
func (r *RewardRuleRepository) List(ctx context.Context, filter models.RewardRuleFilter) ([]models.RewardRule, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Source != nil {
		args = append(args, *filter.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.RewardType != nil {
		args = append(args, *filter.RewardType)
		where = append(where, fmt.Sprintf("reward_type = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
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

	query := fmt.Sprintf(`SELECT id, name, source, kind, reward_type, xp_value, atoms_value, active, created_at, updated_at
	FROM reward_rules WHERE %s ORDER BY name ASC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var rules []models.RewardRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reward rules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM reward_rules WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reward rules: %w", err)
	}
	return rules, total, nil
}

// Create inserts a new catalog entry.
func (r *RewardRuleRepository) Create(ctx context.Context, rule *models.RewardRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	const query = `INSERT INTO reward_rules (id, name, source, kind, reward_type, xp_value, atoms_value, active, created_at, updated_at)
	VALUES (:id, :name, :source, :kind, :reward_type, :xp_value, :atoms_value, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create reward rule: %w", err)
	}
	return nil
}

// Update modifies a catalog entry. Historical transactions are unaffected:
// amounts and descriptions were snapshotted at apply time.
func (r *RewardRuleRepository) Update(ctx context.Context, rule *models.RewardRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE reward_rules SET name = :name, source = :source, kind = :kind, reward_type = :reward_type,
	xp_value = :xp_value, atoms_value = :atoms_value, active = :active, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("update reward rule: %w", err)
	}
	return nil
}

// Deactivate soft-disables a rule. Rules referenced by transactions are never
// hard-deleted.
func (r *RewardRuleRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE reward_rules SET active = false, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate reward rule: %w", err)
	}
	return nil
}
