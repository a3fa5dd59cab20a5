package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type rewardRuleRepository interface {
	FindByID(ctx context.Context, id string) (*models.RewardRule, error)
	List(ctx context.Context, filter models.RewardRuleFilter) ([]models.RewardRule, int, error)
	Create(ctx context.Context, rule *models.RewardRule) error
	Update(ctx context.Context, rule *models.RewardRule) error
	Deactivate(ctx context.Context, id string) error
}

// RewardRuleService manages the attitude / XP rule catalog.
type RewardRuleService struct {
	repo      rewardRuleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRewardRuleService constructs the service.
func NewRewardRuleService(repo rewardRuleRepository, validate *validator.Validate, logger *zap.Logger) *RewardRuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardRuleService{repo: repo, validator: validate, logger: logger}
}

// UpsertRuleRequest is the create/update payload for a catalog entry.
type UpsertRuleRequest struct {
	Name       string `json:"name" validate:"required"`
	Source     string `json:"source" validate:"required,oneof=ATTITUDE XP_RULE"`
	Kind       string `json:"kind" validate:"required,oneof=POSITIVE NEGATIVE"`
	RewardType string `json:"reward_type" validate:"required,oneof=XP ATOMS BOTH"`
	XPValue    int64  `json:"xp_value" validate:"gte=0"`
	AtomsValue int64  `json:"atoms_value" validate:"gte=0"`
	Active     *bool  `json:"active"`
}

func (s *RewardRuleService) fromRequest(req UpsertRuleRequest) (*models.RewardRule, error) {
	rule := &models.RewardRule{
		Name:       req.Name,
		Source:     models.RuleSource(req.Source),
		Kind:       models.RuleKind(req.Kind),
		RewardType: models.RewardType(req.RewardType),
		XPValue:    req.XPValue,
		AtomsValue: req.AtomsValue,
		Active:     true,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if rule.Source == models.RuleSourceXPRule {
		if rule.RewardType != models.RewardTypeXP || rule.Kind != models.RuleKindPositive {
			return nil, appErrors.Clone(appErrors.ErrValidation, "xp rules are always positive and grant XP only")
		}
	}
	if rule.RewardType.IncludesXP() && rule.XPValue == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "xp_value must be positive for XP rewards")
	}
	if rule.RewardType.IncludesAtoms() && rule.AtomsValue == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "atoms_value must be positive for Atoms rewards")
	}
	// Values for the ledger the rule does not touch are ignored, not errors.
	if rule.RewardType == models.RewardTypeXP {
		rule.AtomsValue = 0
	}
	if rule.RewardType == models.RewardTypeAtoms {
		rule.XPValue = 0
	}
	return rule, nil
}

// Get fetches one catalog entry.
func (s *RewardRuleService) Get(ctx context.Context, id string) (*models.RewardRule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRuleNotFound, fmt.Sprintf("reward rule %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reward rule")
	}
	return rule, nil
}

// List returns catalog entries with pagination.
func (s *RewardRuleService) List(ctx context.Context, filter models.RewardRuleFilter) ([]models.RewardRule, *models.Pagination, error) {
	rules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reward rules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return rules, models.NewPagination(page, size, total), nil
}

// Create adds a catalog entry.
func (s *RewardRuleService) Create(ctx context.Context, req UpsertRuleRequest) (*models.RewardRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule payload")
	}
	rule, err := s.fromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reward rule")
	}
	return rule, nil
}

// Update edits a catalog entry. History is safe: applications snapshot the
// rule's name and values into the ledger at apply time.
func (s *RewardRuleService) Update(ctx context.Context, id string, req UpsertRuleRequest) (*models.RewardRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := s.fromRequest(req)
	if err != nil {
		return nil, err
	}
	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reward rule")
	}
	return rule, nil
}

// Deactivate retires a rule from the catalog without touching history.
func (s *RewardRuleService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate reward rule")
	}
	return nil
}
