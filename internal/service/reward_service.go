package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/internal/repository"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type rewardRuleReader interface {
	FindByID(ctx context.Context, id string) (*models.RewardRule, error)
}

type appliedRewardRepository interface {
	Create(ctx context.Context, reward *models.AppliedReward) error
	FindByIdempotencyKey(ctx context.Context, key string) (*models.AppliedReward, error)
	UpdateStatus(ctx context.Context, id string, status models.AppliedRewardStatus, failureCode *string) error
	List(ctx context.Context, filter models.AppliedRewardFilter) ([]models.AppliedReward, int, error)
}

type rewardLedger interface {
	AppendTransaction(ctx context.Context, params repository.AppendTransactionParams) (*models.LedgerTransaction, error)
	GetBalance(ctx context.Context, studentID string, currency models.Currency) (int64, error)
	SetLevel(ctx context.Context, studentID string, levelID *string) error
}

type levelResolver interface {
	Resolve(ctx context.Context, xpTotal int64) (*models.XPLevel, error)
}

type idempotencyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RewardConfig tunes batch limits and duplicate detection.
type RewardConfig struct {
	MaxBatchSize      int
	IdempotencyTTL    time.Duration
	IdempotencyWindow time.Duration
}

// RewardService applies catalog rules to students, fanning each application
// out into ledger transactions and a level update. Students in a batch are
// independent atomic units: one student's failure never rolls back another's
// reward.
type RewardService struct {
	rules     rewardRuleReader
	applied   appliedRewardRepository
	ledger    rewardLedger
	levels    levelResolver
	guard     idempotencyGuard
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    RewardConfig
	now       func() time.Time
}

// NewRewardService constructs the service.
func NewRewardService(rules rewardRuleReader, applied appliedRewardRepository, ledger rewardLedger, levels levelResolver, guard idempotencyGuard, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config RewardConfig) *RewardService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 100
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = 24 * time.Hour
	}
	if config.IdempotencyWindow <= 0 {
		config.IdempotencyWindow = 30 * time.Second
	}
	return &RewardService{
		rules:     rules,
		applied:   applied,
		ledger:    ledger,
		levels:    levels,
		guard:     guard,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ApplyRuleRequest awards one rule to a batch of students.
type ApplyRuleRequest struct {
	RuleID         string   `json:"rule_id" validate:"required"`
	StudentIDs     []string `json:"student_ids" validate:"required,min=1,dive,required"`
	Notes          string   `json:"notes"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// StudentApplicationResult is the per-student outcome within a batch.
type StudentApplicationResult struct {
	StudentID          string                     `json:"student_id"`
	AppliedRewardID    string                     `json:"applied_reward_id,omitempty"`
	Status             models.AppliedRewardStatus `json:"status"`
	XPTransactionID    string                     `json:"xp_transaction_id,omitempty"`
	AtomsTransactionID string                     `json:"atoms_transaction_id,omitempty"`
	LevelID            *string                    `json:"level_id,omitempty"`
	Duplicate          bool                       `json:"duplicate,omitempty"`
	ErrorCode          string                     `json:"error_code,omitempty"`
	ErrorMessage       string                     `json:"error_message,omitempty"`
}

// ApplyRuleResult summarises a batch. Partial failure is a first-class
// outcome; callers surface the per-student breakdown.
type ApplyRuleResult struct {
	RuleID       string                     `json:"rule_id"`
	SuccessCount int                        `json:"success_count"`
	Results      []StudentApplicationResult `json:"results"`
}

// ApplyRule loads the rule once and applies it to each student in turn. A
// missing rule fails the whole batch; any later failure is recorded against
// its student and the batch proceeds.
func (s *RewardService) ApplyRule(ctx context.Context, req ApplyRuleRequest, actorID string) (*ApplyRuleResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid apply payload")
	}
	if len(req.StudentIDs) > s.config.MaxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("batch exceeds %d students", s.config.MaxBatchSize))
	}

	rule, err := s.rules.FindByID(ctx, req.RuleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrRuleNotFound, fmt.Sprintf("reward rule %s not found", req.RuleID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reward rule")
	}
	if !rule.Active {
		return nil, appErrors.Clone(appErrors.ErrRuleNotFound, fmt.Sprintf("reward rule %s is inactive", req.RuleID))
	}

	result := &ApplyRuleResult{RuleID: rule.ID, Results: make([]StudentApplicationResult, 0, len(req.StudentIDs))}
	for _, studentID := range req.StudentIDs {
		outcome := s.applyToStudent(ctx, rule, studentID, actorID, req.Notes, req.IdempotencyKey)
		if outcome.Status == models.AppliedStatusComplete && !outcome.Duplicate {
			result.SuccessCount++
		}
		result.Results = append(result.Results, outcome)
	}

	s.logger.Info("rule applied",
		zap.String("rule_id", rule.ID),
		zap.String("actor_id", actorID),
		zap.Int("students", len(req.StudentIDs)),
		zap.Int("succeeded", result.SuccessCount))
	return result, nil
}

// applyToStudent runs one student's application through the
// PENDING -> (XP) -> (ATOMS) -> COMPLETE/FAILED lifecycle.
func (s *RewardService) applyToStudent(ctx context.Context, rule *models.RewardRule, studentID, actorID, notes, clientKey string) StudentApplicationResult {
	outcome := StudentApplicationResult{StudentID: studentID}

	key := s.idempotencyKeyFor(rule.ID, studentID, actorID, clientKey)
	acquired, err := s.guard.Acquire(ctx, key, s.config.IdempotencyTTL)
	if err == nil && !acquired {
		return s.duplicateOutcome(ctx, key, studentID)
	}

	reward := &models.AppliedReward{
		StudentID:      studentID,
		RuleID:         rule.ID,
		AppliedBy:      actorID,
		Notes:          notes,
		IdempotencyKey: key,
		Status:         models.AppliedStatusPending,
		CreatedAt:      s.now(),
	}
	if err := s.applied.Create(ctx, reward); err != nil {
		if appErrors.Is(err, appErrors.ErrConflict) {
			return s.duplicateOutcome(ctx, key, studentID)
		}
		return s.failOutcome(ctx, outcome, reward, appErrors.FromError(err))
	}
	outcome.AppliedRewardID = reward.ID

	if rule.RewardType.IncludesXP() && rule.XPValue != 0 {
		txn, levelID, err := s.applyXP(ctx, rule, studentID, actorID, reward.ID)
		if err != nil {
			return s.failOutcome(ctx, outcome, reward, appErrors.FromError(err))
		}
		if txn != nil {
			outcome.XPTransactionID = txn.ID
		}
		outcome.LevelID = levelID
	}

	if rule.RewardType.IncludesAtoms() && rule.AtomsValue != 0 {
		amount := rule.AtomsValue
		if rule.Kind == models.RuleKindNegative {
			amount = -amount
		}
		txn, err := s.ledger.AppendTransaction(ctx, repository.AppendTransactionParams{
			StudentID:     studentID,
			Currency:      models.CurrencyAtoms,
			Amount:        amount,
			ReferenceType: rule.Source.ReferenceType(),
			ReferenceID:   reward.ID,
			CreatedBy:     actorID,
			Description:   rule.Name,
		})
		if err != nil {
			s.metrics.CountLedgerRejection(models.CurrencyAtoms)
			return s.failOutcome(ctx, outcome, reward, appErrors.FromError(err))
		}
		outcome.AtomsTransactionID = txn.ID
		s.metrics.CountLedgerTransaction(models.CurrencyAtoms, rule.Source.ReferenceType())
	}

	if err := s.applied.UpdateStatus(ctx, reward.ID, models.AppliedStatusComplete, nil); err != nil {
		s.logger.Warn("failed to mark applied reward complete", zap.String("applied_reward_id", reward.ID), zap.Error(err))
	}
	outcome.Status = models.AppliedStatusComplete
	return outcome
}

// applyXP appends the XP transaction and refreshes the student's level.
// Demerits clamp at zero inside the repository's account lock: the debit
// shrinks to the balance available at commit time, and a fully clamped
// (zero) delta writes no transaction at all.
func (s *RewardService) applyXP(ctx context.Context, rule *models.RewardRule, studentID, actorID, rewardID string) (*models.LedgerTransaction, *string, error) {
	amount := rule.XPValue
	clamp := false
	if rule.Kind == models.RuleKindNegative {
		amount = -amount
		clamp = true
	}

	txn, err := s.ledger.AppendTransaction(ctx, repository.AppendTransactionParams{
		StudentID:      studentID,
		Currency:       models.CurrencyXP,
		Amount:         amount,
		ReferenceType:  rule.Source.ReferenceType(),
		ReferenceID:    rewardID,
		CreatedBy:      actorID,
		Description:    rule.Name,
		ClampToBalance: clamp,
	})
	if err != nil {
		s.metrics.CountLedgerRejection(models.CurrencyXP)
		return nil, nil, err
	}
	if txn != nil {
		s.metrics.CountLedgerTransaction(models.CurrencyXP, rule.Source.ReferenceType())
	}

	total, err := s.ledger.GetBalance(ctx, studentID, models.CurrencyXP)
	if err != nil {
		return txn, nil, err
	}
	level, err := s.levels.Resolve(ctx, total)
	if err != nil {
		return txn, nil, err
	}
	var levelID *string
	if level != nil {
		levelID = &level.ID
	}
	if err := s.ledger.SetLevel(ctx, studentID, levelID); err != nil {
		return txn, levelID, err
	}
	return txn, levelID, nil
}

// duplicateOutcome reports the prior application for a repeated key without
// crediting again.
func (s *RewardService) duplicateOutcome(ctx context.Context, key, studentID string) StudentApplicationResult {
	outcome := StudentApplicationResult{StudentID: studentID, Duplicate: true}
	prior, err := s.applied.FindByIdempotencyKey(ctx, key)
	if err != nil || prior == nil {
		// In-flight duplicate: the first submission holds the Redis claim but
		// has not committed yet.
		outcome.Status = models.AppliedStatusPending
		return outcome
	}
	outcome.AppliedRewardID = prior.ID
	outcome.Status = prior.Status
	if prior.FailureCode != nil {
		outcome.ErrorCode = *prior.FailureCode
	}
	return outcome
}

// failOutcome records a terminal failure on the application row and releases
// the fast-path claim. The row keeps its idempotency key, so a same-key
// retry replays the recorded failure instead of applying; a corrected retry
// needs a fresh client key, or the next auto-key window.
func (s *RewardService) failOutcome(ctx context.Context, outcome StudentApplicationResult, reward *models.AppliedReward, appErr *appErrors.Error) StudentApplicationResult {
	outcome.Status = models.AppliedStatusFailed
	outcome.ErrorCode = appErr.Code
	outcome.ErrorMessage = appErr.Message
	if reward.ID != "" {
		code := appErr.Code
		if err := s.applied.UpdateStatus(ctx, reward.ID, models.AppliedStatusFailed, &code); err != nil {
			s.logger.Warn("failed to mark applied reward failed", zap.String("applied_reward_id", reward.ID), zap.Error(err))
		}
	}
	if err := s.guard.Release(ctx, reward.IdempotencyKey); err != nil {
		s.logger.Warn("failed to release idempotency claim", zap.Error(err))
	}
	return outcome
}

// idempotencyKeyFor derives the duplicate-detection key. Client-supplied keys
// are scoped per student so one batch key covers the whole class. Without a
// client key, identical submissions inside the configured window collapse
// onto the same derived key.
func (s *RewardService) idempotencyKeyFor(ruleID, studentID, actorID, clientKey string) string {
	var raw string
	if clientKey != "" {
		raw = fmt.Sprintf("client|%s|%s", clientKey, studentID)
	} else {
		bucket := s.now().Truncate(s.config.IdempotencyWindow).Unix()
		raw = fmt.Sprintf("auto|%s|%s|%s|%d", ruleID, studentID, actorID, bucket)
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ListApplications returns the audit trail of rule applications.
func (s *RewardService) ListApplications(ctx context.Context, filter models.AppliedRewardFilter) ([]models.AppliedReward, *models.Pagination, error) {
	rewards, total, err := s.applied.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applied rewards")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return rewards, models.NewPagination(page, size, total), nil
}
