package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/internal/repository"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type ledgerRepository interface {
	AppendTransaction(ctx context.Context, params repository.AppendTransactionParams) (*models.LedgerTransaction, error)
	GetBalance(ctx context.Context, studentID string, currency models.Currency) (int64, error)
	GetAccount(ctx context.Context, studentID string, currency models.Currency) (*models.StudentCurrencyAccount, error)
	ReplayBalance(ctx context.Context, studentID string, currency models.Currency) (int64, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.LedgerTransaction, int, error)
}

// LedgerConfig bounds read pagination.
type LedgerConfig struct {
	MaxPageSize int
}

// LedgerService fronts the currency ledger for read paths and manual
// adjustments. Rule application and store debits have their own services; all
// three funnel writes through the repository's atomic append.
type LedgerService struct {
	repo        ledgerRepository
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	maxPageSize int
}

// NewLedgerService constructs the service.
func NewLedgerService(repo ledgerRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg LedgerConfig) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	return &LedgerService{repo: repo, metrics: metrics, validator: validate, logger: logger, maxPageSize: cfg.MaxPageSize}
}

// GetBalance returns the cached balance; students without an account read 0.
func (s *LedgerService) GetBalance(ctx context.Context, studentID string, currency models.Currency) (int64, error) {
	if !currency.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown currency")
	}
	balance, err := s.repo.GetBalance(ctx, studentID, currency)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read balance")
	}
	return balance, nil
}

// Balances returns both currency balances plus the resolved level id.
func (s *LedgerService) Balances(ctx context.Context, studentID string) ([]models.StudentBalance, error) {
	out := make([]models.StudentBalance, 0, 2)
	for _, currency := range []models.Currency{models.CurrencyXP, models.CurrencyAtoms} {
		account, err := s.repo.GetAccount(ctx, studentID, currency)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read account")
		}
		balance := models.StudentBalance{Currency: currency}
		if account != nil {
			balance.Balance = account.Balance
			balance.LevelID = account.LevelID
		}
		out = append(out, balance)
	}
	return out, nil
}

// StudentSummary bundles balances with the most recent ledger activity.
type StudentSummary struct {
	StudentID string                     `json:"student_id"`
	Balances  []models.StudentBalance    `json:"balances"`
	Recent    []models.LedgerTransaction `json:"recent_transactions"`
}

// Summary returns both currency balances plus the ten most recent transactions.
func (s *LedgerService) Summary(ctx context.Context, studentID string) (*StudentSummary, error) {
	balances, err := s.Balances(ctx, studentID)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.repo.ListTransactions(ctx, models.TransactionFilter{StudentID: studentID, Page: 1, PageSize: 10})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transactions")
	}
	return &StudentSummary{StudentID: studentID, Balances: balances, Recent: recent}, nil
}

// ListTransactions returns paginated ledger history.
func (s *LedgerService) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.LedgerTransaction, *models.Pagination, error) {
	if filter.StudentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	txns, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transactions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > s.maxPageSize {
		size = 50
	}
	return txns, models.NewPagination(page, size, total), nil
}

// ManualAdjustmentRequest credits or debits a student outside the rule and
// store paths. This is the explicit correction mechanism: refunds and
// reversals are offsetting entries, never rewritten history.
type ManualAdjustmentRequest struct {
	StudentID   string          `json:"student_id" validate:"required"`
	Currency    models.Currency `json:"currency" validate:"required"`
	Amount      int64           `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"required"`
	ReferenceID string          `json:"reference_id"`
}

// ApplyAdjustment writes one MANUAL_ADJUSTMENT transaction.
func (s *LedgerService) ApplyAdjustment(ctx context.Context, req ManualAdjustmentRequest, actorID string) (*models.LedgerTransaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid adjustment payload")
	}
	if !req.Currency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown currency")
	}

	referenceID := req.ReferenceID
	if referenceID == "" {
		referenceID = actorID
	}
	txn, err := s.repo.AppendTransaction(ctx, repository.AppendTransactionParams{
		StudentID:     req.StudentID,
		Currency:      req.Currency,
		Amount:        req.Amount,
		ReferenceType: models.ReferenceManualAdjustment,
		ReferenceID:   referenceID,
		CreatedBy:     actorID,
		Description:   req.Description,
	})
	if err != nil {
		s.metrics.CountLedgerRejection(req.Currency)
		return nil, err
	}

	s.metrics.CountLedgerTransaction(req.Currency, models.ReferenceManualAdjustment)
	s.logger.Info("manual adjustment applied",
		zap.String("student_id", req.StudentID),
		zap.String("currency", string(req.Currency)),
		zap.Int64("amount", req.Amount),
		zap.String("actor_id", actorID))
	return txn, nil
}

// Reconcile replays one account and reports drift between the cached and
// replayed balances.
func (s *LedgerService) Reconcile(ctx context.Context, studentID string, currency models.Currency) (*models.ReconciliationDrift, error) {
	replayed, err := s.repo.ReplayBalance(ctx, studentID, currency)
	if err != nil {
		return nil, err
	}
	cached, err := s.repo.GetBalance(ctx, studentID, currency)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read balance")
	}
	if cached == replayed {
		return nil, nil
	}
	drift := &models.ReconciliationDrift{StudentID: studentID, Currency: currency, Cached: cached, Replayed: replayed}
	s.logger.Error("ledger drift detected",
		zap.String("student_id", studentID),
		zap.String("currency", string(currency)),
		zap.Int64("cached", cached),
		zap.Int64("replayed", replayed))
	return drift, nil
}
