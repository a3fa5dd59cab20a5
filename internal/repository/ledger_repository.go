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

// LedgerRepository persists currency accounts and their append-only
// transaction logs. Every balance mutation runs inside a database
// transaction that locks the account row, so two concurrent writers can
// never both read a stale balance.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendTransactionParams holds everything needed to write one ledger entry.
// ClampToBalance shrinks a debit to the available balance instead of
// rejecting it; the clamp happens under the account row lock, so a
// concurrent debit cannot slip between the balance read and the write.
type AppendTransactionParams struct {
	StudentID      string
	Currency       models.Currency
	Amount         int64
	ReferenceType  models.ReferenceType
	ReferenceID    string
	CreatedBy      string
	Description    string
	ClampToBalance bool
}

// AppendTransaction writes one immutable transaction row and updates the
// cached balance as a single atomic unit. The account row is created lazily
// on first use. A result that would drive the balance negative fails with
// ErrInsufficientBalance and writes nothing, unless ClampToBalance is set,
// in which case the debit floors at zero and a fully clamped delta returns
// a nil transaction.
func (r *LedgerRepository) AppendTransaction(ctx context.Context, params AppendTransactionParams) (txn *models.LedgerTransaction, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txn, err = r.AppendInTx(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, mapConcurrencyError(err, "commit ledger transaction")
	}
	return txn, nil
}

// AppendInTx performs the append inside a caller-owned transaction. The store
// debit coordinator uses this to fold the currency debit into the same atomic
// unit as the stock decrement.
func (r *LedgerRepository) AppendInTx(ctx context.Context, tx *sqlx.Tx, params AppendTransactionParams) (*models.LedgerTransaction, error) {
	if params.Amount == 0 {
		return nil, appErrors.ErrInvalidAmount
	}
	if !params.Currency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown currency %q", params.Currency))
	}

	account, err := r.lockAccount(ctx, tx, params.StudentID, params.Currency)
	if err != nil {
		return nil, err
	}

	newBalance := account.Balance + params.Amount
	if newBalance < 0 {
		if !params.ClampToBalance {
			return nil, appErrors.Clone(appErrors.ErrInsufficientBalance,
				fmt.Sprintf("%s balance %d cannot cover debit of %d", params.Currency, account.Balance, -params.Amount))
		}
		params.Amount = -account.Balance
		newBalance = 0
		if params.Amount == 0 {
			// fully clamped, nothing to write
			return nil, nil
		}
	}

	now := time.Now().UTC()
	txn := &models.LedgerTransaction{
		ID:            uuid.NewString(),
		StudentID:     params.StudentID,
		Currency:      params.Currency,
		Amount:        params.Amount,
		ReferenceType: params.ReferenceType,
		ReferenceID:   params.ReferenceID,
		Description:   params.Description,
		CreatedBy:     params.CreatedBy,
		CreatedAt:     now,
	}
	const insertQuery = `INSERT INTO ledger_transactions
	(id, student_id, currency, amount, reference_type, reference_id, description, created_by, created_at)
	VALUES (:id, :student_id, :currency, :amount, :reference_type, :reference_id, :description, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, txn); err != nil {
		return nil, mapConcurrencyError(err, "insert ledger transaction")
	}

	const updateQuery = `UPDATE student_currency_accounts SET balance = $1, updated_at = $2 WHERE id = $3`
	if _, err := tx.ExecContext(ctx, updateQuery, newBalance, now, account.ID); err != nil {
		return nil, mapConcurrencyError(err, "update account balance")
	}

	return txn, nil
}

// lockAccount selects the account row FOR UPDATE, creating it with a zero
// balance when absent. The insert tolerates a concurrent creation and falls
// back to locking the winner's row.
func (r *LedgerRepository) lockAccount(ctx context.Context, tx *sqlx.Tx, studentID string, currency models.Currency) (*models.StudentCurrencyAccount, error) {
	const selectQuery = `SELECT id, student_id, currency, balance, level_id, created_at, updated_at
	FROM student_currency_accounts WHERE student_id = $1 AND currency = $2 FOR UPDATE`

	var account models.StudentCurrencyAccount
	err := tx.GetContext(ctx, &account, selectQuery, studentID, currency)
	if err == nil {
		return &account, nil
	}
	if err != sql.ErrNoRows {
		return nil, mapConcurrencyError(err, "lock currency account")
	}

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO student_currency_accounts (id, student_id, currency, balance, level_id, created_at, updated_at)
	VALUES ($1, $2, $3, 0, NULL, $4, $4)
	ON CONFLICT (student_id, currency) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insertQuery, uuid.NewString(), studentID, currency, now); err != nil {
		return nil, mapConcurrencyError(err, "create currency account")
	}
	if err := tx.GetContext(ctx, &account, selectQuery, studentID, currency); err != nil {
		return nil, mapConcurrencyError(err, "lock currency account after create")
	}
	return &account, nil
}

// GetBalance returns the cached balance, defaulting to zero when the student
// has no account row yet.
func (r *LedgerRepository) GetBalance(ctx context.Context, studentID string, currency models.Currency) (int64, error) {
	const query = `SELECT balance FROM student_currency_accounts WHERE student_id = $1 AND currency = $2`
	var balance int64
	if err := r.db.GetContext(ctx, &balance, query, studentID, currency); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// GetAccount returns the full account row or nil when none exists.
func (r *LedgerRepository) GetAccount(ctx context.Context, studentID string, currency models.Currency) (*models.StudentCurrencyAccount, error) {
	const query = `SELECT id, student_id, currency, balance, level_id, created_at, updated_at
	FROM student_currency_accounts WHERE student_id = $1 AND currency = $2`
	var account models.StudentCurrencyAccount
	if err := r.db.GetContext(ctx, &account, query, studentID, currency); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// ReplayBalance recomputes the balance by summing the transaction log. Used
// for reconciliation; must always agree with the cached balance.
func (r *LedgerRepository) ReplayBalance(ctx context.Context, studentID string, currency models.Currency) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS entries
	FROM ledger_transactions WHERE student_id = $1 AND currency = $2`
	var row struct {
		Total   int64 `db:"total"`
		Entries int64 `db:"entries"`
	}
	if err := r.db.GetContext(ctx, &row, query, studentID, currency); err != nil {
		return 0, fmt.Errorf("replay balance: %w", err)
	}
	if row.Entries == 0 {
		account, err := r.GetAccount(ctx, studentID, currency)
		if err != nil {
			return 0, err
		}
		if account == nil {
			return 0, appErrors.Clone(appErrors.ErrAccountNotFound,
				fmt.Sprintf("no %s account for student %s", currency, studentID))
		}
	}
	return row.Total, nil
}

// SetLevel persists the resolved level on the student's XP account.
func (r *LedgerRepository) SetLevel(ctx context.Context, studentID string, levelID *string) error {
	const query = `UPDATE student_currency_accounts SET level_id = $1, updated_at = $2
	WHERE student_id = $3 AND currency = $4`
	if _, err := r.db.ExecContext(ctx, query, levelID, time.Now().UTC(), studentID, models.CurrencyXP); err != nil {
		return fmt.Errorf("set level: %w", err)
	}
	return nil
}

// ListTransactions returns ledger history matching the filter, newest first.
func (r *LedgerRepository) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.LedgerTransaction, int, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{filter.StudentID}
	if filter.Currency != nil {
		args = append(args, *filter.Currency)
		where = append(where, fmt.Sprintf("currency = $%d", len(args)))
	}
	if filter.ReferenceType != nil {
		args = append(args, *filter.ReferenceType)
		where = append(where, fmt.Sprintf("reference_type = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
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

	query := fmt.Sprintf(`SELECT id, student_id, currency, amount, reference_type, reference_id, description, created_by, created_at
	FROM ledger_transactions WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var txns []models.LedgerTransaction
	if err := r.db.SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list ledger transactions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM ledger_transactions WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count ledger transactions: %w", err)
	}
	return txns, total, nil
}

// ListTransactionsAsc returns a student's full history for one currency in
// commit order, for statement rendering with running balances.
func (r *LedgerRepository) ListTransactionsAsc(ctx context.Context, studentID string, currency models.Currency) ([]models.LedgerTransaction, error) {
	const query = `SELECT id, student_id, currency, amount, reference_type, reference_id, description, created_by, created_at
	FROM ledger_transactions WHERE student_id = $1 AND currency = $2 ORDER BY created_at ASC, id ASC`
	var txns []models.LedgerTransaction
	if err := r.db.SelectContext(ctx, &txns, query, studentID, currency); err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}
	return txns, nil
}

// ListAccountsUpdatedSince returns accounts touched after the cutoff, the
// reconciliation sweep's working set.
func (r *LedgerRepository) ListAccountsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.StudentCurrencyAccount, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `SELECT id, student_id, currency, balance, level_id, created_at, updated_at
	FROM student_currency_accounts WHERE updated_at >= $1 ORDER BY updated_at ASC LIMIT $2`
	var accounts []models.StudentCurrencyAccount
	if err := r.db.SelectContext(ctx, &accounts, query, since, limit); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// mapConcurrencyError converts Postgres serialization and deadlock failures
// into the retryable conflict error; everything else is wrapped as-is.
func mapConcurrencyError(err error, op string) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "40001", "40P01":
			return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, appErrors.ErrConcurrencyConflict.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
