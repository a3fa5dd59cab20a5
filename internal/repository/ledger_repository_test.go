package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

func newLedgerRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func accountRows(id, studentID string, currency models.Currency, balance int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "student_id", "currency", "balance", "level_id", "created_at", "updated_at"}).
		AddRow(id, studentID, string(currency), balance, nil, now, now)
}

func TestAppendTransactionCredits(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("s1", "XP").
		WillReturnRows(accountRows("acc-1", "s1", models.CurrencyXP, 40))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_currency_accounts SET balance")).
		WithArgs(int64(100), sqlmock.AnyArg(), "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn, err := repo.AppendTransaction(context.Background(), AppendTransactionParams{
		StudentID:     "s1",
		Currency:      models.CurrencyXP,
		Amount:        60,
		ReferenceType: models.ReferenceAttitude,
		ReferenceID:   "reward-1",
		CreatedBy:     "teacher-1",
		Description:   "Helped a classmate",
	})
	require.NoError(t, err)
	require.Equal(t, int64(60), txn.Amount)
	require.NotEmpty(t, txn.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransactionInsufficientBalanceRollsBack(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("s1", "ATOMS").
		WillReturnRows(accountRows("acc-1", "s1", models.CurrencyAtoms, 10))
	mock.ExpectRollback()

	_, err := repo.AppendTransaction(context.Background(), AppendTransactionParams{
		StudentID:     "s1",
		Currency:      models.CurrencyAtoms,
		Amount:        -25,
		ReferenceType: models.ReferenceStorePurchase,
		ReferenceID:   "order-1",
		CreatedBy:     "teacher-1",
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInsufficientBalance))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransactionClampsDebitUnderLock(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("s1", "XP").
		WillReturnRows(accountRows("acc-1", "s1", models.CurrencyXP, 40))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_currency_accounts SET balance")).
		WithArgs(int64(0), sqlmock.AnyArg(), "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn, err := repo.AppendTransaction(context.Background(), AppendTransactionParams{
		StudentID:      "s1",
		Currency:       models.CurrencyXP,
		Amount:         -100,
		ReferenceType:  models.ReferenceAttitude,
		ReferenceID:    "reward-1",
		CreatedBy:      "teacher-1",
		Description:    "Late to class",
		ClampToBalance: true,
	})
	require.NoError(t, err)
	require.NotNil(t, txn)
	require.Equal(t, int64(-40), txn.Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransactionFullyClampedWritesNothing(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("s1", "XP").
		WillReturnRows(accountRows("acc-1", "s1", models.CurrencyXP, 0))
	mock.ExpectCommit()

	txn, err := repo.AppendTransaction(context.Background(), AppendTransactionParams{
		StudentID:      "s1",
		Currency:       models.CurrencyXP,
		Amount:         -100,
		ReferenceType:  models.ReferenceAttitude,
		ReferenceID:    "reward-1",
		CreatedBy:      "teacher-1",
		ClampToBalance: true,
	})
	require.NoError(t, err)
	require.Nil(t, txn)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransactionRejectsZeroAmount(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.AppendTransaction(context.Background(), AppendTransactionParams{
		StudentID:     "s1",
		Currency:      models.CurrencyXP,
		Amount:        0,
		ReferenceType: models.ReferenceAttitude,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidAmount))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransactionCreatesAccountLazily(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("s1", "XP").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "currency", "balance", "level_id", "created_at", "updated_at"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_currency_accounts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("s1", "XP").
		WillReturnRows(accountRows("acc-new", "s1", models.CurrencyXP, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_transactions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_currency_accounts SET balance")).
		WithArgs(int64(15), sqlmock.AnyArg(), "acc-new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn, err := repo.AppendTransaction(context.Background(), AppendTransactionParams{
		StudentID:     "s1",
		Currency:      models.CurrencyXP,
		Amount:        15,
		ReferenceType: models.ReferenceXPRule,
		ReferenceID:   "reward-2",
		CreatedBy:     "teacher-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(15), txn.Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTransactionMapsDeadlockToConflict(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("s1", "XP").
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	_, err := repo.AppendTransaction(context.Background(), AppendTransactionParams{
		StudentID:     "s1",
		Currency:      models.CurrencyXP,
		Amount:        5,
		ReferenceType: models.ReferenceAttitude,
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrConcurrencyConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalanceDefaultsToZero(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM student_currency_accounts")).
		WithArgs("ghost", "XP").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	balance, err := repo.GetBalance(context.Background(), "ghost", models.CurrencyXP)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayBalanceSumsLog(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0)")).
		WithArgs("s1", "XP").
		WillReturnRows(sqlmock.NewRows([]string{"total", "entries"}).AddRow(120, 4))

	total, err := repo.ReplayBalance(context.Background(), "s1", models.CurrencyXP)
	require.NoError(t, err)
	require.Equal(t, int64(120), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayBalanceUnknownAccount(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewLedgerRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0)")).
		WithArgs("ghost", "XP").
		WillReturnRows(sqlmock.NewRows([]string{"total", "entries"}).AddRow(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, currency, balance, level_id")).
		WithArgs("ghost", "XP").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "currency", "balance", "level_id", "created_at", "updated_at"}))

	_, err := repo.ReplayBalance(context.Background(), "ghost", models.CurrencyXP)
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrAccountNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}
