package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/rewards-api/internal/models"
	appErrors "github.com/edupoint/rewards-api/pkg/errors"
)

type mockStatementLedger struct {
	account *models.StudentCurrencyAccount
	txns    []models.LedgerTransaction
}

func (m *mockStatementLedger) GetAccount(ctx context.Context, studentID string, currency models.Currency) (*models.StudentCurrencyAccount, error) {
	return m.account, nil
}

func (m *mockStatementLedger) ListTransactionsAsc(ctx context.Context, studentID string, currency models.Currency) ([]models.LedgerTransaction, error) {
	return m.txns, nil
}

func TestStatementCSVRunningBalance(t *testing.T) {
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	ledger := &mockStatementLedger{
		account: &models.StudentCurrencyAccount{ID: "acc-1", StudentID: "s1", Currency: models.CurrencyXP, Balance: 70},
		txns: []models.LedgerTransaction{
			{ID: "t1", Amount: 100, ReferenceType: models.ReferenceAttitude, ReferenceID: "r1", Description: "Helped a classmate", CreatedAt: base},
			{ID: "t2", Amount: -30, ReferenceType: models.ReferenceAttitude, ReferenceID: "r2", Description: "Late to class", CreatedAt: base.Add(time.Hour)},
		},
	}
	svc := NewStatementService(ledger, nil)

	statement, err := svc.Render(context.Background(), "s1", models.CurrencyXP, StatementCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", statement.ContentType)
	assert.True(t, strings.HasSuffix(statement.FileName, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(statement.Body)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "+100")
	assert.Contains(t, lines[1], ",100")
	assert.Contains(t, lines[2], "-30")
	assert.Contains(t, lines[2], ",70")
}

func TestStatementPDFRenders(t *testing.T) {
	ledger := &mockStatementLedger{
		account: &models.StudentCurrencyAccount{ID: "acc-1", StudentID: "s1", Currency: models.CurrencyAtoms, Balance: 5},
		txns: []models.LedgerTransaction{
			{ID: "t1", Amount: 5, ReferenceType: models.ReferenceManualAdjustment, CreatedAt: time.Now()},
		},
	}
	svc := NewStatementService(ledger, nil)

	statement, err := svc.Render(context.Background(), "s1", models.CurrencyAtoms, StatementPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", statement.ContentType)
	assert.True(t, strings.HasPrefix(string(statement.Body), "%PDF"))
}

func TestStatementUnknownAccount(t *testing.T) {
	svc := NewStatementService(&mockStatementLedger{}, nil)

	_, err := svc.Render(context.Background(), "ghost", models.CurrencyXP, StatementCSV)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrAccountNotFound))
}

func TestStatementRejectsBadFormat(t *testing.T) {
	svc := NewStatementService(&mockStatementLedger{}, nil)

	_, err := svc.Render(context.Background(), "s1", models.CurrencyXP, StatementFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
