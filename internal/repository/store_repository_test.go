package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/rewards-api/internal/models"
)

func TestUpdateOrderStatusGuardsPriorStatus(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewStoreRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE store_orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs("PROCESSING", sqlmock.AnyArg(), "o1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.UpdateOrderStatus(context.Background(), "o1", models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	require.True(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusReportsLostRace(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewStoreRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE store_orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs("PROCESSING", sqlmock.AnyArg(), "o1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.UpdateOrderStatus(context.Background(), "o1", models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	require.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePaymentStatusGuardsPriorStatus(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	repo := NewStoreRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE store_orders SET payment_status = $1, updated_at = $2 WHERE id = $3 AND payment_status = $4")).
		WithArgs("REFUNDED", sqlmock.AnyArg(), "o1", "PAID").
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.UpdatePaymentStatus(context.Background(), "o1", models.PaymentStatusPaid, models.PaymentStatusRefunded)
	require.NoError(t, err)
	require.False(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}
