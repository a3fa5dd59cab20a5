package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupoint/rewards-api/internal/models"
)

type mockAccountLister struct {
	accounts []models.StudentCurrencyAccount
}

func (m *mockAccountLister) ListAccountsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.StudentCurrencyAccount, error) {
	return m.accounts, nil
}

type mockReconciler struct {
	mu      sync.Mutex
	checked []string
	drift   map[string]*models.ReconciliationDrift
	done    chan struct{}
	want    int
}

func (m *mockReconciler) Reconcile(ctx context.Context, studentID string, currency models.Currency) (*models.ReconciliationDrift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked = append(m.checked, studentID+"|"+string(currency))
	if len(m.checked) == m.want && m.done != nil {
		close(m.done)
	}
	return m.drift[studentID], nil
}

func TestSweepReconcilesTouchedAccounts(t *testing.T) {
	accounts := &mockAccountLister{accounts: []models.StudentCurrencyAccount{
		{StudentID: "s1", Currency: models.CurrencyXP},
		{StudentID: "s2", Currency: models.CurrencyAtoms},
	}}
	reconciler := &mockReconciler{
		drift: map[string]*models.ReconciliationDrift{"s2": {StudentID: "s2", Currency: models.CurrencyAtoms, Cached: 10, Replayed: 12}},
		done:  make(chan struct{}),
		want:  2,
	}
	svc := NewReconciliationService(accounts, reconciler, nil, nil, ReconciliationConfig{
		Interval:  time.Hour,
		BatchSize: 10,
		Workers:   1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.Sweep(ctx)

	select {
	case <-reconciler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not reconcile all accounts in time")
	}

	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()
	require.Len(t, reconciler.checked, 2)
	assert.Contains(t, reconciler.checked, "s1|XP")
	assert.Contains(t, reconciler.checked, "s2|ATOMS")
}

func TestSweepWithoutStartDoesNotPanic(t *testing.T) {
	svc := NewReconciliationService(&mockAccountLister{}, &mockReconciler{}, nil, nil, ReconciliationConfig{})
	svc.Sweep(context.Background())
}
