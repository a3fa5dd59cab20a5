package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edupoint/rewards-api/internal/models"
	"github.com/edupoint/rewards-api/pkg/jobs"
)

type reconciliationAccountLister interface {
	ListAccountsUpdatedSince(ctx context.Context, since time.Time, limit int) ([]models.StudentCurrencyAccount, error)
}

type balanceReconciler interface {
	Reconcile(ctx context.Context, studentID string, currency models.Currency) (*models.ReconciliationDrift, error)
}

// ReconciliationConfig controls the periodic balance sweep.
type ReconciliationConfig struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
}

// ReconciliationService periodically replays recently touched accounts
// against their cached balances and reports drift.
type ReconciliationService struct {
	accounts   reconciliationAccountLister
	reconciler balanceReconciler
	metrics    *MetricsService
	logger     *zap.Logger

	interval  time.Duration
	batchSize int
	queue     *jobs.Queue

	mu        sync.Mutex
	lastSweep time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

type reconcileJobPayload struct {
	StudentID string
	Currency  models.Currency
}

// NewReconciliationService constructs the sweep worker. Start must be called
// to begin sweeping.
func NewReconciliationService(accounts reconciliationAccountLister, reconciler balanceReconciler, metrics *MetricsService, logger *zap.Logger, cfg ReconciliationConfig) *ReconciliationService {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ReconciliationService{
		accounts:   accounts,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
	}
	s.queue = jobs.NewQueue("ledger-reconcile", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BatchSize,
		MaxRetries: 2,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers and the sweep ticker.
func (s *ReconciliationService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.lastSweep = time.Now().UTC().Add(-s.interval)
	s.queue.Start(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
	s.logger.Info("reconciliation sweep started", zap.Duration("interval", s.interval))
}

// Stop halts the ticker and waits for in-flight jobs to drain.
func (s *ReconciliationService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.queue.Stop()
}

// Sweep enqueues one reconcile job per account touched since the previous
// sweep. It is exported so an admin endpoint can trigger it on demand.
func (s *ReconciliationService) Sweep(ctx context.Context) {
	s.mu.Lock()
	since := s.lastSweep
	s.lastSweep = time.Now().UTC()
	s.mu.Unlock()

	accounts, err := s.accounts.ListAccountsUpdatedSince(ctx, since, s.batchSize)
	if err != nil {
		s.logger.Error("reconciliation sweep failed to list accounts", zap.Error(err))
		return
	}
	for _, account := range accounts {
		job := jobs.Job{
			ID:   fmt.Sprintf("%s:%s", account.StudentID, account.Currency),
			Type: "reconcile",
			Payload: reconcileJobPayload{
				StudentID: account.StudentID,
				Currency:  account.Currency,
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue reconcile job", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
	}
	if len(accounts) > 0 {
		s.logger.Info("reconciliation sweep enqueued", zap.Int("accounts", len(accounts)))
	}
}

func (s *ReconciliationService) handleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reconcileJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	drift, err := s.reconciler.Reconcile(ctx, payload.StudentID, payload.Currency)
	if err != nil {
		return err
	}
	drifted := 0
	if drift != nil {
		drifted = 1
	}
	s.metrics.CountReconciliation(1, drifted)
	return nil
}
