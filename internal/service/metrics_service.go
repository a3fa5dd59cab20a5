package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edupoint/rewards-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the ledger write path.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	ledgerTransactions *prometheus.CounterVec
	ledgerRejections   *prometheus.CounterVec
	oversellRejections prometheus.Counter
	reconcileDrift     prometheus.Counter
	reconcileChecked   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	ledgerTransactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Ledger transactions committed, by currency and reference type",
	}, []string{"currency", "reference_type"})

	ledgerRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Ledger writes rejected before commit, by currency",
	}, []string{"currency"})

	oversellRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "store_oversell_rejections_total",
		Help: "Orders rejected because requested quantity exceeded stock",
	})

	reconcileDrift := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_drift_total",
		Help: "Accounts whose cached balance disagreed with the replayed log",
	})

	reconcileChecked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconcile_checked_total",
		Help: "Accounts checked by the reconciliation sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ledgerTransactions, ledgerRejections, oversellRejections, reconcileDrift, reconcileChecked, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		ledgerTransactions: ledgerTransactions,
		ledgerRejections:   ledgerRejections,
		oversellRejections: oversellRejections,
		reconcileDrift:     reconcileDrift,
		reconcileChecked:   reconcileChecked,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// CountLedgerTransaction records one committed ledger write.
func (m *MetricsService) CountLedgerTransaction(currency models.Currency, ref models.ReferenceType) {
	if m == nil {
		return
	}
	m.ledgerTransactions.WithLabelValues(string(currency), string(ref)).Inc()
}

// CountLedgerRejection records a write rejected before commit, typically an
// insufficient balance.
func (m *MetricsService) CountLedgerRejection(currency models.Currency) {
	if m == nil {
		return
	}
	m.ledgerRejections.WithLabelValues(string(currency)).Inc()
}

// CountOversellRejection records an order blocked by the stock check.
func (m *MetricsService) CountOversellRejection() {
	if m == nil {
		return
	}
	m.oversellRejections.Inc()
}

// CountReconciliation records sweep progress and any drift found.
func (m *MetricsService) CountReconciliation(checked, drifted int) {
	if m == nil {
		return
	}
	m.reconcileChecked.Add(float64(checked))
	m.reconcileDrift.Add(float64(drifted))
}
