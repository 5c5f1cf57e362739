/*
metrics.go - Prometheus instrumentation for the submit path

PURPOSE:
  Three signals cover the engine's health: how many transactions were
  applied (by kind), how many failed (by error class), and how long
  recognition takes. Reconciliation failures get their own counter since
  they indicate corruption, not load.

  Exposed on /metrics via promhttp; see server.go.
*/
package api

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/revenue-engine/ledger"
)

var (
	transactionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revenue_transactions_applied_total",
		Help: "Transactions successfully recognized, by kind.",
	}, []string{"kind"})

	transactionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "revenue_transactions_rejected_total",
		Help: "Transactions rejected, by error class.",
	}, []string{"reason"})

	applySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "revenue_apply_duration_seconds",
		Help:    "Latency of RecognitionEngine.Apply.",
		Buckets: prometheus.DefBuckets,
	})

	reconciliationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "revenue_reconciliation_failures_total",
		Help: "Audits that found an invariant violation. Alert on any increase.",
	})
)

// errorClass maps an engine error onto a low-cardinality label value.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ledger.ErrOverRefund):
		return "over_refund"
	case errors.Is(err, ledger.ErrOverRecognition):
		return "over_recognition"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return "duplicate"
	case errors.Is(err, ledger.ErrUnknownInstrument):
		return "unknown_instrument"
	case errors.Is(err, ledger.ErrPrecision):
		return "precision"
	case errors.Is(err, ledger.ErrInvalidTransaction):
		return "invalid"
	case errors.Is(err, ledger.ErrUnbalancedPayments):
		return "unbalanced_payments"
	case errors.Is(err, ledger.ErrReconciliation):
		return "reconciliation"
	default:
		return "internal"
	}
}
