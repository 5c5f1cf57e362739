/*
auditor.go - Background reconciliation job

PURPOSE:
  Periodically replays every account's history through the
  ReconciliationChecker. The checker never runs on the apply path, so
  this goroutine is the only place drift would be caught in a long-lived
  process. Any failure is a correctness bug: it logs at error level and
  bumps the failure counter so an operator gets paged, and it is never
  retried as if it were transient.

CONFIGURATION:
  - Interval: How often to sweep (default: 15 minutes)

USAGE:
  auditor := NewAuditor(handler, log)
  auditor.Start()
  // ... on shutdown
  auditor.Stop()

SEE ALSO:
  - ledger/reconcile.go: What a sweep actually checks
  - cmd/server: The one-shot `audit` command for offline journals
*/
package api

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Auditor sweeps all accounts on a fixed interval.
type Auditor struct {
	Handler  *Handler
	Interval time.Duration

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAuditor creates an auditor with the default interval.
func NewAuditor(h *Handler, log *zap.Logger) *Auditor {
	return &Auditor{
		Handler:  h,
		Interval: 15 * time.Minute,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start begins the background sweep. The first sweep runs immediately.
func (a *Auditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ticker = time.NewTicker(a.Interval)
	a.wg.Add(1)
	go a.run()

	a.log.Info("auditor started", zap.Duration("interval", a.Interval))
}

// Stop halts the sweep and waits for an in-flight one to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		a.log.Info("auditor stopped")
	}
}

func (a *Auditor) run() {
	defer a.wg.Done()

	a.sweep()
	for {
		select {
		case <-a.ticker.C:
			a.sweep()
		case <-a.stop:
			return
		}
	}
}

func (a *Auditor) sweep() {
	engine := a.Handler.Engine()
	checked, failed := 0, 0

	for _, v := range engine.Accounts() {
		checked++
		if err := engine.Reconcile(v.Kind, v.ID); err != nil {
			failed++
			reconciliationFailures.Inc()
			a.log.Error("reconciliation failure",
				zap.String("instrument_kind", string(v.Kind)),
				zap.String("instrument_id", v.ID),
				zap.Error(err),
			)
		}
	}

	a.log.Info("audit sweep complete",
		zap.Int("accounts", checked),
		zap.Int("failures", failed),
	)
}
