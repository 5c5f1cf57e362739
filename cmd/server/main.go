/*
main.go - Application entry point

PURPOSE:
  Starts the deferred-revenue recognition engine. Two commands:

    serve   Run the HTTP API with graceful shutdown
    audit   Replay a journal offline and reconcile every account

STARTUP SEQUENCE (serve):
  1. Load TOML config (defaults if no file), apply flag overrides
  2. Open the SQLite journal
  3. Restore engine state by replaying the journal
  4. Start the background auditor
  5. Serve HTTP until SIGINT/SIGTERM, then drain (30s timeout)

EXAMPLES:
  # Run with file journal
  ./server serve --db=./data/revenue.db

  # Run fully in-memory (demo scenarios)
  ./server serve --db=:memory:

  # Audit an existing journal and exit non-zero on any violation
  ./server audit --db=./data/revenue.db

SEE ALSO:
  - api/server.go: Router configuration
  - config: TOML schema
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/revenue-engine/api"
	"github.com/warp/revenue-engine/config"
	"github.com/warp/revenue-engine/ledger"
	"github.com/warp/revenue-engine/store/sqlite"
)

var (
	flagConfig string
	flagDB     string
	flagPort   int
)

var rootCmd = &cobra.Command{
	Use:   "revenue-engine",
	Short: "Deferred-revenue recognition engine",
	Long: `Tracks money collected but not yet earned - gift cards, deposits,
invoice installments, advance orders - and recognizes it as sales when the
obligation is fulfilled.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Reconcile every account in a journal and exit",
	Long: `Replays the full journal from scratch and checks every invariant for
every instrument. Exits non-zero if any account fails, which makes this
suitable as a cron job or a pre-restore sanity check.`,
	RunE: runAudit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to TOML config file")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite journal path (overrides config)")
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "HTTP port (overrides config)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return zcfg.Build()
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	journal, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	makeEngine := func() *ledger.RecognitionEngine {
		return ledger.NewEngine(
			ledger.WithPolicies(cfg.PolicySet()),
			ledger.WithStore(journal),
		)
	}

	handler := api.NewHandler(makeEngine, log)
	if err := handler.Engine().Restore(cmd.Context()); err != nil {
		return fmt.Errorf("failed to restore engine from journal: %w", err)
	}

	auditor := api.NewAuditor(handler, log)
	auditor.Start()
	defer auditor.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", cfg.Addr()),
			zap.String("journal", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	journal, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	ctx := cmd.Context()
	keys, err := journal.InstrumentKeys(ctx)
	if err != nil {
		return err
	}

	checker := ledger.NewReconciliationChecker(cfg.PolicySet())
	failures := 0
	for _, key := range keys {
		history, err := journal.Load(ctx, key)
		if err != nil {
			return err
		}

		// Replay gives the expected final balance; Check then re-verifies
		// every step and the lifetime conservation law against it.
		balance := replayBalance(history)
		if err := checker.Check(history, balance); err != nil {
			failures++
			log.Error("reconciliation failure",
				zap.String("instrument_kind", string(key.Kind)),
				zap.String("instrument_id", key.ID),
				zap.Error(err),
			)
			continue
		}
		log.Info("account healthy",
			zap.String("instrument_kind", string(key.Kind)),
			zap.String("instrument_id", key.ID),
			zap.String("balance", balance.String()),
		)
	}

	log.Info("audit complete", zap.Int("accounts", len(keys)), zap.Int("failures", failures))
	if failures > 0 {
		return fmt.Errorf("%d account(s) failed reconciliation", failures)
	}
	return nil
}

// replayBalance computes the running balance a clean engine would hold
// after the history. Kind-level guards are left to the checker.
func replayBalance(history []ledger.Transaction) ledger.Money {
	balance := ledger.Zero
	for _, tx := range history {
		switch tx.Kind {
		case ledger.DeferredIssue, ledger.PartialPayment:
			balance = balance.Add(tx.Gross)
		case ledger.DeferredRefundOfIssue, ledger.PartialPaymentRefund, ledger.DeferredRedemption:
			balance = balance.Sub(tx.Gross)
		case ledger.RevenueRecognition:
			balance = balance.Sub(tx.ClosedPortion)
		}
	}
	return balance
}
