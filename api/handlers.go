/*
handlers.go - HTTP API handlers for the recognition engine

PURPOSE:
  Implements the in-process API surface over HTTP:
    submit    POST /api/transactions
    accounts  GET  /api/accounts, /api/accounts/{kind}/{id}
    reconcile POST /api/reconcile, /api/accounts/{kind}/{id}/reconcile
    scenarios GET  /api/scenarios, POST /api/scenarios/load

  Handlers translate JSON to domain types and engine errors to status
  codes. They never compute totals or balances themselves - the UI (and
  this layer) only displays what the engine emits.

ERROR MAPPING:
  ErrDuplicateTransaction  409
  ErrUnknownInstrument     404
  other client errors      400 (over-refund, over-recognition, precision, shape)
  ErrReconciliation        500 + loud log + metric (corruption, not load)

SEE ALSO:
  - server.go: Routing and middleware
  - dto.go: Wire types
  - scenarios package: The demo streams LoadScenario replays
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/revenue-engine/ledger"
	"github.com/warp/revenue-engine/scenarios"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler carries the engine and cross-cutting dependencies.
type Handler struct {
	log *zap.Logger

	mu     sync.RWMutex
	engine *ledger.RecognitionEngine

	currentScenario string
}

// NewHandler wires a handler around an engine factory. Scenario loads swap
// in a store-less engine; see LoadScenario.
func NewHandler(makeEngine func() *ledger.RecognitionEngine, log *zap.Logger) *Handler {
	return &Handler{
		log:    log,
		engine: makeEngine(),
	}
}

// Engine returns the current engine instance.
func (h *Handler) Engine() *ledger.RecognitionEngine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// SubmitTransaction applies one business event.
// POST /api/transactions
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	tx, err := req.toTransaction()
	if err != nil {
		transactionsRejected.WithLabelValues(errorClass(err)).Inc()
		writeError(w, http.StatusBadRequest, "invalid transaction", err)
		return
	}

	start := time.Now()
	snap, err := h.Engine().Apply(r.Context(), tx)
	applySeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		transactionsRejected.WithLabelValues(errorClass(err)).Inc()
		writeError(w, statusFor(err), "transaction rejected", err)
		return
	}

	transactionsApplied.WithLabelValues(string(tx.Kind)).Inc()
	writeJSON(w, http.StatusCreated, toSnapshotDTO(tx.ID, snap))
}

// toTransaction converts the wire form into a domain transaction. A missing
// id gets a generated one - at the cost of idempotent retry, which only the
// caller's own id can provide.
func (req SubmitTransactionRequest) toTransaction() (ledger.Transaction, error) {
	tx := ledger.Transaction{
		ID:         ledger.TransactionID(req.ID),
		Kind:       ledger.TransactionKind(req.Kind),
		SalesLabel: ledger.LineLabel(req.SalesLabel),
		Memo:       req.Memo,
		OccurredAt: time.Now().UTC(),
	}
	if tx.ID == "" {
		tx.ID = ledger.TransactionID(uuid.NewString())
	}
	if req.OccurredAt != nil {
		tx.OccurredAt = *req.OccurredAt
	}
	if req.Instrument != nil {
		tx.Instrument = &ledger.InstrumentRef{
			Kind: ledger.InstrumentKind(req.Instrument.Kind),
			ID:   req.Instrument.ID,
		}
	}

	var err error
	if req.Gross != "" {
		if tx.Gross, err = ledger.ParseMoney(req.Gross); err != nil {
			return ledger.Transaction{}, err
		}
	}
	if req.ContractValue != "" {
		if tx.ContractValue, err = ledger.ParseMoney(req.ContractValue); err != nil {
			return ledger.Transaction{}, err
		}
	}
	if req.ClosedPortion != "" {
		if tx.ClosedPortion, err = ledger.ParseMoney(req.ClosedPortion); err != nil {
			return ledger.Transaction{}, err
		}
	}
	for _, p := range req.Payments {
		amount, err := ledger.ParseMoney(p.Amount)
		if err != nil {
			return ledger.Transaction{}, err
		}
		tx.Payments = append(tx.Payments, ledger.PaymentLine{
			Method: ledger.LineLabel(p.Method),
			Amount: amount,
		})
	}
	return tx, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// ListAccounts returns every deferral account the engine has seen.
// GET /api/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	views := h.Engine().Accounts()
	dtos := make([]AccountDTO, 0, len(views))
	for _, v := range views {
		dtos = append(dtos, toAccountDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns one account's balance, status, and history.
// GET /api/accounts/{kind}/{id}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	kind := ledger.InstrumentKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	view, ok := h.Engine().GetAccount(kind, id)
	if !ok {
		writeError(w, http.StatusNotFound, "account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(view))
}

// GetAccountTransactions returns the applied history for one instrument.
// GET /api/accounts/{kind}/{id}/transactions
func (h *Handler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	kind := ledger.InstrumentKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	if _, ok := h.Engine().GetAccount(kind, id); !ok {
		writeError(w, http.StatusNotFound, "account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine().History(kind, id))
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileAccount audits one account.
// POST /api/accounts/{kind}/{id}/reconcile
func (h *Handler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	kind := ledger.InstrumentKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")

	err := h.Engine().Reconcile(kind, id)
	if errors.Is(err, ledger.ErrUnknownInstrument) {
		writeError(w, http.StatusNotFound, "account not found", err)
		return
	}
	writeJSON(w, http.StatusOK, h.reconcileResult(kind, id, err))
}

// ReconcileAll audits every account and reports per-account outcomes.
// POST /api/reconcile
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	var results []ReconcileResultDTO
	for _, v := range h.Engine().Accounts() {
		err := h.Engine().Reconcile(v.Kind, v.ID)
		results = append(results, h.reconcileResult(v.Kind, v.ID, err))
	}
	if results == nil {
		results = []ReconcileResultDTO{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) reconcileResult(kind ledger.InstrumentKind, id string, err error) ReconcileResultDTO {
	result := ReconcileResultDTO{Kind: string(kind), ID: id, Healthy: err == nil}
	if err != nil {
		result.Error = err.Error()
		reconciliationFailures.Inc()
		h.log.Error("reconciliation failure",
			zap.String("instrument_kind", string(kind)),
			zap.String("instrument_id", id),
			zap.Error(err),
		)
	}
	return result
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ListScenarios returns the demo catalog.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	var dtos []ScenarioDTO
	for _, s := range scenarios.Catalog() {
		dtos = append(dtos, ScenarioDTO{
			ID:           s.ID,
			Name:         s.Name,
			Description:  s.Description,
			Transactions: len(s.Transactions),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, ok := scenarios.ByID(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID: s.ID, Name: s.Name, Description: s.Description, Transactions: len(s.Transactions),
	})
}

// LoadScenario resets the engine and replays one demo stream.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	scenario, ok := scenarios.ByID(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown scenario", nil)
		return
	}

	// Scenario mode is ephemeral: the stream replays through a store-less
	// engine so the durable journal is never touched. Scenario ids are
	// fixed, so journaling them would poison the journal's duplicate guard
	// for every later load (and for Restore after a restart), and a replay
	// failing midway would leave a partial stream behind.
	fresh := ledger.NewEngine(ledger.WithPolicies(h.Engine().Policies()))
	var snapshots []SnapshotDTO
	for _, tx := range scenario.Transactions {
		snap, err := fresh.Apply(r.Context(), tx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "scenario replay failed", err)
			return
		}
		snapshots = append(snapshots, toSnapshotDTO(tx.ID, snap))
	}

	h.mu.Lock()
	h.engine = fresh
	h.currentScenario = scenario.ID
	h.mu.Unlock()

	h.log.Info("scenario loaded",
		zap.String("scenario", scenario.ID),
		zap.Int("transactions", len(scenario.Transactions)),
	)
	writeJSON(w, http.StatusOK, snapshots)
}

// =============================================================================
// POLICIES
// =============================================================================

// ListPolicies returns the active per-instrument recognition policies.
// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.Engine().Policies()
	out := make(map[string]string, len(policies))
	for kind, p := range policies {
		out[string(kind)] = string(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnknownInstrument):
		return http.StatusNotFound
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
