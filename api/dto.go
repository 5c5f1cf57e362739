/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Shape validation happens in the engine (Transaction.Validate); handlers
  only translate between JSON and domain types and map errors onto HTTP
  status codes.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/revenue-engine/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitTransactionRequest is the wire form of one business event.
// Amounts are decimal strings ("50.00") to keep exactness on the wire.
type SubmitTransactionRequest struct {
	ID            string            `json:"id,omitempty"` // generated when omitted (non-idempotent)
	Kind          string            `json:"kind"`
	Gross         string            `json:"gross,omitempty"`
	ContractValue string            `json:"contract_value,omitempty"`
	ClosedPortion string            `json:"closed_portion,omitempty"`
	Instrument    *InstrumentDTO    `json:"instrument,omitempty"`
	Payments      []PaymentLineDTO  `json:"payments,omitempty"`
	SalesLabel    string            `json:"sales_label,omitempty"`
	OccurredAt    *time.Time        `json:"occurred_at,omitempty"`
	Memo          string            `json:"memo,omitempty"`
}

type InstrumentDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type PaymentLineDTO struct {
	Method string `json:"method"`
	Amount string `json:"amount"`
}

// LoadScenarioRequest selects a demo scenario by id.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SnapshotDTO is the balanced triple a submitted transaction produced.
type SnapshotDTO struct {
	TransactionID string     `json:"transaction_id"`
	Sales         SectionDTO `json:"sales"`
	Deferred      SectionDTO `json:"deferred_sales"`
	Payments      SectionDTO `json:"payments"`
}

type SectionDTO struct {
	Kind  string    `json:"kind"`
	Lines []LineDTO `json:"lines"`
	Total string    `json:"total"`
}

type LineDTO struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// AccountDTO is the read-only view of one deferral account.
type AccountDTO struct {
	Kind    string   `json:"kind"`
	ID      string   `json:"id"`
	Balance string   `json:"balance"`
	Status  string   `json:"status"`
	History []string `json:"history"`
}

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Transactions int    `json:"transactions"`
}

// ReconcileResultDTO reports one account's audit outcome.
type ReconcileResultDTO struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSectionDTO(s ledger.Section) SectionDTO {
	dto := SectionDTO{Kind: string(s.Kind), Lines: []LineDTO{}, Total: s.Total.String()}
	for _, l := range s.Lines {
		dto.Lines = append(dto.Lines, LineDTO{Label: string(l.Label), Amount: l.Amount.String()})
	}
	return dto
}

func toSnapshotDTO(id ledger.TransactionID, snap ledger.LedgerSnapshot) SnapshotDTO {
	return SnapshotDTO{
		TransactionID: string(id),
		Sales:         toSectionDTO(snap.Sales),
		Deferred:      toSectionDTO(snap.Deferred),
		Payments:      toSectionDTO(snap.Payments),
	}
}

func toAccountDTO(v ledger.AccountView) AccountDTO {
	history := make([]string, len(v.History))
	for i, id := range v.History {
		history[i] = string(id)
	}
	return AccountDTO{
		Kind:    string(v.Kind),
		ID:      v.ID,
		Balance: v.Balance.String(),
		Status:  string(v.Status),
		History: history,
	}
}
