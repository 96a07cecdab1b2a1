package custody

import (
	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type names used in events and outbox rows
const (
	AggregateTypeAdvance    = "Advance"
	AggregateTypeSettlement = "Settlement"
)

// Event type constants for advances
const (
	EventTypeAdvanceIssued            = "AdvanceIssued"
	EventTypeAdvanceApproved          = "AdvanceApproved"
	EventTypeAdvanceRejected          = "AdvanceRejected"
	EventTypeAdvanceSettlementApplied = "AdvanceSettlementApplied"
	EventTypeAdvanceTransferred       = "AdvanceTransferred"
)

// AdvanceIssuedEvent is raised when an advance is created, either by issuance or by transfer
type AdvanceIssuedEvent struct {
	shared.BaseDomainEvent
	ReferenceNumber   string          `json:"reference_number"`
	HolderKind        HolderKind      `json:"holder_kind"`
	HolderRef         *uuid.UUID      `json:"holder_ref,omitempty"`
	HolderName        string          `json:"holder_name,omitempty"`
	CostCenterID      *uuid.UUID      `json:"cost_center_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	TreasuryAccountID uuid.UUID       `json:"treasury_account_id"`
	Status            AdvanceStatus   `json:"status"`
	SourceAdvanceID   *uuid.UUID      `json:"source_advance_id,omitempty"`
}

// NewAdvanceIssuedEvent creates a new AdvanceIssuedEvent
func NewAdvanceIssuedEvent(a *Advance) *AdvanceIssuedEvent {
	return &AdvanceIssuedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeAdvanceIssued, AggregateTypeAdvance, a.ID, a.TenantID),
		ReferenceNumber:   a.ReferenceNumber,
		HolderKind:        a.Holder.Kind,
		HolderRef:         a.Holder.Ref,
		HolderName:        a.Holder.Name,
		CostCenterID:      a.CostCenterID,
		Amount:            a.OriginalAmount,
		Currency:          a.Currency.String(),
		TreasuryAccountID: a.TreasuryAccountID,
		Status:            a.Status,
		SourceAdvanceID:   a.SourceAdvanceID,
	}
}

// AdvanceDecidedEvent is raised when an external approval decision is recorded
type AdvanceDecidedEvent struct {
	shared.BaseDomainEvent
	ReferenceNumber string        `json:"reference_number"`
	Status          AdvanceStatus `json:"status"`
	Note            string        `json:"note,omitempty"`
}

// NewAdvanceDecidedEvent creates an approval or rejection event
func NewAdvanceDecidedEvent(a *Advance, eventType string) *AdvanceDecidedEvent {
	return &AdvanceDecidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeAdvance, a.ID, a.TenantID),
		ReferenceNumber: a.ReferenceNumber,
		Status:          a.Status,
		Note:            a.DecisionNote,
	}
}

// AdvanceSettlementAppliedEvent is raised when a settlement lowers the remaining balance
type AdvanceSettlementAppliedEvent struct {
	shared.BaseDomainEvent
	ReferenceNumber string          `json:"reference_number"`
	SettlementID    uuid.UUID       `json:"settlement_id"`
	Kind            SettlementKind  `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          AdvanceStatus   `json:"status"`
}

// NewAdvanceSettlementAppliedEvent creates a new AdvanceSettlementAppliedEvent
func NewAdvanceSettlementAppliedEvent(a *Advance, s *Settlement) *AdvanceSettlementAppliedEvent {
	return &AdvanceSettlementAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAdvanceSettlementApplied, AggregateTypeAdvance, a.ID, a.TenantID),
		ReferenceNumber: a.ReferenceNumber,
		SettlementID:    s.ID,
		Kind:            s.Kind,
		Amount:          s.Amount,
		RemainingAmount: a.RemainingAmount,
		Status:          a.Status,
	}
}

// AdvanceTransferredEvent is raised on the source advance of a transfer
type AdvanceTransferredEvent struct {
	shared.BaseDomainEvent
	ReferenceNumber  string          `json:"reference_number"`
	NewAdvanceID     uuid.UUID       `json:"new_advance_id"`
	FromCostCenterID *uuid.UUID      `json:"from_cost_center_id,omitempty"`
	ToCostCenterID   *uuid.UUID      `json:"to_cost_center_id,omitempty"`
	CarriedAmount    decimal.Decimal `json:"carried_amount"`
}

// NewAdvanceTransferredEvent creates a new AdvanceTransferredEvent
func NewAdvanceTransferredEvent(source, successor *Advance) *AdvanceTransferredEvent {
	return &AdvanceTransferredEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeAdvanceTransferred, AggregateTypeAdvance, source.ID, source.TenantID),
		ReferenceNumber:  source.ReferenceNumber,
		NewAdvanceID:     successor.ID,
		FromCostCenterID: source.CostCenterID,
		ToCostCenterID:   successor.CostCenterID,
		CarriedAmount:    successor.OriginalAmount,
	}
}
