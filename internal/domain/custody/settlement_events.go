package custody

import (
	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventTypeSettlementRecorded is raised once per persisted settlement
const EventTypeSettlementRecorded = "SettlementRecorded"

// SettlementRecordedEvent describes a settlement at the moment it was applied
type SettlementRecordedEvent struct {
	shared.BaseDomainEvent
	Number                string          `json:"number"`
	AdvanceID             uuid.UUID       `json:"advance_id"`
	AdvanceReference      string          `json:"advance_reference"`
	Kind                  SettlementKind  `json:"kind"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	CostCenterID          *uuid.UUID      `json:"cost_center_id,omitempty"`
	VendorID              *uuid.UUID      `json:"vendor_id,omitempty"`
	LineCount             int             `json:"line_count,omitempty"`
	TreasuryTransactionID *string         `json:"treasury_transaction_id,omitempty"`
}

// NewSettlementRecordedEvent creates a new SettlementRecordedEvent
func NewSettlementRecordedEvent(s *Settlement, advance *Advance) *SettlementRecordedEvent {
	e := &SettlementRecordedEvent{
		BaseDomainEvent:       shared.NewBaseDomainEvent(EventTypeSettlementRecorded, AggregateTypeSettlement, s.ID, s.TenantID),
		Number:                s.Number,
		AdvanceID:             s.AdvanceID,
		AdvanceReference:      advance.ReferenceNumber,
		Kind:                  s.Kind,
		Amount:                s.Amount,
		Currency:              s.Currency.String(),
		CostCenterID:          s.CostCenterID,
		TreasuryTransactionID: s.TreasuryTransactionID,
	}
	if s.PurchaseOrder != nil {
		vendorID := s.PurchaseOrder.vendor.ID
		e.VendorID = &vendorID
		e.LineCount = len(s.PurchaseOrder.lineItems)
	}
	return e
}
