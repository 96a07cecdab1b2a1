package custody

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferRecord links a closed advance to the advance that replaced it.
// It is derived from the successor's SourceAdvanceID and is not stored separately.
type TransferRecord struct {
	ClosedAdvanceID uuid.UUID       `json:"closed_advance_id"`
	NewAdvanceID    uuid.UUID       `json:"new_advance_id"`
	CarriedAmount   decimal.Decimal `json:"carried_amount"`
}

// NewTransferRecord describes the transfer from closed to successor
func NewTransferRecord(closed, successor *Advance) TransferRecord {
	return TransferRecord{
		ClosedAdvanceID: closed.ID,
		NewAdvanceID:    successor.ID,
		CarriedAmount:   successor.OriginalAmount,
	}
}
