package event

import (
	"github.com/erp/custody/internal/domain/custody"
)

// RegisterCustodyEvents registers every custody event type with the serializer
// so that outbox payloads can be read back by type name.
func RegisterCustodyEvents(serializer *EventSerializer) {
	// Advance lifecycle
	serializer.Register(custody.EventTypeAdvanceIssued, &custody.AdvanceIssuedEvent{})
	serializer.Register(custody.EventTypeAdvanceApproved, &custody.AdvanceDecidedEvent{})
	serializer.Register(custody.EventTypeAdvanceRejected, &custody.AdvanceDecidedEvent{})
	serializer.Register(custody.EventTypeAdvanceSettlementApplied, &custody.AdvanceSettlementAppliedEvent{})
	serializer.Register(custody.EventTypeAdvanceTransferred, &custody.AdvanceTransferredEvent{})

	// Settlements
	serializer.Register(custody.EventTypeSettlementRecorded, &custody.SettlementRecordedEvent{})
}

// NewCustodySerializer returns a serializer with all custody events registered
func NewCustodySerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterCustodyEvents(s)
	return s
}
