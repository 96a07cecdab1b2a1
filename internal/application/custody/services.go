package custody

import "github.com/erp/custody/internal/domain/custody"

// Services bundles the custody engine around one shared locker
type Services struct {
	Ledger      *AdvanceLedger
	Settlements *SettlementProcessor
	Transfers   *TransferCoordinator
}

// NewServices wires the ledger, settlement processor and transfer coordinator
func NewServices(deps LedgerDeps, linker *PurchaseOrderLinker, treasury custody.TreasuryGateway) *Services {
	if deps.Locker == nil {
		deps.Locker = NewLocalAdvanceLocker()
	}
	return &Services{
		Ledger:      NewAdvanceLedger(deps),
		Settlements: NewSettlementProcessor(deps, linker, treasury),
		Transfers:   NewTransferCoordinator(deps),
	}
}
