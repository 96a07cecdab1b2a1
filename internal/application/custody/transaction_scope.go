package custody

import (
	"context"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
)

// TransactionScope provides transactional access to custody repositories.
// If fn returns an error the transaction is rolled back, otherwise it is committed.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all custody repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
//   - Advances: the Advance aggregate root; the only path that mutates remaining balances.
//   - Settlements: append-only settlement records with their purchase-order lines.
//   - Vendors: resolve-or-create vendor identities for purchase orders.
//   - Outbox: domain events written alongside the state change.
type TransactionalRepositories interface {
	Advances() custody.AdvanceRepository
	Settlements() custody.SettlementRepository
	Vendors() custody.VendorDirectory
	Outbox() shared.EventPublisher
}
