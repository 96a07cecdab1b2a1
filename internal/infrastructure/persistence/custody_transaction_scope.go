package persistence

import (
	"context"

	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/event"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db        *gorm.DB
	publisher *event.OutboxPublisher
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, publisher *event.OutboxPublisher) *GormTransactionScope {
	return &GormTransactionScope{db: db, publisher: publisher}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appcustody.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx, publisher: s.publisher}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx        *gorm.DB
	publisher *event.OutboxPublisher
}

// Advances returns the advance repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Advances() custody.AdvanceRepository {
	return NewGormAdvanceRepository(r.tx)
}

// Settlements returns the settlement repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Settlements() custody.SettlementRepository {
	return NewGormSettlementRepository(r.tx)
}

// Vendors returns the vendor directory scoped to the current transaction.
func (r *gormTransactionalRepositories) Vendors() custody.VendorDirectory {
	return NewGormVendorDirectory(r.tx)
}

// Outbox returns a publisher writing outbox rows in the current transaction.
func (r *gormTransactionalRepositories) Outbox() shared.EventPublisher {
	return r.publisher.Bind(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appcustody.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appcustody.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
