package custody

import (
	"context"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenAdvanceFilter narrows ListOpenAdvances
type OpenAdvanceFilter struct {
	shared.Filter
	HolderRef    *uuid.UUID
	HolderName   string
	CostCenterID *uuid.UUID
	// GeneralOnly restricts the result to advances without a cost center
	GeneralOnly bool
}

// AdvanceRepository persists advances. Every read is confined to the given scope.
type AdvanceRepository interface {
	FindByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*Advance, error)
	// FindByIDForUpdate loads the advance holding a row lock until the transaction ends
	FindByIDForUpdate(ctx context.Context, scope shared.Scope, id uuid.UUID) (*Advance, error)
	FindOpen(ctx context.Context, scope shared.Scope, filter OpenAdvanceFilter) ([]Advance, int64, error)
	Create(ctx context.Context, advance *Advance) error
	// SaveWithLock updates the advance only if the stored version is advance.Version-1
	SaveWithLock(ctx context.Context, advance *Advance) error
	GenerateReferenceNumber(ctx context.Context, scope shared.Scope) (string, error)
}

// SettlementRepository persists settlements and their purchase-order lines
type SettlementRepository interface {
	Create(ctx context.Context, settlement *Settlement) error
	FindByAdvance(ctx context.Context, scope shared.Scope, advanceID uuid.UUID) ([]Settlement, error)
	SumByAdvance(ctx context.Context, scope shared.Scope, advanceID uuid.UUID) (decimal.Decimal, error)
	GenerateSettlementNumber(ctx context.Context, scope shared.Scope) (string, error)
}

// VendorDirectory resolves and registers vendors. Finders return shared.ErrNotFound when absent.
type VendorDirectory interface {
	FindByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*Vendor, error)
	FindByPhone(ctx context.Context, scope shared.Scope, phone string) (*Vendor, error)
	FindByName(ctx context.Context, scope shared.Scope, name string) (*Vendor, error)
	Create(ctx context.Context, vendor *Vendor) error
}
