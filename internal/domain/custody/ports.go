package custody

import (
	"context"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// TreasuryDirection is the direction of money movement on a treasury account
type TreasuryDirection string

const (
	TreasuryInflow  TreasuryDirection = "INFLOW"
	TreasuryOutflow TreasuryDirection = "OUTFLOW"
)

// Treasury reference types
const (
	TreasuryReferenceSettlement         = "settlement"
	TreasuryReferenceSettlementReversal = "settlement_reversal"
)

// TreasuryTransaction is a request to record money movement on an account
type TreasuryTransaction struct {
	TenantID      uuid.UUID
	AccountID     uuid.UUID
	Direction     TreasuryDirection
	Amount        valueobject.Money
	ReferenceType string
	ReferenceID   uuid.UUID
	Description   string
}

// IdempotencyKey identifies the transaction for safe retries on the treasury side
func (t TreasuryTransaction) IdempotencyKey() string {
	return t.ReferenceType + ":" + t.ReferenceID.String()
}

// TreasuryReceipt is returned by the treasury for a recorded transaction
type TreasuryReceipt struct {
	TransactionID string
}

// TreasuryGateway records inflow/outflow transactions on the external ledger.
// Implementations report unreachable or failing ledgers as EXTERNAL_DEPENDENCY_FAILURE.
type TreasuryGateway interface {
	CreateTransaction(ctx context.Context, tx TreasuryTransaction) (TreasuryReceipt, error)
}

// TreasuryAccountLookup resolves treasury accounts
type TreasuryAccountLookup interface {
	AccountExists(ctx context.Context, scope shared.Scope, accountID uuid.UUID) (bool, error)
}

// CostCenterLookup resolves cost centers (projects)
type CostCenterLookup interface {
	CostCenterExists(ctx context.Context, scope shared.Scope, costCenterID uuid.UUID) (bool, error)
}
