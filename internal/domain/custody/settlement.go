package custody

import (
	"strings"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementKind distinguishes documented spending from returned cash
type SettlementKind string

const (
	SettlementKindExpense SettlementKind = "EXPENSE"
	SettlementKindReturn  SettlementKind = "RETURN"
)

// IsValid checks if the kind is a known value
func (k SettlementKind) IsValid() bool {
	switch k {
	case SettlementKindExpense, SettlementKindReturn:
		return true
	}
	return false
}

func (k SettlementKind) String() string {
	return string(k)
}

// Settlement is one application of funds against an advance. It is immutable once created.
type Settlement struct {
	shared.ScopedAggregateRoot
	Number                string
	AdvanceID             uuid.UUID
	Kind                  SettlementKind
	Amount                decimal.Decimal
	Currency              valueobject.Currency
	CostCenterID          *uuid.UUID
	PurchaseOrder         *PurchaseOrderSnapshot
	TreasuryAccountID     *uuid.UUID
	TreasuryTransactionID *string
}

// NewExpenseSettlement builds an expense settlement whose amount is the PO total
func NewExpenseSettlement(scope shared.Scope, id uuid.UUID, number string, advance *Advance, po *PurchaseOrderSnapshot) (*Settlement, error) {
	if po == nil || len(po.lineItems) == 0 {
		return nil, shared.NewValidationError("expense settlement requires a purchase order with at least one line item")
	}
	s := newSettlement(scope, id, number, advance, SettlementKindExpense, po.Total())
	s.PurchaseOrder = po
	s.AddDomainEvent(NewSettlementRecordedEvent(s, advance))
	return s, nil
}

// NewReturnSettlement builds a cash-return settlement backed by a treasury inflow
func NewReturnSettlement(scope shared.Scope, id uuid.UUID, number string, advance *Advance, amount decimal.Decimal, treasuryAccountID uuid.UUID, treasuryTransactionID string) (*Settlement, error) {
	amount = amount.Round(valueobject.MoneyScale)
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("return amount must be positive")
	}
	if treasuryAccountID == uuid.Nil {
		return nil, shared.NewValidationError("treasury account is required")
	}
	if strings.TrimSpace(treasuryTransactionID) == "" {
		return nil, shared.NewValidationError("treasury transaction id is required for a return settlement")
	}
	s := newSettlement(scope, id, number, advance, SettlementKindReturn, amount)
	s.TreasuryAccountID = &treasuryAccountID
	s.TreasuryTransactionID = &treasuryTransactionID
	s.AddDomainEvent(NewSettlementRecordedEvent(s, advance))
	return s, nil
}

func newSettlement(scope shared.Scope, id uuid.UUID, number string, advance *Advance, kind SettlementKind, amount decimal.Decimal) *Settlement {
	root := shared.NewScopedAggregateRoot(scope)
	root.BaseEntity = shared.NewBaseEntityWithID(id)
	root.TenantID = advance.TenantID
	root.BranchID = advance.BranchID
	return &Settlement{
		ScopedAggregateRoot: root,
		Number:              number,
		AdvanceID:           advance.ID,
		Kind:                kind,
		Amount:              amount,
		Currency:            advance.Currency,
		CostCenterID:        advance.CostCenterID,
	}
}

// Money returns the settled amount with its currency
func (s *Settlement) Money() valueobject.Money {
	return valueobject.MustMoney(s.Amount, s.Currency)
}

// LineItem is one row of a purchase-order snapshot
type LineItem struct {
	Line        int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// NewLineItem validates a line and computes its total
func NewLineItem(line int, description string, quantity, unitPrice decimal.Decimal) (LineItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return LineItem{}, shared.NewValidationError("line %d: description is required", line)
	}
	if !quantity.IsPositive() {
		return LineItem{}, shared.NewValidationError("line %d: quantity must be positive", line)
	}
	if unitPrice.IsNegative() {
		return LineItem{}, shared.NewValidationError("line %d: unit price must not be negative", line)
	}
	return LineItem{
		Line:        line,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		LineTotal:   quantity.Mul(unitPrice).Round(valueobject.MoneyScale),
	}, nil
}

// VendorRef is the vendor identity captured on a purchase order
type VendorRef struct {
	ID    uuid.UUID
	Name  string
	Phone string
	Email string
}

// PurchaseOrderSnapshot is the immutable purchase record behind an expense settlement
type PurchaseOrderSnapshot struct {
	vendor    VendorRef
	lineItems []LineItem
}

// NewPurchaseOrderSnapshot freezes a vendor and its line items
func NewPurchaseOrderSnapshot(vendor VendorRef, items []LineItem) (*PurchaseOrderSnapshot, error) {
	if vendor.ID == uuid.Nil {
		return nil, shared.NewValidationError("purchase order requires a vendor")
	}
	if len(items) == 0 {
		return nil, shared.NewValidationError("purchase order requires at least one line item")
	}
	copied := make([]LineItem, len(items))
	copy(copied, items)
	return &PurchaseOrderSnapshot{vendor: vendor, lineItems: copied}, nil
}

// Vendor returns the vendor identity
func (p *PurchaseOrderSnapshot) Vendor() VendorRef {
	return p.vendor
}

// LineItems returns a copy of the line items in order
func (p *PurchaseOrderSnapshot) LineItems() []LineItem {
	out := make([]LineItem, len(p.lineItems))
	copy(out, p.lineItems)
	return out
}

// Total is the sum of all line totals
func (p *PurchaseOrderSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.lineItems {
		total = total.Add(item.LineTotal)
	}
	return total
}

// SumLineTotals adds up line totals without building a snapshot
func SumLineTotals(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}
	return total
}
