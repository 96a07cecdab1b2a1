package custody

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdvanceStatus represents the lifecycle state of a cash advance
type AdvanceStatus string

const (
	AdvanceStatusPending          AdvanceStatus = "PENDING"
	AdvanceStatusApproved         AdvanceStatus = "APPROVED"
	AdvanceStatusRejected         AdvanceStatus = "REJECTED"
	AdvanceStatusPartiallySettled AdvanceStatus = "PARTIALLY_SETTLED"
	AdvanceStatusSettled          AdvanceStatus = "SETTLED"
	AdvanceStatusTransferred      AdvanceStatus = "TRANSFERRED"
)

// AllAdvanceStatuses lists every status in lifecycle order
var AllAdvanceStatuses = []AdvanceStatus{
	AdvanceStatusPending,
	AdvanceStatusApproved,
	AdvanceStatusRejected,
	AdvanceStatusPartiallySettled,
	AdvanceStatusSettled,
	AdvanceStatusTransferred,
}

// IsValid checks if the status is a known value
func (s AdvanceStatus) IsValid() bool {
	switch s {
	case AdvanceStatusPending, AdvanceStatusApproved, AdvanceStatusRejected,
		AdvanceStatusPartiallySettled, AdvanceStatusSettled, AdvanceStatusTransferred:
		return true
	}
	return false
}

// String returns the string representation
func (s AdvanceStatus) String() string {
	return string(s)
}

// AcceptsFunds reports whether settlements or transfers may act on an advance in this status.
// The remaining balance must be positive as well; see Advance.IsEligible.
func (s AdvanceStatus) AcceptsFunds() bool {
	switch s {
	case AdvanceStatusApproved, AdvanceStatusPartiallySettled:
		return true
	case AdvanceStatusPending, AdvanceStatusRejected, AdvanceStatusSettled, AdvanceStatusTransferred:
		return false
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s AdvanceStatus) IsTerminal() bool {
	switch s {
	case AdvanceStatusRejected, AdvanceStatusSettled, AdvanceStatusTransferred:
		return true
	case AdvanceStatusPending, AdvanceStatusApproved, AdvanceStatusPartiallySettled:
		return false
	}
	return false
}

// HolderKind distinguishes employees from external holders
type HolderKind string

const (
	HolderKindEmployee HolderKind = "EMPLOYEE"
	HolderKindExternal HolderKind = "EXTERNAL"
)

// Holder identifies who received the cash. Employees are referenced by id only;
// external agents have no id and are identified by name.
type Holder struct {
	Kind HolderKind
	Ref  *uuid.UUID
	Name string
}

// EmployeeHolder builds a holder for an internal employee
func EmployeeHolder(ref uuid.UUID) Holder {
	return Holder{Kind: HolderKindEmployee, Ref: &ref}
}

// ExternalHolder builds a holder for an external representative
func ExternalHolder(name string) Holder {
	return Holder{Kind: HolderKindExternal, Name: strings.TrimSpace(name)}
}

// Validate checks that the holder carries the identity its kind requires
func (h Holder) Validate() error {
	switch h.Kind {
	case HolderKindEmployee:
		if h.Ref == nil || *h.Ref == uuid.Nil {
			return shared.NewValidationError("employee holder requires a holder reference")
		}
		if h.Name != "" {
			return shared.NewValidationError("employee holder must not carry a display name")
		}
	case HolderKindExternal:
		if strings.TrimSpace(h.Name) == "" {
			return shared.NewValidationError("external holder requires a name")
		}
		if h.Ref != nil {
			return shared.NewValidationError("external holder must not carry a holder reference")
		}
	default:
		return shared.NewValidationError("holder identity is required")
	}
	return nil
}

// Advance is the aggregate root for a petty-cash custody grant
type Advance struct {
	shared.ScopedAggregateRoot
	ReferenceNumber   string
	Holder            Holder
	CostCenterID      *uuid.UUID
	OriginalAmount    decimal.Decimal
	RemainingAmount   decimal.Decimal
	Currency          valueobject.Currency
	TreasuryAccountID uuid.UUID
	Status            AdvanceStatus
	SourceAdvanceID   *uuid.UUID
	DecisionNote      string
	SettledAt         *time.Time
}

// NewAdvance issues a new advance in PENDING status
func NewAdvance(
	scope shared.Scope,
	referenceNumber string,
	holder Holder,
	costCenterID *uuid.UUID,
	amount decimal.Decimal,
	currency valueobject.Currency,
	treasuryAccountID uuid.UUID,
) (*Advance, error) {
	if err := holder.Validate(); err != nil {
		return nil, err
	}
	amount = amount.Round(valueobject.MoneyScale)
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("advance amount must be positive")
	}
	if currency == "" {
		return nil, shared.NewValidationError("currency is required")
	}
	if treasuryAccountID == uuid.Nil {
		return nil, shared.NewValidationError("treasury account is required")
	}
	if strings.TrimSpace(referenceNumber) == "" {
		return nil, shared.NewValidationError("reference number is required")
	}

	a := &Advance{
		ScopedAggregateRoot: shared.NewScopedAggregateRoot(scope),
		ReferenceNumber:     strings.TrimSpace(referenceNumber),
		Holder:              holder,
		CostCenterID:        costCenterID,
		OriginalAmount:      amount,
		RemainingAmount:     amount,
		Currency:            currency,
		TreasuryAccountID:   treasuryAccountID,
		Status:              AdvanceStatusPending,
	}
	a.AddDomainEvent(NewAdvanceIssuedEvent(a))
	return a, nil
}

// IsEligible reports whether the advance may be settled or transferred
func (a *Advance) IsEligible() bool {
	return a.Status.AcceptsFunds() && a.RemainingAmount.IsPositive()
}

// SettledAmount is the part of the original amount already accounted for
func (a *Advance) SettledAmount() decimal.Decimal {
	return a.OriginalAmount.Sub(a.RemainingAmount)
}

// Remaining returns the remaining balance as money
func (a *Advance) Remaining() valueobject.Money {
	return valueobject.MustMoney(a.RemainingAmount, a.Currency)
}

// Approve records an external approval decision
func (a *Advance) Approve(note string) error {
	if a.Status != AdvanceStatusPending {
		return a.notEligible("approve")
	}
	a.Status = AdvanceStatusApproved
	a.DecisionNote = note
	a.Touch()
	a.IncrementVersion()
	a.AddDomainEvent(NewAdvanceDecidedEvent(a, EventTypeAdvanceApproved))
	return nil
}

// Reject records an external rejection decision
func (a *Advance) Reject(note string) error {
	if a.Status != AdvanceStatusPending {
		return a.notEligible("reject")
	}
	a.Status = AdvanceStatusRejected
	a.DecisionNote = note
	a.Touch()
	a.IncrementVersion()
	a.AddDomainEvent(NewAdvanceDecidedEvent(a, EventTypeAdvanceRejected))
	return nil
}

// EnsureSettleable fails with NOT_ELIGIBLE unless the advance accepts settlements
func (a *Advance) EnsureSettleable() error {
	if !a.IsEligible() {
		return a.notEligible("settle")
	}
	return nil
}

// CheckSettleable validates that amount may be settled against the advance now
func (a *Advance) CheckSettleable(amount decimal.Decimal) error {
	if err := a.EnsureSettleable(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return shared.NewValidationError("settlement amount must be positive")
	}
	if amount.GreaterThan(a.RemainingAmount) {
		return shared.NewDomainError(shared.CodeAmountExceedsBalance,
			fmt.Sprintf("Settlement amount %s exceeds remaining balance %s of advance %s",
				amount.StringFixed(2), a.RemainingAmount.StringFixed(2), a.ReferenceNumber))
	}
	return nil
}

// ApplySettlement decrements the remaining balance and derives the new status.
// It is the only operation that lowers RemainingAmount.
func (a *Advance) ApplySettlement(settlement *Settlement) error {
	if settlement.AdvanceID != a.ID {
		return shared.NewValidationError("settlement belongs to advance %s", settlement.AdvanceID)
	}
	if settlement.Currency != a.Currency {
		return shared.NewValidationError("settlement currency %s does not match advance currency %s", settlement.Currency, a.Currency)
	}
	if err := a.CheckSettleable(settlement.Amount); err != nil {
		return err
	}

	a.RemainingAmount = a.RemainingAmount.Sub(settlement.Amount)
	if a.RemainingAmount.IsZero() {
		now := time.Now()
		a.Status = AdvanceStatusSettled
		a.SettledAt = &now
	} else {
		a.Status = AdvanceStatusPartiallySettled
	}
	a.Touch()
	a.IncrementVersion()
	a.AddDomainEvent(NewAdvanceSettlementAppliedEvent(a, settlement))
	return nil
}

// CanTransferTo checks that the advance may move to newCostCenterID
func (a *Advance) CanTransferTo(newCostCenterID *uuid.UUID) error {
	if !a.IsEligible() {
		return a.notEligible("transfer")
	}
	if sameCostCenter(a.CostCenterID, newCostCenterID) {
		return shared.NewDomainError(shared.CodeNotEligible,
			fmt.Sprintf("Advance %s is already in the requested cost center", a.ReferenceNumber))
	}
	return nil
}

// Transfer closes this advance and returns its successor in another cost center.
// The successor carries the remaining balance; this advance keeps its remaining
// amount frozen as the historical carried value.
func (a *Advance) Transfer(scope shared.Scope, newCostCenterID *uuid.UUID) (*Advance, error) {
	if err := a.CanTransferTo(newCostCenterID); err != nil {
		return nil, err
	}

	sourceID := a.ID
	successorScope := scope
	successorScope.TenantID = a.TenantID
	successorScope.BranchID = a.BranchID
	successor := &Advance{
		ScopedAggregateRoot: shared.NewScopedAggregateRoot(successorScope),
		ReferenceNumber:     TransferReference(a.ReferenceNumber),
		Holder:              a.Holder,
		CostCenterID:        newCostCenterID,
		OriginalAmount:      a.RemainingAmount,
		RemainingAmount:     a.RemainingAmount,
		Currency:            a.Currency,
		TreasuryAccountID:   a.TreasuryAccountID,
		Status:              AdvanceStatusApproved,
		SourceAdvanceID:     &sourceID,
	}
	successor.AddDomainEvent(NewAdvanceIssuedEvent(successor))

	a.Status = AdvanceStatusTransferred
	a.Touch()
	a.IncrementVersion()
	a.AddDomainEvent(NewAdvanceTransferredEvent(a, successor))
	return successor, nil
}

func (a *Advance) notEligible(action string) error {
	return shared.NewDomainError(shared.CodeNotEligible,
		fmt.Sprintf("Cannot %s advance %s in status %s with remaining %s",
			action, a.ReferenceNumber, a.Status, a.RemainingAmount.StringFixed(2)))
}

func sameCostCenter(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

var transferSuffix = regexp.MustCompile(`-T(\d+)$`)

// TransferReference derives the successor reference: ADV-1 -> ADV-1-T1 -> ADV-1-T2
func TransferReference(ref string) string {
	if m := transferSuffix.FindStringSubmatchIndex(ref); m != nil {
		n, _ := strconv.Atoi(ref[m[2]:m[3]])
		return fmt.Sprintf("%s-T%d", ref[:m[0]], n+1)
	}
	return ref + "-T1"
}
