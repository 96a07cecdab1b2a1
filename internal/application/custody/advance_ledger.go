package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/erp/custody/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdvanceLedger issues advances and answers questions about them
type AdvanceLedger struct {
	advances    custody.AdvanceRepository
	settlements custody.SettlementRepository
	accounts    custody.TreasuryAccountLookup
	costCenters custody.CostCenterLookup
	guard       *advanceGuard
	metrics     *telemetry.CustodyMetrics
	logger      *zap.Logger
}

// LedgerDeps groups the collaborators shared by the custody services
type LedgerDeps struct {
	Advances    custody.AdvanceRepository
	Settlements custody.SettlementRepository
	TxScope     TransactionScope
	Locker      AdvanceLocker
	Accounts    custody.TreasuryAccountLookup
	CostCenters custody.CostCenterLookup
	Metrics     *telemetry.CustodyMetrics
	Logger      *zap.Logger
	Options     Options
}

// newGuard panics without a locker; NewServices supplies one shared by all three services.
func (d LedgerDeps) newGuard() *advanceGuard {
	if d.Locker == nil {
		panic("custody: LedgerDeps.Locker is required")
	}
	return &advanceGuard{
		locker:     d.Locker,
		txScope:    d.TxScope,
		maxRetries: d.Options.withDefaults().MaxConflictRetries,
		logger:     d.logger(),
	}
}

func (d LedgerDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// NewAdvanceLedger creates a new AdvanceLedger
func NewAdvanceLedger(deps LedgerDeps) *AdvanceLedger {
	return &AdvanceLedger{
		advances:    deps.Advances,
		settlements: deps.Settlements,
		accounts:    deps.Accounts,
		costCenters: deps.CostCenters,
		guard:       deps.newGuard(),
		metrics:     deps.Metrics,
		logger:      deps.logger(),
	}
}

// IssueAdvanceRequest is the input of IssueAdvance
type IssueAdvanceRequest struct {
	Holder            custody.Holder
	CostCenterID      *uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	TreasuryAccountID uuid.UUID
	// ReferenceNumber is generated when empty
	ReferenceNumber string
}

// OpenAdvancePage is one page of open advances
type OpenAdvancePage struct {
	Items    []custody.Advance
	Total    int64
	Page     int
	PageSize int
}

// ConservationReport compares an advance's balance with its settlements
type ConservationReport struct {
	AdvanceID       uuid.UUID
	OriginalAmount  decimal.Decimal
	RemainingAmount decimal.Decimal
	SettledTotal    decimal.Decimal
	Balanced        bool
}

// IssueAdvance creates a PENDING advance whose remaining balance equals its amount.
// It does not move money; debiting the treasury is the caller's concern once approved.
func (s *AdvanceLedger) IssueAdvance(ctx context.Context, scope shared.Scope, req IssueAdvanceRequest) (*custody.Advance, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "advance_ledger", "issue_advance",
		telemetry.SpanAttrTenantID, scope.TenantID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrCurrency, req.Currency,
	)
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	// positivity is judged at storage scale
	amount := req.Amount.Round(valueobject.MoneyScale)
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("advance amount must be positive")
	}
	if err := req.Holder.Validate(); err != nil {
		return nil, err
	}
	currency, err := valueobject.ParseCurrency(req.Currency)
	if err != nil {
		return nil, shared.NewValidationError("currency %q is not a valid ISO 4217 code", req.Currency)
	}
	if req.TreasuryAccountID == uuid.Nil {
		return nil, shared.NewValidationError("treasury account is required")
	}

	ok, err := s.accounts.AccountExists(ctx, scope, req.TreasuryAccountID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, asDependencyFailure("treasury account lookup", err)
	}
	if !ok {
		return nil, shared.NewValidationError("treasury account %s does not exist", req.TreasuryAccountID)
	}
	if err := checkCostCenter(ctx, s.costCenters, scope, req.CostCenterID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var advance *custody.Advance
	err = s.guard.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		ref := req.ReferenceNumber
		if ref == "" {
			generated, err := repos.Advances().GenerateReferenceNumber(ctx, scope)
			if err != nil {
				return fmt.Errorf("failed to generate reference number: %w", err)
			}
			ref = generated
		}

		a, err := custody.NewAdvance(scope, ref, req.Holder, req.CostCenterID, amount, currency, req.TreasuryAccountID)
		if err != nil {
			return err
		}
		if err := repos.Advances().Create(ctx, a); err != nil {
			return fmt.Errorf("failed to create advance: %w", err)
		}
		if err := repos.Outbox().Publish(ctx, shared.DrainEvents(a)...); err != nil {
			return fmt.Errorf("failed to publish advance events: %w", err)
		}
		advance = a
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordAdvanceIssued(ctx, advance.Currency.String())
	telemetry.SetAttributes(span, telemetry.SpanAttrAdvanceID, advance.ID.String())
	s.logger.Info("Advance issued",
		zap.String("advance_id", advance.ID.String()),
		zap.String("reference", advance.ReferenceNumber),
		zap.String("amount", advance.OriginalAmount.String()),
		zap.String("currency", advance.Currency.String()),
	)
	return advance, nil
}

// RecordApprovalDecision reflects the external approval or rejection of a PENDING advance
func (s *AdvanceLedger) RecordApprovalDecision(ctx context.Context, scope shared.Scope, id uuid.UUID, approved bool, note string) (*custody.Advance, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "advance_ledger", "record_approval_decision",
		telemetry.SpanAttrAdvanceID, id.String(),
		"approved", approved,
	)
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var advance *custody.Advance
	err := s.guard.run(ctx, id, func(repos TransactionalRepositories) error {
		a, err := lockAdvance(ctx, repos, scope, id)
		if err != nil {
			return err
		}
		if approved {
			err = a.Approve(note)
		} else {
			err = a.Reject(note)
		}
		if err != nil {
			return err
		}
		if err := repos.Advances().SaveWithLock(ctx, a); err != nil {
			return err
		}
		if err := repos.Outbox().Publish(ctx, shared.DrainEvents(a)...); err != nil {
			return fmt.Errorf("failed to publish advance events: %w", err)
		}
		advance = a
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Advance approval decision recorded",
		zap.String("advance_id", advance.ID.String()),
		zap.String("status", advance.Status.String()),
	)
	return advance, nil
}

// GetAdvance returns one advance visible in scope
func (s *AdvanceLedger) GetAdvance(ctx context.Context, scope shared.Scope, id uuid.UUID) (*custody.Advance, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	advance, err := s.advances.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("advance", id)
		}
		return nil, fmt.Errorf("failed to get advance: %w", err)
	}
	return advance, nil
}

// ListOpenAdvances returns APPROVED or PARTIALLY_SETTLED advances with a positive
// remaining balance, most recent first.
func (s *AdvanceLedger) ListOpenAdvances(ctx context.Context, scope shared.Scope, filter custody.OpenAdvanceFilter) (*OpenAdvancePage, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "advance_ledger", "list_open_advances")
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if filter.GeneralOnly && filter.CostCenterID != nil {
		return nil, shared.NewValidationError("cost center and general-only filters are mutually exclusive")
	}
	filter.Filter = filter.Filter.Normalize()

	items, total, err := s.advances.FindOpen(ctx, scope, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list open advances: %w", err)
	}
	return &OpenAdvancePage{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ListSettlements returns the settlements of an advance in the order they were applied
func (s *AdvanceLedger) ListSettlements(ctx context.Context, scope shared.Scope, advanceID uuid.UUID) ([]custody.Settlement, error) {
	if _, err := s.GetAdvance(ctx, scope, advanceID); err != nil {
		return nil, err
	}
	settlements, err := s.settlements.FindByAdvance(ctx, scope, advanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return settlements, nil
}

// CheckConservation verifies that the settlements of an advance account exactly
// for the difference between its original and remaining amounts.
func (s *AdvanceLedger) CheckConservation(ctx context.Context, scope shared.Scope, advanceID uuid.UUID) (*ConservationReport, error) {
	advance, err := s.GetAdvance(ctx, scope, advanceID)
	if err != nil {
		return nil, err
	}
	settled, err := s.settlements.SumByAdvance(ctx, scope, advanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum settlements: %w", err)
	}

	report := &ConservationReport{
		AdvanceID:       advance.ID,
		OriginalAmount:  advance.OriginalAmount,
		RemainingAmount: advance.RemainingAmount,
		SettledTotal:    settled,
		Balanced:        settled.Equal(advance.SettledAmount()),
	}
	if !report.Balanced {
		s.logger.Error("Advance balance does not match its settlements",
			zap.String("advance_id", advance.ID.String()),
			zap.String("settled_total", settled.String()),
			zap.String("expected", advance.SettledAmount().String()),
		)
	}
	return report, nil
}

func checkCostCenter(ctx context.Context, lookup custody.CostCenterLookup, scope shared.Scope, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	ok, err := lookup.CostCenterExists(ctx, scope, *id)
	if err != nil {
		return asDependencyFailure("cost center lookup", err)
	}
	if !ok {
		return shared.NewNotFoundError("cost center", *id)
	}
	return nil
}

// asDependencyFailure passes domain errors through and reports anything else
// as a failure of the named collaborator.
func asDependencyFailure(dependency string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.NewExternalDependencyError(dependency, err)
}
