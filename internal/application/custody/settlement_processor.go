package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/erp/custody/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SettlementProcessor applies settlements against advances. It is the only
// writer of settlements and the only caller that lowers a remaining balance.
type SettlementProcessor struct {
	guard    *advanceGuard
	linker   *PurchaseOrderLinker
	treasury custody.TreasuryGateway
	accounts custody.TreasuryAccountLookup
	timeout  time.Duration
	metrics  *telemetry.CustodyMetrics
	logger   *zap.Logger
}

// NewSettlementProcessor creates a new SettlementProcessor
func NewSettlementProcessor(deps LedgerDeps, linker *PurchaseOrderLinker, treasury custody.TreasuryGateway) *SettlementProcessor {
	return &SettlementProcessor{
		guard:    deps.newGuard(),
		linker:   linker,
		treasury: treasury,
		accounts: deps.Accounts,
		timeout:  deps.Options.withDefaults().TreasuryTimeout,
		metrics:  deps.Metrics,
		logger:   deps.logger(),
	}
}

// SettleExpenseRequest documents how part of an advance was spent
type SettleExpenseRequest struct {
	AdvanceID uuid.UUID
	Vendor    VendorInput
	LineItems []LineItemInput
}

// SettleReturnRequest returns unspent cash of an advance to a treasury account
type SettleReturnRequest struct {
	AdvanceID         uuid.UUID
	Amount            decimal.Decimal
	TreasuryAccountID uuid.UUID
	Description       string
}

// SettleAsExpense records a purchase against the advance. The settlement amount is
// always the sum of the purchase-order line totals. No money moves in the treasury.
func (s *SettlementProcessor) SettleAsExpense(ctx context.Context, scope shared.Scope, req SettleExpenseRequest) (*custody.Settlement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "settle_as_expense",
		telemetry.SpanAttrAdvanceID, req.AdvanceID.String(),
		"line_count", len(req.LineItems),
	)
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	settlementID := uuid.New()
	var (
		settlement *custody.Settlement
		advance    *custody.Advance
	)
	err := s.guard.run(ctx, req.AdvanceID, func(repos TransactionalRepositories) error {
		a, err := lockAdvance(ctx, repos, scope, req.AdvanceID)
		if err != nil {
			return err
		}
		if err := a.EnsureSettleable(); err != nil {
			return err
		}

		items, err := s.linker.BuildLineItems(req.LineItems)
		if err != nil {
			return err
		}
		amount := custody.SumLineTotals(items)
		if !amount.IsPositive() {
			return shared.NewDomainError(shared.CodeAmountExceedsBalance, "Expense total must be positive")
		}
		if err := a.CheckSettleable(amount); err != nil {
			return err
		}

		po, err := s.linker.BuildSnapshot(ctx, scope, repos.Vendors(), req.Vendor, items)
		if err != nil {
			return err
		}
		number, err := repos.Settlements().GenerateSettlementNumber(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to generate settlement number: %w", err)
		}
		st, err := custody.NewExpenseSettlement(scope, settlementID, number, a, po)
		if err != nil {
			return err
		}

		if err := s.apply(ctx, repos, a, st); err != nil {
			return err
		}
		settlement, advance = st, a
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logRejected("expense", req.AdvanceID, err)
		return nil, err
	}

	s.recordApplied(ctx, span, advance, settlement)
	return settlement, nil
}

// SettleAsReturn records unspent cash flowing back into a treasury account. The
// treasury inflow and the settlement either both happen or neither does.
func (s *SettlementProcessor) SettleAsReturn(ctx context.Context, scope shared.Scope, req SettleReturnRequest) (*custody.Settlement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "settle_as_return",
		telemetry.SpanAttrAdvanceID, req.AdvanceID.String(),
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrTreasuryAccount, req.TreasuryAccountID.String(),
	)
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}
	amount := req.Amount.Round(valueobject.MoneyScale)

	settlementID := uuid.New()
	var (
		settlement *custody.Settlement
		advance    *custody.Advance
		receipt    *custody.TreasuryReceipt
		inflow     custody.TreasuryTransaction
	)
	err := s.guard.run(ctx, req.AdvanceID, func(repos TransactionalRepositories) error {
		a, err := lockAdvance(ctx, repos, scope, req.AdvanceID)
		if err != nil {
			return err
		}
		if err := a.CheckSettleable(amount); err != nil {
			return err
		}
		if err := s.checkAccount(ctx, scope, req.TreasuryAccountID); err != nil {
			return err
		}

		number, err := repos.Settlements().GenerateSettlementNumber(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to generate settlement number: %w", err)
		}

		inflow = custody.TreasuryTransaction{
			TenantID:      a.TenantID,
			AccountID:     req.TreasuryAccountID,
			Direction:     custody.TreasuryInflow,
			Amount:        valueobject.MustMoney(amount, a.Currency),
			ReferenceType: custody.TreasuryReferenceSettlement,
			ReferenceID:   settlementID,
			Description:   returnDescription(req.Description, a, number),
		}
		r, err := s.callTreasury(ctx, inflow)
		if err != nil {
			return err
		}
		receipt = &r
		telemetry.AddEvent(span, "treasury_inflow_recorded", "transaction_id", r.TransactionID)

		st, err := custody.NewReturnSettlement(scope, settlementID, number, a, amount, req.TreasuryAccountID, r.TransactionID)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, repos, a, st); err != nil {
			return err
		}
		settlement, advance = st, a
		return nil
	})
	if err != nil {
		if receipt != nil {
			s.compensate(ctx, inflow, *receipt, err)
		}
		telemetry.RecordError(span, err)
		s.logRejected("return", req.AdvanceID, err)
		return nil, err
	}

	s.recordApplied(ctx, span, advance, settlement)
	return settlement, nil
}

// apply lowers the advance balance and writes the settlement with its events
func (s *SettlementProcessor) apply(ctx context.Context, repos TransactionalRepositories, a *custody.Advance, st *custody.Settlement) error {
	if err := a.ApplySettlement(st); err != nil {
		return err
	}
	if err := repos.Advances().SaveWithLock(ctx, a); err != nil {
		return err
	}
	if err := repos.Settlements().Create(ctx, st); err != nil {
		return fmt.Errorf("failed to create settlement: %w", err)
	}
	if err := repos.Outbox().Publish(ctx, shared.DrainEvents(st, a)...); err != nil {
		return fmt.Errorf("failed to publish settlement events: %w", err)
	}
	return nil
}

func (s *SettlementProcessor) checkAccount(ctx context.Context, scope shared.Scope, accountID uuid.UUID) error {
	if accountID == uuid.Nil {
		return shared.NewValidationError("treasury account is required")
	}
	ok, err := s.accounts.AccountExists(ctx, scope, accountID)
	if err != nil {
		return asDependencyFailure("treasury account lookup", err)
	}
	if !ok {
		return shared.NewValidationError("treasury account %s does not exist", accountID)
	}
	return nil
}

// callTreasury invokes the gateway with a bounded timeout
func (s *SettlementProcessor) callTreasury(ctx context.Context, tx custody.TreasuryTransaction) (custody.TreasuryReceipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.treasury.CreateTransaction(callCtx, tx)
	s.metrics.RecordTreasuryCall(ctx, time.Since(start), err)
	if err != nil {
		s.logger.Error("Treasury transaction failed",
			zap.String("reference", tx.IdempotencyKey()),
			zap.String("direction", string(tx.Direction)),
			zap.String("amount", tx.Amount.String()),
			zap.Error(err),
		)
		var de *shared.DomainError
		if errors.As(err, &de) && de.Code == shared.CodeNotFound {
			return custody.TreasuryReceipt{}, err
		}
		if errors.As(err, &de) && de.Code == shared.CodeExternalDependency {
			return custody.TreasuryReceipt{}, err
		}
		return custody.TreasuryReceipt{}, shared.NewExternalDependencyError("treasury", err)
	}
	if receipt.TransactionID == "" {
		return custody.TreasuryReceipt{}, shared.NewExternalDependencyError("treasury", errors.New("empty transaction id"))
	}
	return receipt, nil
}

// compensate reverses a recorded inflow whose settlement could not be committed.
// Failure to compensate is logged for manual reconciliation; the original error is kept.
func (s *SettlementProcessor) compensate(ctx context.Context, inflow custody.TreasuryTransaction, receipt custody.TreasuryReceipt, cause error) {
	reversal := inflow
	reversal.Direction = custody.TreasuryOutflow
	reversal.ReferenceType = custody.TreasuryReferenceSettlementReversal
	reversal.Description = fmt.Sprintf("Reversal of %s", receipt.TransactionID)

	// The caller's context may already be cancelled; the reversal still gets its own budget.
	revCtx := context.WithoutCancel(ctx)
	if _, err := s.callTreasury(revCtx, reversal); err != nil {
		s.logger.Error("Treasury reversal failed, manual reconciliation required",
			zap.String("transaction_id", receipt.TransactionID),
			zap.String("settlement_id", inflow.ReferenceID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("Treasury inflow reversed after failed settlement",
		zap.String("transaction_id", receipt.TransactionID),
		zap.String("settlement_id", inflow.ReferenceID.String()),
		zap.NamedError("cause", cause),
	)
}

func (s *SettlementProcessor) recordApplied(ctx context.Context, span trace.Span, a *custody.Advance, st *custody.Settlement) {
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSettlementID, st.ID.String(),
		telemetry.SpanAttrSettlementKind, st.Kind.String(),
	)
	s.metrics.RecordSettlement(ctx, st.Kind.String(), st.Currency.String(), st.Amount)
	s.logger.Info("Settlement applied",
		zap.String("settlement_id", st.ID.String()),
		zap.String("number", st.Number),
		zap.String("kind", st.Kind.String()),
		zap.String("advance_id", a.ID.String()),
		zap.String("amount", st.Amount.String()),
		zap.String("remaining", a.RemainingAmount.String()),
		zap.String("status", a.Status.String()),
	)
}

func (s *SettlementProcessor) logRejected(kind string, advanceID uuid.UUID, err error) {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Code != shared.CodeExternalDependency {
		s.logger.Warn("Settlement rejected",
			zap.String("kind", kind),
			zap.String("advance_id", advanceID.String()),
			zap.String("code", de.Code),
			zap.String("reason", de.Message),
		)
		return
	}
	s.logger.Error("Settlement failed",
		zap.String("kind", kind),
		zap.String("advance_id", advanceID.String()),
		zap.Error(err),
	)
}

func returnDescription(desc string, a *custody.Advance, number string) string {
	if desc != "" {
		return desc
	}
	return fmt.Sprintf("Cash returned for advance %s (%s)", a.ReferenceNumber, number)
}
