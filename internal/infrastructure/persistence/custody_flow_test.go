package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"

	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubTreasury records every transaction and knows a fixed set of accounts
type stubTreasury struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]bool
	calls    []custody.TreasuryTransaction
}

func (s *stubTreasury) CreateTransaction(_ context.Context, tx custody.TreasuryTransaction) (custody.TreasuryReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, tx)
	return custody.TreasuryReceipt{TransactionID: fmt.Sprintf("TRX-%d", 100+len(s.calls)-1)}, nil
}

func (s *stubTreasury) AccountExists(_ context.Context, _ shared.Scope, id uuid.UUID) (bool, error) {
	return s.accounts[id], nil
}

// staticCostCenters answers from memory so lookups never need a second connection
type staticCostCenters map[uuid.UUID]bool

func (c staticCostCenters) CostCenterExists(_ context.Context, _ shared.Scope, id uuid.UUID) (bool, error) {
	return c[id], nil
}

type flowEnv struct {
	db       *gorm.DB
	services *appcustody.Services
	treasury *stubTreasury
	scope    shared.Scope
	account  uuid.UUID
	projectA uuid.UUID
	projectB uuid.UUID
	outbox   *event.GormOutboxRepository
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()
	return newFlowEnvOn(t, setupCustodyTestDB(t))
}

// newFlowEnvOn wires the application services over db with an in-process locker
func newFlowEnvOn(t *testing.T, db *gorm.DB) *flowEnv {
	t.Helper()
	env := &flowEnv{
		db:       db,
		scope:    shared.NewScope(uuid.New()).WithUser(uuid.New()),
		account:  uuid.New(),
		projectA: uuid.New(),
		projectB: uuid.New(),
		outbox:   event.NewGormOutboxRepository(db),
	}
	env.treasury = &stubTreasury{accounts: map[uuid.UUID]bool{env.account: true}}

	deps := appcustody.LedgerDeps{
		Advances:    NewGormAdvanceRepository(db),
		Settlements: NewGormSettlementRepository(db),
		TxScope:     NewGormTransactionScope(db, event.NewOutboxPublisher(event.NewCustodySerializer())),
		Locker:      appcustody.NewLocalAdvanceLocker(),
		Accounts:    env.treasury,
		CostCenters: staticCostCenters{env.projectA: true, env.projectB: true},
		Logger:      zap.NewNop(),
	}
	env.services = appcustody.NewServices(deps, appcustody.NewPurchaseOrderLinker("SA"), env.treasury)
	return env
}

func (e *flowEnv) approvedAdvance(t *testing.T, amount int64, costCenter *uuid.UUID) *custody.Advance {
	t.Helper()
	ctx := context.Background()
	a, err := e.services.Ledger.IssueAdvance(ctx, e.scope, appcustody.IssueAdvanceRequest{
		Holder:            custody.EmployeeHolder(uuid.New()),
		CostCenterID:      costCenter,
		Amount:            decimal.NewFromInt(amount),
		Currency:          "SAR",
		TreasuryAccountID: e.account,
	})
	require.NoError(t, err)
	a, err = e.services.Ledger.RecordApprovalDecision(ctx, e.scope, a.ID, true, "approved by finance")
	require.NoError(t, err)
	return a
}

func (e *flowEnv) expense(advanceID uuid.UUID, lines ...appcustody.LineItemInput) (*custody.Settlement, error) {
	return e.services.Settlements.SettleAsExpense(context.Background(), e.scope, appcustody.SettleExpenseRequest{
		AdvanceID: advanceID,
		Vendor:    appcustody.VendorInput{Name: "Al Noor Trading", Phone: "0501234567"},
		LineItems: lines,
	})
}

func line(qty, price int64) appcustody.LineItemInput {
	return appcustody.LineItemInput{
		Description: "Supplies",
		Quantity:    decimal.NewFromInt(qty),
		UnitPrice:   decimal.NewFromInt(price),
	}
}

func (e *flowEnv) assertConserved(t *testing.T, advanceID uuid.UUID) {
	t.Helper()
	report, err := e.services.Ledger.CheckConservation(context.Background(), e.scope, advanceID)
	require.NoError(t, err)
	assert.True(t, report.Balanced, "settled %s, original %s, remaining %s",
		report.SettledTotal, report.OriginalAmount, report.RemainingAmount)
}

func TestCustodyFlow_ExpenseThenReturn(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()
	advance := env.approvedAdvance(t, 1000, &env.projectA)

	expense, err := env.expense(advance.ID, line(2, 100), line(1, 300))
	require.NoError(t, err)
	assert.True(t, expense.Amount.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "+966501234567", expense.PurchaseOrder.Vendor().Phone)

	current, err := env.services.Ledger.GetAdvance(ctx, env.scope, advance.ID)
	require.NoError(t, err)
	assert.Equal(t, custody.AdvanceStatusPartiallySettled, current.Status)
	assert.True(t, current.RemainingAmount.Equal(decimal.NewFromInt(500)))
	assert.Empty(t, env.treasury.calls)

	ret, err := env.services.Settlements.SettleAsReturn(ctx, env.scope, appcustody.SettleReturnRequest{
		AdvanceID:         advance.ID,
		Amount:            decimal.NewFromInt(500),
		TreasuryAccountID: env.account,
	})
	require.NoError(t, err)
	require.NotNil(t, ret.TreasuryTransactionID)
	assert.Equal(t, "TRX-100", *ret.TreasuryTransactionID)

	require.Len(t, env.treasury.calls, 1)
	call := env.treasury.calls[0]
	assert.Equal(t, custody.TreasuryInflow, call.Direction)
	assert.Equal(t, custody.TreasuryReferenceSettlement, call.ReferenceType)
	assert.Equal(t, ret.ID, call.ReferenceID)
	assert.True(t, call.Amount.Amount().Equal(decimal.NewFromInt(500)))

	current, err = env.services.Ledger.GetAdvance(ctx, env.scope, advance.ID)
	require.NoError(t, err)
	assert.Equal(t, custody.AdvanceStatusSettled, current.Status)
	assert.True(t, current.RemainingAmount.IsZero())
	assert.NotNil(t, current.SettledAt)

	_, err = env.expense(advance.ID, line(1, 1))
	assert.ErrorIs(t, err, shared.ErrNotEligible)

	settlements, err := env.services.Ledger.ListSettlements(ctx, env.scope, advance.ID)
	require.NoError(t, err)
	require.Len(t, settlements, 2)
	assert.Equal(t, custody.SettlementKindExpense, settlements[0].Kind)
	assert.Len(t, settlements[0].PurchaseOrder.LineItems(), 2)
	assert.Equal(t, custody.SettlementKindReturn, settlements[1].Kind)
	env.assertConserved(t, advance.ID)

	entries, err := env.outbox.FindByAggregate(ctx, env.scope.TenantID, advance.ID)
	require.NoError(t, err)
	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		custody.EventTypeAdvanceIssued,
		custody.EventTypeAdvanceApproved,
		custody.EventTypeAdvanceSettlementApplied,
		custody.EventTypeAdvanceSettlementApplied,
	}, types)
}

func TestCustodyFlow_OverBalanceExpenseRejected(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()
	advance := env.approvedAdvance(t, 200, nil)

	_, err := env.expense(advance.ID, line(1, 250))
	require.ErrorIs(t, err, shared.ErrAmountExceedsBalance)

	current, err := env.services.Ledger.GetAdvance(ctx, env.scope, advance.ID)
	require.NoError(t, err)
	assert.Equal(t, custody.AdvanceStatusApproved, current.Status)
	assert.True(t, current.RemainingAmount.Equal(decimal.NewFromInt(200)))

	settlements, err := env.services.Ledger.ListSettlements(ctx, env.scope, advance.ID)
	require.NoError(t, err)
	assert.Empty(t, settlements)

	var vendors int64
	require.NoError(t, env.db.Table("vendors").Count(&vendors).Error)
	assert.Zero(t, vendors, "a rejected expense must not leave a vendor behind")
}

func TestCustodyFlow_TransferToAnotherProject(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()
	advance := env.approvedAdvance(t, 1000, &env.projectA)

	_, err := env.expense(advance.ID, line(1, 200))
	require.NoError(t, err)

	result, err := env.services.Transfers.TransferAdvance(ctx, env.scope, appcustody.TransferRequest{
		AdvanceID:       advance.ID,
		NewCostCenterID: &env.projectB,
	})
	require.NoError(t, err)
	assert.True(t, result.Record.CarriedAmount.Equal(decimal.NewFromInt(800)))

	closed, err := env.services.Ledger.GetAdvance(ctx, env.scope, advance.ID)
	require.NoError(t, err)
	assert.Equal(t, custody.AdvanceStatusTransferred, closed.Status)
	assert.True(t, closed.RemainingAmount.Equal(decimal.NewFromInt(800)))

	successor, err := env.services.Ledger.GetAdvance(ctx, env.scope, result.New.ID)
	require.NoError(t, err)
	assert.Equal(t, custody.AdvanceStatusApproved, successor.Status)
	assert.True(t, successor.OriginalAmount.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, advance.ReferenceNumber+"-T1", successor.ReferenceNumber)
	require.NotNil(t, successor.SourceAdvanceID)
	assert.Equal(t, advance.ID, *successor.SourceAdvanceID)
	assert.Equal(t, env.projectB, *successor.CostCenterID)

	open, err := env.services.Ledger.ListOpenAdvances(ctx, env.scope, custody.OpenAdvanceFilter{})
	require.NoError(t, err)
	require.Len(t, open.Items, 1)
	assert.Equal(t, successor.ID, open.Items[0].ID)

	_, err = env.expense(advance.ID, line(1, 1))
	assert.ErrorIs(t, err, shared.ErrNotEligible)

	next, err := NewGormAdvanceRepository(env.db).GenerateReferenceNumber(ctx, env.scope)
	require.NoError(t, err)
	assert.Regexp(t, `^ADV-\d{6}-00002$`, next)
}

func TestCustodyFlow_ConcurrentExpensesNeverOverdraw(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()
	advance := env.approvedAdvance(t, 100, nil)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.expense(advance.ID, line(1, 80))
		}(i)
	}
	wg.Wait()

	succeeded, exceeded := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, shared.ErrAmountExceedsBalance):
			exceeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, exceeded)

	current, err := env.services.Ledger.GetAdvance(ctx, env.scope, advance.ID)
	require.NoError(t, err)
	assert.True(t, current.RemainingAmount.Equal(decimal.NewFromInt(20)))
	env.assertConserved(t, advance.ID)
}

func TestCustodyFlow_RejectedAdvanceIsNeverOpen(t *testing.T) {
	env := newFlowEnv(t)
	ctx := context.Background()

	a, err := env.services.Ledger.IssueAdvance(ctx, env.scope, appcustody.IssueAdvanceRequest{
		Holder:            custody.ExternalHolder("Driver"),
		Amount:            decimal.NewFromInt(50),
		Currency:          "SAR",
		TreasuryAccountID: env.account,
	})
	require.NoError(t, err)
	_, err = env.services.Ledger.RecordApprovalDecision(ctx, env.scope, a.ID, false, "no budget")
	require.NoError(t, err)

	open, err := env.services.Ledger.ListOpenAdvances(ctx, env.scope, custody.OpenAdvanceFilter{})
	require.NoError(t, err)
	assert.Empty(t, open.Items)

	_, err = env.services.Transfers.TransferAdvance(ctx, env.scope, appcustody.TransferRequest{AdvanceID: a.ID})
	assert.ErrorIs(t, err, shared.ErrNotEligible)
}
