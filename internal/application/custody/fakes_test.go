package custody

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// memStore is an in-memory TransactionScope that rolls back on error.
type memStore struct {
	mu   sync.Mutex
	data *memData

	// failSettlementCreate makes the next settlement insert fail
	failSettlementCreate error
	// failAdvanceCreate makes the next advance insert fail
	failAdvanceCreate error
	// conflicts makes the next N SaveWithLock calls report a version conflict
	conflicts int
}

type memData struct {
	advances    map[uuid.UUID]custody.Advance
	settlements []custody.Settlement
	vendors     map[uuid.UUID]custody.Vendor
	events      []shared.DomainEvent
	advanceSeq  int
	settleSeq   int
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		advances: make(map[uuid.UUID]custody.Advance),
		vendors:  make(map[uuid.UUID]custody.Vendor),
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		advances:   make(map[uuid.UUID]custody.Advance, len(d.advances)),
		vendors:    make(map[uuid.UUID]custody.Vendor, len(d.vendors)),
		advanceSeq: d.advanceSeq,
		settleSeq:  d.settleSeq,
	}
	for k, v := range d.advances {
		c.advances[k] = v
	}
	for k, v := range d.vendors {
		c.vendors[k] = v
	}
	c.settlements = append(c.settlements, d.settlements...)
	c.events = append(c.events, d.events...)
	return c
}

func (m *memStore) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&memTx{store: m}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *memStore) advance(id uuid.UUID) custody.Advance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.advances[id]
}

func (m *memStore) advanceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.advances)
}

func (m *memStore) settlementsOf(id uuid.UUID) []custody.Settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []custody.Settlement
	for _, s := range m.data.settlements {
		if s.AdvanceID == id {
			out = append(out, s)
		}
	}
	return out
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data.events))
	for _, e := range m.data.events {
		out = append(out, e.EventType())
	}
	return out
}

func (m *memStore) vendorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.vendors)
}

// memTx exposes repositories bound to a running transaction
type memTx struct{ store *memStore }

func (t *memTx) Advances() custody.AdvanceRepository       { return &memAdvanceRepo{store: t.store, inTx: true} }
func (t *memTx) Settlements() custody.SettlementRepository { return &memSettlementRepo{store: t.store, inTx: true} }
func (t *memTx) Vendors() custody.VendorDirectory          { return &memVendorRepo{store: t.store} }
func (t *memTx) Outbox() shared.EventPublisher             { return &memOutbox{store: t.store} }

type memAdvanceRepo struct {
	store *memStore
	inTx  bool
}

func (r *memAdvanceRepo) with(fn func(d *memData)) {
	if !r.inTx {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}
	fn(r.store.data)
}

func (r *memAdvanceRepo) FindByID(_ context.Context, scope shared.Scope, id uuid.UUID) (*custody.Advance, error) {
	var (
		out *custody.Advance
		err error
	)
	r.with(func(d *memData) {
		a, ok := d.advances[id]
		if !ok || !a.VisibleIn(scope) {
			err = shared.ErrNotFound
			return
		}
		out = &a
	})
	return out, err
}

func (r *memAdvanceRepo) FindByIDForUpdate(ctx context.Context, scope shared.Scope, id uuid.UUID) (*custody.Advance, error) {
	return r.FindByID(ctx, scope, id)
}

func (r *memAdvanceRepo) FindOpen(_ context.Context, scope shared.Scope, f custody.OpenAdvanceFilter) ([]custody.Advance, int64, error) {
	var out []custody.Advance
	r.with(func(d *memData) {
		for _, a := range d.advances {
			if !a.VisibleIn(scope) || !a.IsEligible() {
				continue
			}
			if f.HolderRef != nil && (a.Holder.Ref == nil || *a.Holder.Ref != *f.HolderRef) {
				continue
			}
			if f.HolderName != "" && !strings.EqualFold(a.Holder.Name, f.HolderName) {
				continue
			}
			if f.CostCenterID != nil && (a.CostCenterID == nil || *a.CostCenterID != *f.CostCenterID) {
				continue
			}
			if f.GeneralOnly && a.CostCenterID != nil {
				continue
			}
			out = append(out, a)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r *memAdvanceRepo) Create(_ context.Context, a *custody.Advance) error {
	if err := r.store.failAdvanceCreate; err != nil {
		r.store.failAdvanceCreate = nil
		return err
	}
	r.with(func(d *memData) {
		cp := *a
		cp.ClearDomainEvents()
		d.advances[a.ID] = cp
	})
	return nil
}

func (r *memAdvanceRepo) SaveWithLock(_ context.Context, a *custody.Advance) error {
	var err error
	r.with(func(d *memData) {
		if r.store.conflicts > 0 {
			r.store.conflicts--
			err = shared.ErrConcurrencyConflict
			return
		}
		stored, ok := d.advances[a.ID]
		if !ok {
			err = shared.ErrNotFound
			return
		}
		if stored.Version != a.Version-1 {
			err = shared.ErrConcurrencyConflict
			return
		}
		cp := *a
		cp.ClearDomainEvents()
		d.advances[a.ID] = cp
	})
	return err
}

func (r *memAdvanceRepo) GenerateReferenceNumber(_ context.Context, _ shared.Scope) (string, error) {
	var ref string
	r.with(func(d *memData) {
		d.advanceSeq++
		ref = "ADV-" + time.Now().Format("200601") + "-" + padSeq(d.advanceSeq)
	})
	return ref, nil
}

type memSettlementRepo struct {
	store *memStore
	inTx  bool
}

func (r *memSettlementRepo) with(fn func(d *memData)) {
	if !r.inTx {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
	}
	fn(r.store.data)
}

func (r *memSettlementRepo) Create(_ context.Context, s *custody.Settlement) error {
	if err := r.store.failSettlementCreate; err != nil {
		r.store.failSettlementCreate = nil
		return err
	}
	r.with(func(d *memData) {
		cp := *s
		cp.ClearDomainEvents()
		d.settlements = append(d.settlements, cp)
	})
	return nil
}

func (r *memSettlementRepo) FindByAdvance(_ context.Context, scope shared.Scope, advanceID uuid.UUID) ([]custody.Settlement, error) {
	var out []custody.Settlement
	r.with(func(d *memData) {
		for _, s := range d.settlements {
			if s.AdvanceID == advanceID && s.VisibleIn(scope) {
				out = append(out, s)
			}
		}
	})
	return out, nil
}

func (r *memSettlementRepo) SumByAdvance(ctx context.Context, scope shared.Scope, advanceID uuid.UUID) (decimal.Decimal, error) {
	list, _ := r.FindByAdvance(ctx, scope, advanceID)
	total := decimal.Zero
	for _, s := range list {
		total = total.Add(s.Amount)
	}
	return total, nil
}

func (r *memSettlementRepo) GenerateSettlementNumber(_ context.Context, _ shared.Scope) (string, error) {
	var n string
	r.with(func(d *memData) {
		d.settleSeq++
		n = "STL-" + time.Now().Format("200601") + "-" + padSeq(d.settleSeq)
	})
	return n, nil
}

type memVendorRepo struct{ store *memStore }

func (r *memVendorRepo) find(scope shared.Scope, match func(v custody.Vendor) bool) (*custody.Vendor, error) {
	for _, v := range r.store.data.vendors {
		if v.TenantID == scope.TenantID && match(v) {
			v := v
			return &v, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memVendorRepo) FindByID(_ context.Context, scope shared.Scope, id uuid.UUID) (*custody.Vendor, error) {
	return r.find(scope, func(v custody.Vendor) bool { return v.ID == id })
}

func (r *memVendorRepo) FindByPhone(_ context.Context, scope shared.Scope, phone string) (*custody.Vendor, error) {
	return r.find(scope, func(v custody.Vendor) bool { return v.Phone == phone })
}

func (r *memVendorRepo) FindByName(_ context.Context, scope shared.Scope, name string) (*custody.Vendor, error) {
	return r.find(scope, func(v custody.Vendor) bool { return strings.EqualFold(v.Name, name) })
}

func (r *memVendorRepo) Create(_ context.Context, v *custody.Vendor) error {
	r.store.data.vendors[v.ID] = *v
	return nil
}

type memOutbox struct{ store *memStore }

func (o *memOutbox) Publish(_ context.Context, events ...shared.DomainEvent) error {
	o.store.data.events = append(o.store.data.events, events...)
	return nil
}

func padSeq(n int) string {
	s := "00000" + decimal.NewFromInt(int64(n)).String()
	return s[len(s)-5:]
}

// MockTreasuryGateway is a mock implementation of custody.TreasuryGateway
type MockTreasuryGateway struct {
	mock.Mock
}

func (m *MockTreasuryGateway) CreateTransaction(ctx context.Context, tx custody.TreasuryTransaction) (custody.TreasuryReceipt, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(custody.TreasuryReceipt), args.Error(1)
}

// MockAccountLookup is a mock implementation of custody.TreasuryAccountLookup
type MockAccountLookup struct {
	mock.Mock
}

func (m *MockAccountLookup) AccountExists(ctx context.Context, scope shared.Scope, accountID uuid.UUID) (bool, error) {
	args := m.Called(ctx, scope, accountID)
	return args.Bool(0), args.Error(1)
}

// MockCostCenterLookup is a mock implementation of custody.CostCenterLookup
type MockCostCenterLookup struct {
	mock.Mock
}

func (m *MockCostCenterLookup) CostCenterExists(ctx context.Context, scope shared.Scope, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, scope, id)
	return args.Bool(0), args.Error(1)
}

// testEnv wires the services over an in-memory store
type testEnv struct {
	store       *memStore
	treasury    *MockTreasuryGateway
	accounts    *MockAccountLookup
	costCenters *MockCostCenterLookup
	services    *Services
	scope       shared.Scope
	account     uuid.UUID
}

func newTestEnv(tweaks ...func(*LedgerDeps)) *testEnv {
	env := &testEnv{
		store:       newMemStore(),
		treasury:    new(MockTreasuryGateway),
		accounts:    new(MockAccountLookup),
		costCenters: new(MockCostCenterLookup),
		scope:       shared.NewScope(uuid.New()).WithUser(uuid.New()),
		account:     uuid.New(),
	}
	deps := LedgerDeps{
		Advances:    &memAdvanceRepo{store: env.store},
		Settlements: &memSettlementRepo{store: env.store},
		TxScope:     env.store,
		Locker:      NewLocalAdvanceLocker(),
		Accounts:    env.accounts,
		CostCenters: env.costCenters,
		Logger:      zap.NewNop(),
		Options:     Options{TreasuryTimeout: 200 * time.Millisecond},
	}
	for _, tweak := range tweaks {
		tweak(&deps)
	}
	env.services = NewServices(deps, NewPurchaseOrderLinker("SA"), env.treasury)
	env.accounts.On("AccountExists", mock.Anything, mock.Anything, env.account).Return(true, nil).Maybe()
	env.costCenters.On("CostCenterExists", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	return env
}

// approvedAdvance issues and approves an advance of amount in costCenter
func (e *testEnv) approvedAdvance(ctx context.Context, amount int64, costCenter *uuid.UUID) (*custody.Advance, error) {
	a, err := e.services.Ledger.IssueAdvance(ctx, e.scope, IssueAdvanceRequest{
		Holder:            custody.EmployeeHolder(uuid.New()),
		CostCenterID:      costCenter,
		Amount:            decimal.NewFromInt(amount),
		Currency:          "SAR",
		TreasuryAccountID: e.account,
	})
	if err != nil {
		return nil, err
	}
	return e.services.Ledger.RecordApprovalDecision(ctx, e.scope, a.ID, true, "")
}

func lineInput(qty, price int64) LineItemInput {
	return LineItemInput{Description: "item", Quantity: decimal.NewFromInt(qty), UnitPrice: decimal.NewFromInt(price)}
}
