package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdvanceModel is the persistence model for the Advance aggregate
type AdvanceModel struct {
	ScopedAggregateModel
	ReferenceNumber   string          `gorm:"type:varchar(50);not null;index"`
	HolderKind        string          `gorm:"type:varchar(20);not null"`
	HolderRef         *uuid.UUID      `gorm:"type:uuid;index"`
	HolderName        string          `gorm:"type:varchar(200)"`
	CostCenterID      *uuid.UUID      `gorm:"type:uuid;index"`
	OriginalAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	RemainingAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency          string          `gorm:"type:char(3);not null"`
	TreasuryAccountID uuid.UUID       `gorm:"type:uuid;not null"`
	Status            string          `gorm:"type:varchar(30);not null;index"`
	SourceAdvanceID   *uuid.UUID      `gorm:"type:uuid;index"`
	DecisionNote      string          `gorm:"type:text"`
	SettledAt         *time.Time
}

// TableName returns the table name for GORM
func (AdvanceModel) TableName() string {
	return "advances"
}

// ToDomain converts the persistence model to a domain Advance
func (m *AdvanceModel) ToDomain() *custody.Advance {
	return &custody.Advance{
		ScopedAggregateRoot: m.ToDomainScopedAggregate(),
		ReferenceNumber:     m.ReferenceNumber,
		Holder: custody.Holder{
			Kind: custody.HolderKind(m.HolderKind),
			Ref:  m.HolderRef,
			Name: m.HolderName,
		},
		CostCenterID:      m.CostCenterID,
		OriginalAmount:    m.OriginalAmount,
		RemainingAmount:   m.RemainingAmount,
		Currency:          valueobject.Currency(m.Currency),
		TreasuryAccountID: m.TreasuryAccountID,
		Status:            custody.AdvanceStatus(m.Status),
		SourceAdvanceID:   m.SourceAdvanceID,
		DecisionNote:      m.DecisionNote,
		SettledAt:         m.SettledAt,
	}
}

// AdvanceModelFromDomain creates a persistence model from a domain Advance
func AdvanceModelFromDomain(a *custody.Advance) *AdvanceModel {
	m := &AdvanceModel{
		ReferenceNumber:   a.ReferenceNumber,
		HolderKind:        string(a.Holder.Kind),
		HolderRef:         a.Holder.Ref,
		HolderName:        a.Holder.Name,
		CostCenterID:      a.CostCenterID,
		OriginalAmount:    a.OriginalAmount,
		RemainingAmount:   a.RemainingAmount,
		Currency:          a.Currency.String(),
		TreasuryAccountID: a.TreasuryAccountID,
		Status:            string(a.Status),
		SourceAdvanceID:   a.SourceAdvanceID,
		DecisionNote:      a.DecisionNote,
		SettledAt:         a.SettledAt,
	}
	m.FromDomainScopedAggregate(a.ScopedAggregateRoot)
	return m
}

// SettlementModel is the persistence model for a Settlement. Expense settlements
// carry the frozen vendor identity and line items of their purchase order.
type SettlementModel struct {
	ScopedAggregateModel
	Number                string                    `gorm:"type:varchar(50);not null;index"`
	AdvanceID             uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Kind                  string                    `gorm:"type:varchar(20);not null"`
	Amount                decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Currency              string                    `gorm:"type:char(3);not null"`
	CostCenterID          *uuid.UUID                `gorm:"type:uuid;index"`
	VendorID              *uuid.UUID                `gorm:"type:uuid;index"`
	VendorName            string                    `gorm:"type:varchar(200)"`
	VendorPhone           string                    `gorm:"type:varchar(32)"`
	VendorEmail           string                    `gorm:"type:varchar(254)"`
	TreasuryAccountID     *uuid.UUID                `gorm:"type:uuid"`
	TreasuryTransactionID *string                   `gorm:"type:varchar(100)"`
	LineItems             []SettlementLineItemModel `gorm:"foreignKey:SettlementID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (SettlementModel) TableName() string {
	return "settlements"
}

// SettlementLineItemModel is one purchase-order line of an expense settlement
type SettlementLineItemModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SettlementID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Line         int             `gorm:"not null"`
	Description  string          `gorm:"type:varchar(500);not null"`
	Quantity     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LineTotal    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (SettlementLineItemModel) TableName() string {
	return "settlement_line_items"
}

// ToDomain converts the persistence model to a domain Settlement
func (m *SettlementModel) ToDomain() (*custody.Settlement, error) {
	s := &custody.Settlement{
		ScopedAggregateRoot:   m.ToDomainScopedAggregate(),
		Number:                m.Number,
		AdvanceID:             m.AdvanceID,
		Kind:                  custody.SettlementKind(m.Kind),
		Amount:                m.Amount,
		Currency:              valueobject.Currency(m.Currency),
		CostCenterID:          m.CostCenterID,
		TreasuryAccountID:     m.TreasuryAccountID,
		TreasuryTransactionID: m.TreasuryTransactionID,
	}
	if m.VendorID == nil {
		return s, nil
	}

	lines := make([]SettlementLineItemModel, len(m.LineItems))
	copy(lines, m.LineItems)
	sort.Slice(lines, func(i, j int) bool { return lines[i].Line < lines[j].Line })

	items := make([]custody.LineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, custody.LineItem{
			Line:        l.Line,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		})
	}
	po, err := custody.NewPurchaseOrderSnapshot(custody.VendorRef{
		ID:    *m.VendorID,
		Name:  m.VendorName,
		Phone: m.VendorPhone,
		Email: m.VendorEmail,
	}, items)
	if err != nil {
		return nil, fmt.Errorf("settlement %s has a corrupt purchase order: %w", m.Number, err)
	}
	s.PurchaseOrder = po
	return s, nil
}

// SettlementModelFromDomain creates a persistence model, including line items, from a domain Settlement
func SettlementModelFromDomain(s *custody.Settlement) *SettlementModel {
	m := &SettlementModel{
		Number:                s.Number,
		AdvanceID:             s.AdvanceID,
		Kind:                  string(s.Kind),
		Amount:                s.Amount,
		Currency:              s.Currency.String(),
		CostCenterID:          s.CostCenterID,
		TreasuryAccountID:     s.TreasuryAccountID,
		TreasuryTransactionID: s.TreasuryTransactionID,
	}
	m.FromDomainScopedAggregate(s.ScopedAggregateRoot)

	if po := s.PurchaseOrder; po != nil {
		vendor := po.Vendor()
		m.VendorID = &vendor.ID
		m.VendorName = vendor.Name
		m.VendorPhone = vendor.Phone
		m.VendorEmail = vendor.Email
		for _, item := range po.LineItems() {
			m.LineItems = append(m.LineItems, SettlementLineItemModel{
				ID:           uuid.New(),
				SettlementID: s.ID,
				Line:         item.Line,
				Description:  item.Description,
				Quantity:     item.Quantity,
				UnitPrice:    item.UnitPrice,
				LineTotal:    item.LineTotal,
			})
		}
	}
	return m
}

// VendorModel is the persistence model for a vendor
type VendorModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index:idx_vendor_tenant_phone,priority:1;index:idx_vendor_tenant_name,priority:1"`
	Name      string    `gorm:"type:varchar(200);not null;index:idx_vendor_tenant_name,priority:2"`
	Phone     string    `gorm:"type:varchar(32);index:idx_vendor_tenant_phone,priority:2"`
	Email     string    `gorm:"type:varchar(254)"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (VendorModel) TableName() string {
	return "vendors"
}

// ToDomain converts the persistence model to a domain Vendor
func (m *VendorModel) ToDomain() *custody.Vendor {
	v := &custody.Vendor{
		TenantID: m.TenantID,
		Name:     m.Name,
		Phone:    m.Phone,
		Email:    m.Email,
	}
	v.ID = m.ID
	v.CreatedAt = m.CreatedAt
	v.UpdatedAt = m.UpdatedAt
	return v
}

// VendorModelFromDomain creates a persistence model from a domain Vendor
func VendorModelFromDomain(v *custody.Vendor) *VendorModel {
	return &VendorModel{
		ID:        v.ID,
		TenantID:  v.TenantID,
		Name:      v.Name,
		Phone:     v.Phone,
		Email:     v.Email,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

// CostCenterModel is the reference table of cost centers an advance may be booked to.
// It is owned by the surrounding accounting application; the engine only reads it.
type CostCenterModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Code      string    `gorm:"type:varchar(50);not null"`
	Name      string    `gorm:"type:varchar(200);not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CostCenterModel) TableName() string {
	return "cost_centers"
}

// AllModels lists every model the engine owns, in creation order
func AllModels() []any {
	return []any{
		&AdvanceModel{},
		&SettlementModel{},
		&SettlementLineItemModel{},
		&VendorModel{},
		&CostCenterModel{},
		&OutboxEntryModel{},
	}
}
