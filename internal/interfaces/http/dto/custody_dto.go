package dto

import (
	"time"

	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HolderRequest identifies who receives the cash
type HolderRequest struct {
	Kind       string `json:"kind" binding:"required,oneof=EMPLOYEE EXTERNAL" example:"EMPLOYEE"`
	EmployeeID string `json:"employee_id,omitempty" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	Name       string `json:"name,omitempty" binding:"omitempty,max=200" example:"Courier Ltd"`
}

// IssueAdvanceRequest is the body of POST /advances
// @Description Request to issue a petty-cash advance
type IssueAdvanceRequest struct {
	Holder            HolderRequest   `json:"holder" binding:"required"`
	CostCenterID      string          `json:"cost_center_id,omitempty" binding:"omitempty,uuid"`
	Amount            decimal.Decimal `json:"amount" swaggertype:"string" example:"500.00"`
	Currency          string          `json:"currency" binding:"required,iso4217" example:"EGP"`
	TreasuryAccountID string          `json:"treasury_account_id" binding:"required,uuid"`
	ReferenceNumber   string          `json:"reference_number,omitempty" binding:"omitempty,max=50" example:"ADV-20260314-0001"`
}

// ApprovalRequest is the body of POST /advances/:id/approval
type ApprovalRequest struct {
	Approved *bool  `json:"approved" binding:"required" example:"true"`
	Note     string `json:"note,omitempty" binding:"omitempty,max=500"`
}

// VendorRequest names an existing vendor or describes a new one
type VendorRequest struct {
	ID    string `json:"id,omitempty" binding:"omitempty,uuid"`
	Name  string `json:"name,omitempty" binding:"omitempty,max=200" example:"Stationery House"`
	Phone string `json:"phone,omitempty" binding:"omitempty,max=32" example:"+201001234567"`
	Email string `json:"email,omitempty" binding:"omitempty,email,max=200"`
}

// LineItemRequest is one purchase-order line
type LineItemRequest struct {
	Description string          `json:"description" binding:"required,max=500" example:"A4 paper"`
	Quantity    decimal.Decimal `json:"quantity" swaggertype:"string" example:"2"`
	UnitPrice   decimal.Decimal `json:"unit_price" swaggertype:"string" example:"45.50"`
}

// SettleExpenseRequest is the body of POST /advances/:id/settlements/expense
// @Description Settle part of an advance against a vendor purchase
type SettleExpenseRequest struct {
	Vendor    VendorRequest     `json:"vendor" binding:"required"`
	LineItems []LineItemRequest `json:"line_items" binding:"required,min=1,dive"`
}

// SettleReturnRequest is the body of POST /advances/:id/settlements/return
// @Description Return unspent cash from an advance to a treasury account
type SettleReturnRequest struct {
	Amount            decimal.Decimal `json:"amount" swaggertype:"string" example:"120.00"`
	TreasuryAccountID string          `json:"treasury_account_id" binding:"required,uuid"`
	Description       string          `json:"description,omitempty" binding:"omitempty,max=500"`
}

// TransferRequest is the body of POST /advances/:id/transfer.
// An empty cost_center_id moves the balance to the general (unassigned) bucket.
type TransferRequest struct {
	NewCostCenterID string `json:"new_cost_center_id,omitempty" binding:"omitempty,uuid"`
}

// OpenAdvancesQuery holds the query string of GET /advances/open
type OpenAdvancesQuery struct {
	Page         int    `form:"page" binding:"omitempty,min=1" example:"1"`
	PageSize     int    `form:"page_size" binding:"omitempty,min=1,max=200" example:"20"`
	HolderID     string `form:"holder_id" binding:"omitempty,uuid"`
	HolderName   string `form:"holder_name" binding:"omitempty,max=200"`
	CostCenterID string `form:"cost_center_id" binding:"omitempty,uuid"`
	GeneralOnly  bool   `form:"general_only"`
}

// ToCommand converts the request into an application command
func (r IssueAdvanceRequest) ToCommand() (appcustody.IssueAdvanceRequest, error) {
	costCenterID, err := optionalUUID("cost_center_id", r.CostCenterID)
	if err != nil {
		return appcustody.IssueAdvanceRequest{}, err
	}
	accountID, err := requiredUUID("treasury_account_id", r.TreasuryAccountID)
	if err != nil {
		return appcustody.IssueAdvanceRequest{}, err
	}
	holder, err := r.Holder.toHolder()
	if err != nil {
		return appcustody.IssueAdvanceRequest{}, err
	}
	return appcustody.IssueAdvanceRequest{
		Holder:            holder,
		CostCenterID:      costCenterID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		TreasuryAccountID: accountID,
		ReferenceNumber:   r.ReferenceNumber,
	}, nil
}

func (r HolderRequest) toHolder() (custody.Holder, error) {
	ref, err := optionalUUID("holder.employee_id", r.EmployeeID)
	if err != nil {
		return custody.Holder{}, err
	}
	return custody.Holder{Kind: custody.HolderKind(r.Kind), Ref: ref, Name: r.Name}, nil
}

// ToCommand converts the request into an application command
func (r SettleExpenseRequest) ToCommand(advanceID uuid.UUID) (appcustody.SettleExpenseRequest, error) {
	vendorID, err := optionalUUID("vendor.id", r.Vendor.ID)
	if err != nil {
		return appcustody.SettleExpenseRequest{}, err
	}
	items := make([]appcustody.LineItemInput, len(r.LineItems))
	for i, item := range r.LineItems {
		items[i] = appcustody.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	return appcustody.SettleExpenseRequest{
		AdvanceID: advanceID,
		Vendor: appcustody.VendorInput{
			ExistingVendorID: vendorID,
			Name:             r.Vendor.Name,
			Phone:            r.Vendor.Phone,
			Email:            r.Vendor.Email,
		},
		LineItems: items,
	}, nil
}

// ToCommand converts the request into an application command
func (r SettleReturnRequest) ToCommand(advanceID uuid.UUID) (appcustody.SettleReturnRequest, error) {
	accountID, err := requiredUUID("treasury_account_id", r.TreasuryAccountID)
	if err != nil {
		return appcustody.SettleReturnRequest{}, err
	}
	return appcustody.SettleReturnRequest{
		AdvanceID:         advanceID,
		Amount:            r.Amount,
		TreasuryAccountID: accountID,
		Description:       r.Description,
	}, nil
}

// ToCommand converts the request into an application command
func (r TransferRequest) ToCommand(advanceID uuid.UUID) (appcustody.TransferRequest, error) {
	costCenterID, err := optionalUUID("new_cost_center_id", r.NewCostCenterID)
	if err != nil {
		return appcustody.TransferRequest{}, err
	}
	return appcustody.TransferRequest{AdvanceID: advanceID, NewCostCenterID: costCenterID}, nil
}

// ToFilter converts the query into a repository filter
func (q OpenAdvancesQuery) ToFilter() (custody.OpenAdvanceFilter, error) {
	holderRef, err := optionalUUID("holder_id", q.HolderID)
	if err != nil {
		return custody.OpenAdvanceFilter{}, err
	}
	costCenterID, err := optionalUUID("cost_center_id", q.CostCenterID)
	if err != nil {
		return custody.OpenAdvanceFilter{}, err
	}
	if q.GeneralOnly && costCenterID != nil {
		return custody.OpenAdvanceFilter{}, shared.NewValidationError("general_only cannot be combined with cost_center_id")
	}
	return custody.OpenAdvanceFilter{
		Filter:       shared.Filter{Page: q.Page, PageSize: q.PageSize},
		HolderRef:    holderRef,
		HolderName:   q.HolderName,
		CostCenterID: costCenterID,
		GeneralOnly:  q.GeneralOnly,
	}, nil
}

func optionalUUID(field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, shared.NewValidationError("%s must be a valid UUID", field)
	}
	return &id, nil
}

func requiredUUID(field, raw string) (uuid.UUID, error) {
	id, err := optionalUUID(field, raw)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil || *id == uuid.Nil {
		return uuid.Nil, shared.NewValidationError("%s is required", field)
	}
	return *id, nil
}

// HolderResponse describes the advance holder
type HolderResponse struct {
	Kind       string  `json:"kind" example:"EMPLOYEE" enums:"EMPLOYEE,EXTERNAL"`
	EmployeeID *string `json:"employee_id,omitempty"`
	Name       string  `json:"name,omitempty"`
}

// AdvanceResponse represents an advance in API responses
// @Description Petty-cash advance with its live balance
type AdvanceResponse struct {
	ID                string         `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	TenantID          string         `json:"tenant_id"`
	BranchID          *string        `json:"branch_id,omitempty"`
	ReferenceNumber   string         `json:"reference_number" example:"ADV-20260314-0001"`
	Holder            HolderResponse `json:"holder"`
	CostCenterID      *string        `json:"cost_center_id,omitempty"`
	OriginalAmount    string         `json:"original_amount" example:"500.0000"`
	RemainingAmount   string         `json:"remaining_amount" example:"380.0000"`
	SettledAmount     string         `json:"settled_amount" example:"120.0000"`
	Currency          string         `json:"currency" example:"EGP"`
	TreasuryAccountID string         `json:"treasury_account_id"`
	Status            string         `json:"status" example:"APPROVED" enums:"PENDING,APPROVED,REJECTED,PARTIALLY_SETTLED,SETTLED,TRANSFERRED"`
	SourceAdvanceID   *string        `json:"source_advance_id,omitempty"`
	DecisionNote      string         `json:"decision_note,omitempty"`
	SettledAt         *string        `json:"settled_at,omitempty"`
	CreatedAt         string         `json:"created_at" example:"2026-03-14T09:30:00Z"`
	UpdatedAt         string         `json:"updated_at" example:"2026-03-14T09:30:00Z"`
	Version           int            `json:"version" example:"1"`
}

// LineItemResponse is one purchase-order line of an expense settlement
type LineItemResponse struct {
	Line        int    `json:"line" example:"1"`
	Description string `json:"description"`
	Quantity    string `json:"quantity" example:"2.0000"`
	UnitPrice   string `json:"unit_price" example:"45.5000"`
	LineTotal   string `json:"line_total" example:"91.0000"`
}

// PurchaseOrderResponse is the vendor purchase backing an expense settlement
type PurchaseOrderResponse struct {
	VendorID    string             `json:"vendor_id"`
	VendorName  string             `json:"vendor_name"`
	VendorPhone string             `json:"vendor_phone,omitempty"`
	VendorEmail string             `json:"vendor_email,omitempty"`
	LineItems   []LineItemResponse `json:"line_items"`
	Total       string             `json:"total" example:"91.0000"`
}

// SettlementResponse represents a settlement in API responses
// @Description Expense or return settlement against an advance
type SettlementResponse struct {
	ID                    string                 `json:"id"`
	Number                string                 `json:"number" example:"STL-20260314-0001"`
	AdvanceID             string                 `json:"advance_id"`
	Kind                  string                 `json:"kind" example:"EXPENSE" enums:"EXPENSE,RETURN"`
	Amount                string                 `json:"amount" example:"91.0000"`
	Currency              string                 `json:"currency" example:"EGP"`
	CostCenterID          *string                `json:"cost_center_id,omitempty"`
	PurchaseOrder         *PurchaseOrderResponse `json:"purchase_order,omitempty"`
	TreasuryAccountID     *string                `json:"treasury_account_id,omitempty"`
	TreasuryTransactionID *string                `json:"treasury_transaction_id,omitempty"`
	CreatedAt             string                 `json:"created_at"`
}

// TransferResponse is the outcome of a cost-center transfer
type TransferResponse struct {
	Closed        AdvanceResponse `json:"closed"`
	New           AdvanceResponse `json:"new"`
	CarriedAmount string          `json:"carried_amount" example:"380.0000"`
}

// ConservationResponse reports whether an advance balances against its settlements
type ConservationResponse struct {
	AdvanceID       string `json:"advance_id"`
	OriginalAmount  string `json:"original_amount"`
	RemainingAmount string `json:"remaining_amount"`
	SettledTotal    string `json:"settled_total"`
	Balanced        bool   `json:"balanced"`
}

const amountPlaces = 4

// ToAdvanceResponse converts a domain advance
func ToAdvanceResponse(a *custody.Advance) AdvanceResponse {
	resp := AdvanceResponse{
		ID:              a.ID.String(),
		TenantID:        a.TenantID.String(),
		BranchID:        uuidString(a.BranchID),
		ReferenceNumber: a.ReferenceNumber,
		Holder: HolderResponse{
			Kind:       string(a.Holder.Kind),
			EmployeeID: uuidString(a.Holder.Ref),
			Name:       a.Holder.Name,
		},
		CostCenterID:      uuidString(a.CostCenterID),
		OriginalAmount:    a.OriginalAmount.StringFixed(amountPlaces),
		RemainingAmount:   a.RemainingAmount.StringFixed(amountPlaces),
		SettledAmount:     a.SettledAmount().StringFixed(amountPlaces),
		Currency:          a.Currency.String(),
		TreasuryAccountID: a.TreasuryAccountID.String(),
		Status:            a.Status.String(),
		SourceAdvanceID:   uuidString(a.SourceAdvanceID),
		DecisionNote:      a.DecisionNote,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.Format(time.RFC3339),
		Version:           a.Version,
	}
	if a.SettledAt != nil {
		settledAt := a.SettledAt.Format(time.RFC3339)
		resp.SettledAt = &settledAt
	}
	return resp
}

// ToAdvanceResponses converts a page of advances
func ToAdvanceResponses(advances []custody.Advance) []AdvanceResponse {
	out := make([]AdvanceResponse, len(advances))
	for i := range advances {
		out[i] = ToAdvanceResponse(&advances[i])
	}
	return out
}

// ToSettlementResponse converts a domain settlement
func ToSettlementResponse(s *custody.Settlement) SettlementResponse {
	resp := SettlementResponse{
		ID:                    s.ID.String(),
		Number:                s.Number,
		AdvanceID:             s.AdvanceID.String(),
		Kind:                  s.Kind.String(),
		Amount:                s.Amount.StringFixed(amountPlaces),
		Currency:              s.Currency.String(),
		CostCenterID:          uuidString(s.CostCenterID),
		TreasuryAccountID:     uuidString(s.TreasuryAccountID),
		TreasuryTransactionID: s.TreasuryTransactionID,
		CreatedAt:             s.CreatedAt.Format(time.RFC3339),
	}
	if po := s.PurchaseOrder; po != nil {
		vendor := po.Vendor()
		items := po.LineItems()
		lines := make([]LineItemResponse, len(items))
		for i, item := range items {
			lines[i] = LineItemResponse{
				Line:        item.Line,
				Description: item.Description,
				Quantity:    item.Quantity.StringFixed(amountPlaces),
				UnitPrice:   item.UnitPrice.StringFixed(amountPlaces),
				LineTotal:   item.LineTotal.StringFixed(amountPlaces),
			}
		}
		resp.PurchaseOrder = &PurchaseOrderResponse{
			VendorID:    vendor.ID.String(),
			VendorName:  vendor.Name,
			VendorPhone: vendor.Phone,
			VendorEmail: vendor.Email,
			LineItems:   lines,
			Total:       po.Total().StringFixed(amountPlaces),
		}
	}
	return resp
}

// ToSettlementResponses converts a settlement history
func ToSettlementResponses(settlements []custody.Settlement) []SettlementResponse {
	out := make([]SettlementResponse, len(settlements))
	for i := range settlements {
		out[i] = ToSettlementResponse(&settlements[i])
	}
	return out
}

// ToTransferResponse converts a transfer result
func ToTransferResponse(r *appcustody.TransferResult) TransferResponse {
	return TransferResponse{
		Closed:        ToAdvanceResponse(r.Closed),
		New:           ToAdvanceResponse(r.New),
		CarriedAmount: r.Record.CarriedAmount.StringFixed(amountPlaces),
	}
}

// ToConservationResponse converts a conservation report
func ToConservationResponse(r *appcustody.ConservationReport) ConservationResponse {
	return ConservationResponse{
		AdvanceID:       r.AdvanceID.String(),
		OriginalAmount:  r.OriginalAmount.StringFixed(amountPlaces),
		RemainingAmount: r.RemainingAmount.StringFixed(amountPlaces),
		SettledTotal:    r.SettledTotal.StringFixed(amountPlaces),
		Balanced:        r.Balanced,
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
