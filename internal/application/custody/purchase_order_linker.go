package custody

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// VendorInput identifies the vendor of an expense: either an existing vendor
// or the identity of a vendor to resolve or register.
type VendorInput struct {
	ExistingVendorID *uuid.UUID
	Name             string
	Phone            string
	Email            string
}

// LineItemInput is one purchased line as submitted by the caller
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// PurchaseOrderLinker builds the immutable purchase-order snapshot of an expense settlement
type PurchaseOrderLinker struct {
	defaultRegion string
	validate      *validator.Validate
}

// NewPurchaseOrderLinker creates a linker; defaultRegion is the ISO 3166 region
// used to parse phone numbers written without a country code.
func NewPurchaseOrderLinker(defaultRegion string) *PurchaseOrderLinker {
	return &PurchaseOrderLinker{
		defaultRegion: strings.ToUpper(strings.TrimSpace(defaultRegion)),
		validate:      validator.New(),
	}
}

// BuildLineItems validates the submitted lines and computes their totals, preserving order
func (l *PurchaseOrderLinker) BuildLineItems(inputs []LineItemInput) ([]custody.LineItem, error) {
	if len(inputs) == 0 {
		return nil, shared.NewValidationError("at least one line item is required")
	}
	items := make([]custody.LineItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := custody.NewLineItem(i+1, in.Description, in.Quantity, in.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// BuildSnapshot resolves the vendor through vendors and freezes it with the line items
func (l *PurchaseOrderLinker) BuildSnapshot(
	ctx context.Context,
	scope shared.Scope,
	vendors custody.VendorDirectory,
	input VendorInput,
	items []custody.LineItem,
) (*custody.PurchaseOrderSnapshot, error) {
	vendor, err := l.ResolveVendor(ctx, scope, vendors, input)
	if err != nil {
		return nil, err
	}
	return custody.NewPurchaseOrderSnapshot(vendor.Ref(), items)
}

// ResolveVendor returns the referenced vendor, an existing vendor matching the
// given identity, or a newly registered one.
func (l *PurchaseOrderLinker) ResolveVendor(
	ctx context.Context,
	scope shared.Scope,
	vendors custody.VendorDirectory,
	input VendorInput,
) (*custody.Vendor, error) {
	if input.ExistingVendorID != nil {
		vendor, err := vendors.FindByID(ctx, scope, *input.ExistingVendorID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewNotFoundError("vendor", *input.ExistingVendorID)
			}
			return nil, fmt.Errorf("failed to find vendor: %w", err)
		}
		return vendor, nil
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, shared.NewValidationError("vendor name is required")
	}
	phone, err := l.NormalizePhone(input.Phone)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(input.Email)
	if email != "" {
		if err := l.validate.Var(email, "email"); err != nil {
			return nil, shared.NewValidationError("vendor email %q is invalid", email)
		}
	}

	if phone != "" {
		vendor, err := vendors.FindByPhone(ctx, scope, phone)
		if err == nil {
			return vendor, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("failed to find vendor by phone: %w", err)
		}
	}
	vendor, err := vendors.FindByName(ctx, scope, name)
	if err == nil {
		return vendor, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to find vendor by name: %w", err)
	}

	vendor, err = custody.NewVendor(scope, name, phone, email)
	if err != nil {
		return nil, err
	}
	if err := vendors.Create(ctx, vendor); err != nil {
		return nil, fmt.Errorf("failed to create vendor: %w", err)
	}
	return vendor, nil
}

// NormalizePhone validates a phone number and formats it as E.164; empty input stays empty
func (l *PurchaseOrderLinker) NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, l.defaultRegion)
	if err != nil {
		return "", shared.NewValidationError("vendor phone %q is invalid", raw)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", shared.NewValidationError("vendor phone %q is invalid", raw)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
