package custody

import (
	"strings"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
)

// Vendor is the party a purchase was made from
type Vendor struct {
	shared.BaseEntity
	TenantID uuid.UUID
	Name     string
	Phone    string
	Email    string
}

// NewVendor creates a vendor identity; phone and email are expected to be normalised already
func NewVendor(scope shared.Scope, name, phone, email string) (*Vendor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewValidationError("vendor name is required")
	}
	return &Vendor{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   scope.TenantID,
		Name:       name,
		Phone:      phone,
		Email:      strings.ToLower(strings.TrimSpace(email)),
	}, nil
}

// Ref returns the identity captured on a purchase order
func (v *Vendor) Ref() VendorRef {
	return VendorRef{ID: v.ID, Name: v.Name, Phone: v.Phone, Email: v.Email}
}
