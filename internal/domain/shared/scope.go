package shared

import (
	"github.com/google/uuid"
)

// Scope carries the tenant/branch/user a request acts on behalf of.
// It is passed explicitly into every engine call; nothing is kept between calls.
type Scope struct {
	TenantID uuid.UUID
	BranchID *uuid.UUID
	UserID   *uuid.UUID
}

// NewScope builds a tenant-wide scope
func NewScope(tenantID uuid.UUID) Scope {
	return Scope{TenantID: tenantID}
}

// WithBranch narrows the scope to a single branch
func (s Scope) WithBranch(branchID uuid.UUID) Scope {
	s.BranchID = &branchID
	return s
}

// WithUser records the acting user
func (s Scope) WithUser(userID uuid.UUID) Scope {
	s.UserID = &userID
	return s
}

// Validate ensures the scope names a tenant
func (s Scope) Validate() error {
	if s.TenantID == uuid.Nil {
		return NewValidationError("tenant is required")
	}
	return nil
}
