package persistence

import (
	"github.com/erp/custody/internal/domain/shared"
	"gorm.io/gorm"
)

// WithScope confines db to the scope's tenant, and to its branch when one is set.
// Panics on an empty tenant to prevent data leakage.
func WithScope(db *gorm.DB, scope shared.Scope) *gorm.DB {
	if scope.Validate() != nil {
		panic("WithScope called without a tenant - this is a programming error")
	}
	db = db.Where("tenant_id = ?", scope.TenantID)
	if scope.BranchID != nil {
		db = db.Where("branch_id = ?", *scope.BranchID)
	}
	return db
}

// WithScope returns a new GORM DB instance scoped to the given tenant and branch.
func (d *Database) WithScope(scope shared.Scope) *gorm.DB {
	return WithScope(d.DB, scope)
}
