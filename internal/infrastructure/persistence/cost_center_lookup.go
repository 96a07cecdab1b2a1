package persistence

import (
	"context"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCostCenterLookup resolves cost centers from the shared cost_centers table
type GormCostCenterLookup struct {
	db *gorm.DB
}

// NewGormCostCenterLookup creates a new GormCostCenterLookup
func NewGormCostCenterLookup(db *gorm.DB) *GormCostCenterLookup {
	return &GormCostCenterLookup{db: db}
}

// CostCenterExists reports whether an active cost center of the tenant has the given id
func (l *GormCostCenterLookup) CostCenterExists(ctx context.Context, scope shared.Scope, costCenterID uuid.UUID) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).
		Model(&models.CostCenterModel{}).
		Where("tenant_id = ? AND id = ? AND active = ?", scope.TenantID, costCenterID, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Ensure GormCostCenterLookup implements CostCenterLookup
var _ custody.CostCenterLookup = (*GormCostCenterLookup)(nil)
