package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormVendorDirectory implements VendorDirectory using GORM
type GormVendorDirectory struct {
	db *gorm.DB
}

// NewGormVendorDirectory creates a new GormVendorDirectory
func NewGormVendorDirectory(db *gorm.DB) *GormVendorDirectory {
	return &GormVendorDirectory{db: db}
}

// FindByID finds a vendor of the scope's tenant
func (r *GormVendorDirectory) FindByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*custody.Vendor, error) {
	return r.findOne(ctx, scope, "id = ?", id)
}

// FindByPhone finds a vendor by normalised phone number
func (r *GormVendorDirectory) FindByPhone(ctx context.Context, scope shared.Scope, phone string) (*custody.Vendor, error) {
	return r.findOne(ctx, scope, "phone = ?", phone)
}

// FindByName finds a vendor by case-insensitive name
func (r *GormVendorDirectory) FindByName(ctx context.Context, scope shared.Scope, name string) (*custody.Vendor, error) {
	return r.findOne(ctx, scope, "LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name)))
}

// Vendors are tenant-wide; branch does not narrow them.
func (r *GormVendorDirectory) findOne(ctx context.Context, scope shared.Scope, cond string, arg any) (*custody.Vendor, error) {
	var model models.VendorModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", scope.TenantID).
		Where(cond, arg).
		Order("created_at ASC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create registers a new vendor
func (r *GormVendorDirectory) Create(ctx context.Context, vendor *custody.Vendor) error {
	return r.db.WithContext(ctx).Create(models.VendorModelFromDomain(vendor)).Error
}

// Ensure GormVendorDirectory implements VendorDirectory
var _ custody.VendorDirectory = (*GormVendorDirectory)(nil)
