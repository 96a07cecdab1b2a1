package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAdvanceRepository implements AdvanceRepository using GORM
type GormAdvanceRepository struct {
	db *gorm.DB
}

// NewGormAdvanceRepository creates a new GormAdvanceRepository
func NewGormAdvanceRepository(db *gorm.DB) *GormAdvanceRepository {
	return &GormAdvanceRepository{db: db}
}

// FindByID finds an advance visible in scope
func (r *GormAdvanceRepository) FindByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*custody.Advance, error) {
	return r.find(WithScope(r.db.WithContext(ctx), scope), id)
}

// FindByIDForUpdate finds an advance and locks its row until the transaction ends
func (r *GormAdvanceRepository) FindByIDForUpdate(ctx context.Context, scope shared.Scope, id uuid.UUID) (*custody.Advance, error) {
	query := WithScope(r.db.WithContext(ctx), scope).
		Clauses(clause.Locking{Strength: "UPDATE"})
	return r.find(query, id)
}

func (r *GormAdvanceRepository) find(query *gorm.DB, id uuid.UUID) (*custody.Advance, error) {
	var model models.AdvanceModel
	if err := query.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpen lists advances that can still be settled or transferred, newest first
func (r *GormAdvanceRepository) FindOpen(ctx context.Context, scope shared.Scope, filter custody.OpenAdvanceFilter) ([]custody.Advance, int64, error) {
	page := filter.Normalize()

	query := WithScope(r.db.WithContext(ctx).Model(&models.AdvanceModel{}), scope).
		Where("status IN ?", []string{
			string(custody.AdvanceStatusApproved),
			string(custody.AdvanceStatusPartiallySettled),
		}).
		Where("remaining_amount > 0")

	if filter.HolderRef != nil {
		query = query.Where("holder_ref = ?", *filter.HolderRef)
	}
	if name := strings.TrimSpace(filter.HolderName); name != "" {
		query = query.Where("LOWER(holder_name) = ?", strings.ToLower(name))
	}
	switch {
	case filter.GeneralOnly:
		query = query.Where("cost_center_id IS NULL")
	case filter.CostCenterID != nil:
		query = query.Where("cost_center_id = ?", *filter.CostCenterID)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.AdvanceModel
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	advances := make([]custody.Advance, 0, len(rows))
	for i := range rows {
		advances = append(advances, *rows[i].ToDomain())
	}
	return advances, total, nil
}

// Create inserts a new advance
func (r *GormAdvanceRepository) Create(ctx context.Context, advance *custody.Advance) error {
	return r.db.WithContext(ctx).Create(models.AdvanceModelFromDomain(advance)).Error
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormAdvanceRepository) SaveWithLock(ctx context.Context, advance *custody.Advance) error {
	result := r.db.WithContext(ctx).
		Model(&models.AdvanceModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", advance.ID, advance.TenantID, advance.Version-1).
		Updates(map[string]any{
			"remaining_amount": advance.RemainingAmount,
			"status":           string(advance.Status),
			"decision_note":    advance.DecisionNote,
			"settled_at":       advance.SettledAt,
			"version":          advance.Version,
			"updated_at":       advance.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConcurrencyConflict,
			fmt.Sprintf("advance %s was modified concurrently", advance.ID))
	}
	return nil
}

// GenerateReferenceNumber returns the next ADV-YYYYMM-NNNNN reference of the tenant
func (r *GormAdvanceRepository) GenerateReferenceNumber(ctx context.Context, scope shared.Scope) (string, error) {
	return nextSequenceNumber(ctx, r.db, &models.AdvanceModel{}, "reference_number", "ADV", scope, time.Now())
}

// Ensure GormAdvanceRepository implements AdvanceRepository
var _ custody.AdvanceRepository = (*GormAdvanceRepository)(nil)
