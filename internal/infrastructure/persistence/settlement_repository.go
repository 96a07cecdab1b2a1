package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormSettlementRepository implements SettlementRepository using GORM
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository creates a new GormSettlementRepository
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// Create inserts a settlement together with its purchase-order lines
func (r *GormSettlementRepository) Create(ctx context.Context, settlement *custody.Settlement) error {
	return r.db.WithContext(ctx).Create(models.SettlementModelFromDomain(settlement)).Error
}

// FindByAdvance lists the settlements of an advance in the order they were recorded
func (r *GormSettlementRepository) FindByAdvance(ctx context.Context, scope shared.Scope, advanceID uuid.UUID) ([]custody.Settlement, error) {
	var rows []models.SettlementModel
	if err := WithScope(r.db.WithContext(ctx), scope).
		Preload("LineItems").
		Where("advance_id = ?", advanceID).
		Order("created_at ASC").
		Order("number ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	settlements := make([]custody.Settlement, 0, len(rows))
	for i := range rows {
		s, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, *s)
	}
	return settlements, nil
}

// SumByAdvance calculates the total settled against an advance
func (r *GormSettlementRepository) SumByAdvance(ctx context.Context, scope shared.Scope, advanceID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	row := WithScope(r.db.WithContext(ctx).Model(&models.SettlementModel{}), scope).
		Select("SUM(amount)").
		Where("advance_id = ?", advanceID).
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum settlements: %w", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// GenerateSettlementNumber returns the next STL-YYYYMM-NNNNN number of the tenant
func (r *GormSettlementRepository) GenerateSettlementNumber(ctx context.Context, scope shared.Scope) (string, error) {
	return nextSequenceNumber(ctx, r.db, &models.SettlementModel{}, "number", "STL", scope, time.Now())
}

// Ensure GormSettlementRepository implements SettlementRepository
var _ custody.SettlementRepository = (*GormSettlementRepository)(nil)
