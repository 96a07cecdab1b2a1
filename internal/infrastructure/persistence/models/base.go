package models

import (
	"time"

	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
)

// ScopedAggregateModel holds the persistence fields shared by tenant/branch-scoped aggregates.
// Version backs optimistic locking.
type ScopedAggregateModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	BranchID  *uuid.UUID `gorm:"type:uuid;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid"`
	Version   int        `gorm:"not null;default:1"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}

// FromDomainScopedAggregate populates the model from a domain ScopedAggregateRoot
func (m *ScopedAggregateModel) FromDomainScopedAggregate(a shared.ScopedAggregateRoot) {
	m.ID = a.ID
	m.TenantID = a.TenantID
	m.BranchID = a.BranchID
	m.CreatedBy = a.CreatedBy
	m.Version = a.Version
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// ToDomainScopedAggregate rebuilds the domain ScopedAggregateRoot; pending events are not persisted
func (m *ScopedAggregateModel) ToDomainScopedAggregate() shared.ScopedAggregateRoot {
	return shared.ScopedAggregateRoot{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
			Version:    m.Version,
		},
		TenantID:  m.TenantID,
		BranchID:  m.BranchID,
		CreatedBy: m.CreatedBy,
	}
}
