package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Version      int
	domainEvents []DomainEvent
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent adds a domain event to be published
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot creates a new base aggregate root at version 1
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// ScopedAggregateRoot is an aggregate owned by a tenant and optionally a branch.
type ScopedAggregateRoot struct {
	BaseAggregateRoot
	TenantID  uuid.UUID
	BranchID  *uuid.UUID
	CreatedBy *uuid.UUID
}

// NewScopedAggregateRoot stamps a fresh aggregate with the caller's scope
func NewScopedAggregateRoot(scope Scope) ScopedAggregateRoot {
	return ScopedAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		TenantID:          scope.TenantID,
		BranchID:          scope.BranchID,
		CreatedBy:         scope.UserID,
	}
}

// VisibleIn reports whether the aggregate belongs to the given scope.
// A scope without a branch sees every branch of its tenant.
func (a *ScopedAggregateRoot) VisibleIn(scope Scope) bool {
	if a.TenantID != scope.TenantID {
		return false
	}
	if scope.BranchID == nil {
		return true
	}
	return a.BranchID != nil && *a.BranchID == *scope.BranchID
}
