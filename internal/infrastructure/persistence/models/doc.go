// Package models contains GORM persistence models that map to database tables.
// They are separate from domain entities so the domain stays free of ORM tags;
// each model carries ToDomain/FromDomain mappers used by the repositories.
//
//   - base.go: ScopedAggregateModel shared by tenant/branch-scoped aggregates
//   - custody.go: advances, settlements, settlement line items, vendors, cost centers
//   - outbox.go: transactional outbox rows
package models
