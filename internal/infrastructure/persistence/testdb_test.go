package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/erp/custody/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupCustodyTestDB opens an in-memory SQLite database with every custody table.
// A single connection keeps the in-memory database shared across transactions.
func setupCustodyTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// setupRepoMockDB wires gorm's postgres dialector to sqlmock
func setupRepoMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

// newTestAdvance builds an advance with a fixed creation time so ordering is deterministic
func newTestAdvance(t *testing.T, scope shared.Scope, ref string, amount int64, costCenter *uuid.UUID, createdAt time.Time) *custody.Advance {
	t.Helper()
	a, err := custody.NewAdvance(scope, ref, custody.ExternalHolder("Site foreman"), costCenter,
		decimal.NewFromInt(amount), valueobject.Currency("SAR"), uuid.New())
	require.NoError(t, err)
	a.CreatedAt = createdAt
	a.UpdatedAt = createdAt
	a.ClearDomainEvents()
	return a
}

// insertApprovedAdvance persists an approved advance and returns it at its stored version
func insertApprovedAdvance(t *testing.T, db *gorm.DB, scope shared.Scope, ref string, amount int64, costCenter *uuid.UUID, createdAt time.Time) *custody.Advance {
	t.Helper()
	ctx := context.Background()
	repo := NewGormAdvanceRepository(db)

	a := newTestAdvance(t, scope, ref, amount, costCenter, createdAt)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, a.Approve("ok"))
	a.ClearDomainEvents()
	require.NoError(t, repo.SaveWithLock(ctx, a))
	return a
}

func insertCostCenter(t *testing.T, db *gorm.DB, tenantID uuid.UUID, code string, active bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now()
	require.NoError(t, db.Create(&models.CostCenterModel{
		ID: id, TenantID: tenantID, Code: code, Name: "Project " + code, Active: true,
		CreatedAt: now, UpdatedAt: now,
	}).Error)
	if !active {
		require.NoError(t, db.Model(&models.CostCenterModel{}).Where("id = ?", id).Update("active", false).Error)
	}
	return id
}
