package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	appcustody "github.com/erp/custody/internal/application/custody"
	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/event"
	"github.com/erp/custody/internal/infrastructure/logger"
	"github.com/erp/custody/internal/infrastructure/persistence"
	"github.com/erp/custody/internal/infrastructure/persistence/models"
	"github.com/erp/custody/internal/interfaces/http/dto"
	"github.com/erp/custody/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type stubTreasury struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]bool
	calls    []custody.TreasuryTransaction
	fail     error
}

func (s *stubTreasury) CreateTransaction(_ context.Context, tx custody.TreasuryTransaction) (custody.TreasuryReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return custody.TreasuryReceipt{}, s.fail
	}
	s.calls = append(s.calls, tx)
	return custody.TreasuryReceipt{TransactionID: fmt.Sprintf("TRX-%d", len(s.calls))}, nil
}

func (s *stubTreasury) AccountExists(_ context.Context, _ shared.Scope, id uuid.UUID) (bool, error) {
	return s.accounts[id], nil
}

type staticCostCenters map[uuid.UUID]bool

func (c staticCostCenters) CostCenterExists(_ context.Context, _ shared.Scope, id uuid.UUID) (bool, error) {
	return c[id], nil
}

type apiEnv struct {
	router   *gin.Engine
	treasury *stubTreasury
	tenantID uuid.UUID
	userID   uuid.UUID
	account  uuid.UUID
	projectA uuid.UUID
	projectB uuid.UUID
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	env := &apiEnv{
		tenantID: uuid.New(),
		userID:   uuid.New(),
		account:  uuid.New(),
		projectA: uuid.New(),
		projectB: uuid.New(),
	}
	env.treasury = &stubTreasury{accounts: map[uuid.UUID]bool{env.account: true}}

	deps := appcustody.LedgerDeps{
		Advances:    persistence.NewGormAdvanceRepository(db),
		Settlements: persistence.NewGormSettlementRepository(db),
		TxScope:     persistence.NewGormTransactionScope(db, event.NewOutboxPublisher(event.NewCustodySerializer())),
		Locker:      appcustody.NewLocalAdvanceLocker(),
		Accounts:    env.treasury,
		CostCenters: staticCostCenters{env.projectA: true, env.projectB: true},
		Logger:      zap.NewNop(),
	}
	services := appcustody.NewServices(deps, appcustody.NewPurchaseOrderLinker("SA"), env.treasury)

	env.router = gin.New()
	env.router.Use(logger.GinMiddleware(zap.NewNop()))
	api := env.router.Group("/custody", middleware.Scope())
	NewCustodyHandler(services).RegisterRoutes(api)
	return env
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, e.tenantID.String())
	req.Header.Set(middleware.UserHeader, e.userID.String())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// decode re-marshals the generic response data into out
func decode(t *testing.T, data any, out any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (e *apiEnv) issue(t *testing.T, amount string, costCenter *uuid.UUID) dto.AdvanceResponse {
	t.Helper()
	body := gin.H{
		"holder":              gin.H{"kind": "EMPLOYEE", "employee_id": uuid.NewString()},
		"amount":              amount,
		"currency":            "SAR",
		"treasury_account_id": e.account.String(),
	}
	if costCenter != nil {
		body["cost_center_id"] = costCenter.String()
	}
	w, resp := e.do(t, http.MethodPost, "/custody/advances", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var a dto.AdvanceResponse
	decode(t, resp.Data, &a)
	return a
}

func (e *apiEnv) approved(t *testing.T, amount string, costCenter *uuid.UUID) dto.AdvanceResponse {
	t.Helper()
	a := e.issue(t, amount, costCenter)
	w, resp := e.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/approval", gin.H{"approved": true, "note": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, resp.Data, &a)
	return a
}

func expenseBody(lines ...gin.H) gin.H {
	return gin.H{
		"vendor":     gin.H{"name": "Al Noor Trading", "phone": "0501234567"},
		"line_items": lines,
	}
}

func TestCustodyHandler_IssueAndApprove(t *testing.T) {
	env := newAPIEnv(t)

	a := env.issue(t, "500", &env.projectA)
	assert.Equal(t, "PENDING", a.Status)
	assert.Equal(t, "500.0000", a.OriginalAmount)
	assert.Equal(t, "500.0000", a.RemainingAmount)
	assert.Equal(t, "SAR", a.Currency)
	assert.Equal(t, "EMPLOYEE", a.Holder.Kind)
	require.NotNil(t, a.CostCenterID)
	assert.Equal(t, env.projectA.String(), *a.CostCenterID)
	assert.NotEmpty(t, a.ReferenceNumber)

	w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/approval", gin.H{"approved": true})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, resp.Data, &a)
	assert.Equal(t, "APPROVED", a.Status)

	t.Run("decision on a decided advance is not eligible", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/approval", gin.H{"approved": false})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, shared.CodeNotEligible, resp.Error.Code)
	})

	t.Run("approved flag is required", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/approval", gin.H{"note": "?"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.CodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "approved", resp.Error.Details[0].Field)
	})
}

func TestCustodyHandler_IssueValidation(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name   string
		body   gin.H
		status int
		code   string
	}{
		{
			name:   "unknown currency",
			body:   gin.H{"holder": gin.H{"kind": "EXTERNAL", "name": "Courier"}, "amount": "10", "currency": "ZZZ", "treasury_account_id": env.account.String()},
			status: http.StatusBadRequest,
			code:   shared.CodeValidation,
		},
		{
			name:   "non-positive amount",
			body:   gin.H{"holder": gin.H{"kind": "EXTERNAL", "name": "Courier"}, "amount": "0", "currency": "SAR", "treasury_account_id": env.account.String()},
			status: http.StatusBadRequest,
			code:   shared.CodeValidation,
		},
		{
			name:   "employee holder without id",
			body:   gin.H{"holder": gin.H{"kind": "EMPLOYEE"}, "amount": "10", "currency": "SAR", "treasury_account_id": env.account.String()},
			status: http.StatusBadRequest,
			code:   shared.CodeValidation,
		},
		{
			name:   "unknown treasury account",
			body:   gin.H{"holder": gin.H{"kind": "EXTERNAL", "name": "Courier"}, "amount": "10", "currency": "SAR", "treasury_account_id": uuid.NewString()},
			status: http.StatusBadRequest,
			code:   shared.CodeValidation,
		},
		{
			name:   "unknown cost center",
			body:   gin.H{"holder": gin.H{"kind": "EXTERNAL", "name": "Courier"}, "amount": "10", "currency": "SAR", "treasury_account_id": env.account.String(), "cost_center_id": uuid.NewString()},
			status: http.StatusNotFound,
			code:   shared.CodeNotFound,
		},
		{
			name:   "malformed amount",
			body:   gin.H{"holder": gin.H{"kind": "EXTERNAL", "name": "Courier"}, "amount": "ten", "currency": "SAR", "treasury_account_id": env.account.String()},
			status: http.StatusBadRequest,
			code:   dto.ErrCodeInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, http.MethodPost, "/custody/advances", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestCustodyHandler_SettleAsExpense(t *testing.T) {
	env := newAPIEnv(t)
	a := env.approved(t, "500", &env.projectA)

	w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/settlements/expense", expenseBody(
		gin.H{"description": "A4 paper", "quantity": "2", "unit_price": "45.50"},
		gin.H{"description": "Toner", "quantity": "1", "unit_price": "109"},
	))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var s dto.SettlementResponse
	decode(t, resp.Data, &s)
	assert.Equal(t, "EXPENSE", s.Kind)
	assert.Equal(t, "200.0000", s.Amount)
	require.NotNil(t, s.PurchaseOrder)
	assert.Equal(t, "Al Noor Trading", s.PurchaseOrder.VendorName)
	require.Len(t, s.PurchaseOrder.LineItems, 2)
	assert.Equal(t, "91.0000", s.PurchaseOrder.LineItems[0].LineTotal)
	assert.Equal(t, 2, s.PurchaseOrder.LineItems[1].Line)
	assert.Nil(t, s.TreasuryTransactionID)

	w, resp = env.do(t, http.MethodGet, "/custody/advances/"+a.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, resp.Data, &a)
	assert.Equal(t, "PARTIALLY_SETTLED", a.Status)
	assert.Equal(t, "300.0000", a.RemainingAmount)
	assert.Equal(t, "200.0000", a.SettledAmount)

	t.Run("amount above the remaining balance", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/settlements/expense", expenseBody(
			gin.H{"description": "Chairs", "quantity": "4", "unit_price": "100"},
		))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, shared.CodeAmountExceedsBalance, resp.Error.Code)
	})

	t.Run("line items are required", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/settlements/expense", gin.H{
			"vendor": gin.H{"name": "Al Noor Trading"}, "line_items": []gin.H{},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.CodeValidation, resp.Error.Code)
	})

	t.Run("pending advance is not eligible", func(t *testing.T) {
		pending := env.issue(t, "100", nil)
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+pending.ID+"/settlements/expense", expenseBody(
			gin.H{"description": "Water", "quantity": "1", "unit_price": "5"},
		))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, shared.CodeNotEligible, resp.Error.Code)
	})
}

func TestCustodyHandler_SettleAsReturn(t *testing.T) {
	env := newAPIEnv(t)
	a := env.approved(t, "250", nil)

	w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/settlements/return", gin.H{
		"amount": "250", "treasury_account_id": env.account.String(), "description": "unused",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var s dto.SettlementResponse
	decode(t, resp.Data, &s)
	assert.Equal(t, "RETURN", s.Kind)
	require.NotNil(t, s.TreasuryTransactionID)
	assert.Equal(t, "TRX-1", *s.TreasuryTransactionID)
	require.Len(t, env.treasury.calls, 1)
	assert.Equal(t, custody.TreasuryInflow, env.treasury.calls[0].Direction)

	w, resp = env.do(t, http.MethodGet, "/custody/advances/"+a.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, resp.Data, &a)
	assert.Equal(t, "SETTLED", a.Status)
	assert.Equal(t, "0.0000", a.RemainingAmount)
	assert.NotNil(t, a.SettledAt)

	t.Run("settled advance is not eligible", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/settlements/return", gin.H{
			"amount": "1", "treasury_account_id": env.account.String(),
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, shared.CodeNotEligible, resp.Error.Code)
	})

	t.Run("treasury failure maps to bad gateway", func(t *testing.T) {
		other := env.approved(t, "100", nil)
		env.treasury.fail = shared.NewExternalDependencyError("treasury", errors.New("connection refused"))
		t.Cleanup(func() { env.treasury.fail = nil })

		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+other.ID+"/settlements/return", gin.H{
			"amount": "40", "treasury_account_id": env.account.String(),
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, shared.CodeExternalDependency, resp.Error.Code)

		w, resp = env.do(t, http.MethodGet, "/custody/advances/"+other.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var unchanged dto.AdvanceResponse
		decode(t, resp.Data, &unchanged)
		assert.Equal(t, "100.0000", unchanged.RemainingAmount)
	})
}

func TestCustodyHandler_HistoryAndConservation(t *testing.T) {
	env := newAPIEnv(t)
	a := env.approved(t, "300", nil)

	w, _ := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/settlements/expense", expenseBody(
		gin.H{"description": "Fuel", "quantity": "1", "unit_price": "120"},
	))
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/settlements/return", gin.H{
		"amount": "80", "treasury_account_id": env.account.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := env.do(t, http.MethodGet, "/custody/advances/"+a.ID+"/settlements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []dto.SettlementResponse
	decode(t, resp.Data, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "EXPENSE", history[0].Kind)
	assert.Equal(t, "RETURN", history[1].Kind)

	w, resp = env.do(t, http.MethodGet, "/custody/advances/"+a.ID+"/conservation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report dto.ConservationResponse
	decode(t, resp.Data, &report)
	assert.True(t, report.Balanced)
	assert.Equal(t, "200.0000", report.SettledTotal)
	assert.Equal(t, "100.0000", report.RemainingAmount)
}

func TestCustodyHandler_Transfer(t *testing.T) {
	env := newAPIEnv(t)
	a := env.approved(t, "400", &env.projectA)

	w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/transfer", gin.H{
		"new_cost_center_id": env.projectB.String(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result dto.TransferResponse
	decode(t, resp.Data, &result)
	assert.Equal(t, "TRANSFERRED", result.Closed.Status)
	assert.Equal(t, "400.0000", result.Closed.RemainingAmount, "closed advance keeps the carried value")
	assert.Equal(t, "APPROVED", result.New.Status)
	assert.Equal(t, "400.0000", result.New.RemainingAmount)
	assert.Equal(t, "400.0000", result.CarriedAmount)
	require.NotNil(t, result.New.SourceAdvanceID)
	assert.Equal(t, a.ID, *result.New.SourceAdvanceID)
	require.NotNil(t, result.New.CostCenterID)
	assert.Equal(t, env.projectB.String(), *result.New.CostCenterID)

	t.Run("closed advance cannot be transferred again", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+a.ID+"/transfer", gin.H{})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, shared.CodeNotEligible, resp.Error.Code)
	})

	t.Run("empty body moves the balance to the general bucket", func(t *testing.T) {
		w, resp := env.do(t, http.MethodPost, "/custody/advances/"+result.New.ID+"/transfer", nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var general dto.TransferResponse
		decode(t, resp.Data, &general)
		assert.Nil(t, general.New.CostCenterID)
	})
}

func TestCustodyHandler_ListOpenAdvances(t *testing.T) {
	env := newAPIEnv(t)
	env.approved(t, "100", &env.projectA)
	env.approved(t, "200", nil)
	env.issue(t, "300", nil)

	w, resp := env.do(t, http.MethodGet, "/custody/advances/open?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []dto.AdvanceResponse
	decode(t, resp.Data, &all)
	assert.Len(t, all, 2)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(2), resp.Meta.Total)

	w, resp = env.do(t, http.MethodGet, "/custody/advances/open?general_only=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var general []dto.AdvanceResponse
	decode(t, resp.Data, &general)
	require.Len(t, general, 1)
	assert.Equal(t, "200.0000", general[0].OriginalAmount)

	w, resp = env.do(t, http.MethodGet, "/custody/advances/open?cost_center_id="+env.projectA.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var byProject []dto.AdvanceResponse
	decode(t, resp.Data, &byProject)
	require.Len(t, byProject, 1)
	assert.Equal(t, "100.0000", byProject[0].OriginalAmount)

	t.Run("conflicting filters", func(t *testing.T) {
		w, resp := env.do(t, http.MethodGet, "/custody/advances/open?general_only=true&cost_center_id="+env.projectA.String(), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.CodeValidation, resp.Error.Code)
	})

	t.Run("page size above the cap", func(t *testing.T) {
		w, _ := env.do(t, http.MethodGet, "/custody/advances/open?page_size=1000", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCustodyHandler_NotFoundAndBadIDs(t *testing.T) {
	env := newAPIEnv(t)

	w, resp := env.do(t, http.MethodGet, "/custody/advances/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, shared.CodeNotFound, resp.Error.Code)

	w, resp = env.do(t, http.MethodGet, "/custody/advances/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeValidation, resp.Error.Code)
}

func TestCustodyHandler_TenantIsolation(t *testing.T) {
	env := newAPIEnv(t)
	a := env.approved(t, "100", nil)

	env.tenantID = uuid.New()
	w, resp := env.do(t, http.MethodGet, "/custody/advances/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, shared.CodeNotFound, resp.Error.Code)
}
