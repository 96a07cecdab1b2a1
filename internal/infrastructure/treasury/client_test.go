package treasury

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/domain/shared/valueobject"
	"github.com/erp/custody/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, tweak ...func(*config.TreasuryConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.TreasuryConfig{
		BaseURL: srv.URL + "/treasury/",
		Timeout: 2 * time.Second,
		Breaker: config.BreakerConfig{MaxRequests: 1, Timeout: time.Minute, ConsecutiveFailures: 3},
	}
	for _, fn := range tweak {
		fn(&cfg)
	}
	c, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func inflow(account uuid.UUID, amount string) custody.TreasuryTransaction {
	return custody.TreasuryTransaction{
		TenantID:      uuid.New(),
		AccountID:     account,
		Direction:     custody.TreasuryInflow,
		Amount:        valueobject.MustMoney(decimal.RequireFromString(amount), valueobject.Currency("SAR")),
		ReferenceType: custody.TreasuryReferenceSettlement,
		ReferenceID:   uuid.New(),
		Description:   "Unused cash returned",
	}
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient(config.TreasuryConfig{BaseURL: "treasury.local"}, nil)
	assert.Error(t, err)

	_, err = NewClient(config.TreasuryConfig{}, nil)
	assert.Error(t, err)
}

func TestClient_CreateTransaction(t *testing.T) {
	account := uuid.New()
	tx := inflow(account, "20")

	var captured struct {
		method, path, idempotency, tenant, contentType string
		body                                           createTransactionRequest
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.idempotency = r.Header.Get("Idempotency-Key")
		captured.tenant = r.Header.Get("X-Tenant-ID")
		captured.contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"transaction_id":"TRX-100"}`))
	})

	receipt, err := c.CreateTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, "TRX-100", receipt.TransactionID)

	assert.Equal(t, http.MethodPost, captured.method)
	assert.Equal(t, "/treasury/accounts/"+account.String()+"/transactions", captured.path)
	assert.Equal(t, "settlement:"+tx.ReferenceID.String(), captured.idempotency)
	assert.Equal(t, tx.TenantID.String(), captured.tenant)
	assert.Equal(t, "application/json", captured.contentType)
	assert.Equal(t, createTransactionRequest{
		Direction:     "INFLOW",
		Amount:        "20.0000",
		Currency:      "SAR",
		ReferenceType: "settlement",
		ReferenceID:   tx.ReferenceID.String(),
		Description:   "Unused cash returned",
	}, captured.body)
}

func TestClient_CreateTransaction_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unknown account", http.StatusNotFound, `{"error":"no such account"}`, shared.ErrNotFound},
		{"rejected request", http.StatusUnprocessableEntity, `{"error":"account frozen"}`, shared.ErrExternalDependency},
		{"server error", http.StatusInternalServerError, "boom", shared.ErrExternalDependency},
		{"missing transaction id", http.StatusOK, `{}`, shared.ErrExternalDependency},
		{"malformed body", http.StatusOK, `not json`, shared.ErrExternalDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.CreateTransaction(context.Background(), inflow(uuid.New(), "5"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_CreateTransaction_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(cfg *config.TreasuryConfig) {
		cfg.Timeout = 50 * time.Millisecond
	})
	defer close(release)

	start := time.Now()
	_, err := c.CreateTransaction(context.Background(), inflow(uuid.New(), "5"))
	assert.ErrorIs(t, err, shared.ErrExternalDependency)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, err := c.CreateTransaction(context.Background(), inflow(uuid.New(), "5"))
		assert.ErrorIs(t, err, shared.ErrExternalDependency)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.CreateTransaction(context.Background(), inflow(uuid.New(), "5"))
	assert.ErrorIs(t, err, shared.ErrExternalDependency)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), hits.Load(), "open breaker must not reach the server")
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 5; i++ {
		_, err := c.CreateTransaction(context.Background(), inflow(uuid.New(), "5"))
		assert.ErrorIs(t, err, shared.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestClient_AccountExists(t *testing.T) {
	known := uuid.New()
	scope := shared.NewScope(uuid.New())

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, scope.TenantID.String(), r.Header.Get("X-Tenant-ID"))
		switch r.URL.Path {
		case "/treasury/accounts/" + known.String():
			_, _ = w.Write([]byte(`{"id":"` + known.String() + `"}`))
		case "/treasury/accounts/" + uuid.Nil.String():
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ok, err := c.AccountExists(context.Background(), scope, known)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.AccountExists(context.Background(), scope, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.AccountExists(context.Background(), scope, uuid.Nil)
	assert.ErrorIs(t, err, shared.ErrExternalDependency)
}
