// Package treasury is the HTTP adapter for the external treasury ledger.
package treasury

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/config"
	"github.com/erp/custody/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerTenantID       = "X-Tenant-ID"
	maxErrorBody         = 4 << 10
)

// Client implements custody.TreasuryGateway and custody.TreasuryAccountLookup over HTTP.
// Calls run through a circuit breaker; 4xx answers do not count as failures.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a treasury client from configuration
func NewClient(cfg config.TreasuryConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("treasury base URL %q is not an absolute URL", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(cfg.Breaker, logger)
	return c, nil
}

func newBreaker(cfg config.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "treasury",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.status < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Treasury circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// State reports the circuit breaker state
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

type createTransactionRequest struct {
	Direction     string `json:"direction"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Description   string `json:"description,omitempty"`
}

type createTransactionResponse struct {
	TransactionID string `json:"transaction_id"`
}

// CreateTransaction records an inflow or outflow on the treasury account.
// The idempotency key lets the treasury deduplicate retried requests.
func (c *Client) CreateTransaction(ctx context.Context, tx custody.TreasuryTransaction) (custody.TreasuryReceipt, error) {
	ctx, span := telemetry.StartClientSpan(ctx, "treasury.CreateTransaction",
		"treasury.account_id", tx.AccountID.String(),
		"treasury.direction", string(tx.Direction),
		"treasury.reference", tx.IdempotencyKey(),
	)
	defer span.End()

	body := createTransactionRequest{
		Direction:     string(tx.Direction),
		Amount:        tx.Amount.Amount().StringFixed(4),
		Currency:      string(tx.Amount.Currency()),
		ReferenceType: tx.ReferenceType,
		ReferenceID:   tx.ReferenceID.String(),
		Description:   tx.Description,
	}
	headers := http.Header{}
	headers.Set(headerIdempotencyKey, tx.IdempotencyKey())

	var out createTransactionResponse
	err := c.call(ctx, http.MethodPost, accountPath(tx.AccountID, "transactions"), tx.TenantID, headers, body, &out)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return custody.TreasuryReceipt{}, shared.NewNotFoundError("treasury account", tx.AccountID)
		}
		telemetry.RecordError(span, err)
		return custody.TreasuryReceipt{}, shared.NewExternalDependencyError("treasury", err)
	}
	if out.TransactionID == "" {
		err := errors.New("treasury response carried no transaction_id")
		telemetry.RecordError(span, err)
		return custody.TreasuryReceipt{}, shared.NewExternalDependencyError("treasury", err)
	}

	telemetry.SetAttributes(span, "treasury.transaction_id", out.TransactionID)
	return custody.TreasuryReceipt{TransactionID: out.TransactionID}, nil
}

// AccountExists reports whether the account is known to the treasury for the scope's tenant
func (c *Client) AccountExists(ctx context.Context, scope shared.Scope, accountID uuid.UUID) (bool, error) {
	ctx, span := telemetry.StartClientSpan(ctx, "treasury.AccountExists",
		"treasury.account_id", accountID.String(),
	)
	defer span.End()

	err := c.call(ctx, http.MethodGet, accountPath(accountID), scope.TenantID, nil, nil, nil)
	switch {
	case err == nil:
		return true, nil
	case isStatus(err, http.StatusNotFound):
		return false, nil
	default:
		telemetry.RecordError(span, err)
		return false, shared.NewExternalDependencyError("treasury", err)
	}
}

func accountPath(accountID uuid.UUID, parts ...string) string {
	return "/" + strings.Join(append([]string{"accounts", accountID.String()}, parts...), "/")
}

// statusError is a non-2xx treasury answer
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("treasury returned HTTP %d", e.status)
	}
	return fmt.Sprintf("treasury returned HTTP %d: %s", e.status, e.body)
}

func isStatus(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == status
}

// call performs one request through the breaker with the per-call timeout
func (c *Client) call(ctx context.Context, method, path string, tenantID uuid.UUID, headers http.Header, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.do(ctx, method, path, tenantID, headers, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Treasury call rejected by circuit breaker",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return fmt.Errorf("treasury circuit open: %w", err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, tenantID uuid.UUID, headers http.Header, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode treasury request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create treasury request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerTenantID, tenantID.String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("treasury request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode treasury response: %w", err)
	}
	return nil
}

var (
	_ custody.TreasuryGateway       = (*Client)(nil)
	_ custody.TreasuryAccountLookup = (*Client)(nil)
)
