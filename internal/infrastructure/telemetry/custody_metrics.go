package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
var (
	AttrTenantID       = attribute.Key("tenant_id")
	AttrCurrency       = attribute.Key("currency")
	AttrSettlementKind = attribute.Key("settlement_kind")
	AttrOutcome        = attribute.Key("outcome")
)

// TreasuryDurationBuckets are bucket boundaries for treasury round trips (seconds).
var TreasuryDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// CustodyMetrics records advance and settlement activity.
// A nil *CustodyMetrics is valid and records nothing.
type CustodyMetrics struct {
	advancesIssued   metric.Int64Counter
	settlements      metric.Int64Counter
	settledAmount    metric.Float64Counter
	transfers        metric.Int64Counter
	treasuryDuration metric.Float64Histogram
}

// NewCustodyMetrics registers the custody instruments on meter
func NewCustodyMetrics(meter metric.Meter) (*CustodyMetrics, error) {
	m := &CustodyMetrics{}
	var err error

	if m.advancesIssued, err = meter.Int64Counter("custody_advances_issued_total",
		metric.WithDescription("Advances issued, including successors created by transfer"),
		metric.WithUnit("{advance}")); err != nil {
		return nil, fmt.Errorf("failed to create advances counter: %w", err)
	}
	if m.settlements, err = meter.Int64Counter("custody_settlements_total",
		metric.WithDescription("Settlements applied to advances"),
		metric.WithUnit("{settlement}")); err != nil {
		return nil, fmt.Errorf("failed to create settlements counter: %w", err)
	}
	if m.settledAmount, err = meter.Float64Counter("custody_settled_amount_total",
		metric.WithDescription("Amount settled against advances")); err != nil {
		return nil, fmt.Errorf("failed to create settled amount counter: %w", err)
	}
	if m.transfers, err = meter.Int64Counter("custody_transfers_total",
		metric.WithDescription("Advances transferred between cost centers"),
		metric.WithUnit("{transfer}")); err != nil {
		return nil, fmt.Errorf("failed to create transfers counter: %w", err)
	}
	if m.treasuryDuration, err = meter.Float64Histogram("custody_treasury_call_duration_seconds",
		metric.WithDescription("Duration of treasury gateway calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(TreasuryDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create treasury histogram: %w", err)
	}
	return m, nil
}

// RecordAdvanceIssued counts a new advance
func (m *CustodyMetrics) RecordAdvanceIssued(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	m.advancesIssued.Add(ctx, 1, metric.WithAttributes(AttrCurrency.String(currency)))
}

// RecordSettlement counts a settlement and its amount
func (m *CustodyMetrics) RecordSettlement(ctx context.Context, kind, currency string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrSettlementKind.String(kind), AttrCurrency.String(currency))
	m.settlements.Add(ctx, 1, attrs)
	m.settledAmount.Add(ctx, amount.InexactFloat64(), attrs)
}

// RecordTransfer counts a transfer
func (m *CustodyMetrics) RecordTransfer(ctx context.Context) {
	if m == nil {
		return
	}
	m.transfers.Add(ctx, 1)
}

// RecordTreasuryCall records a treasury round trip and whether it succeeded
func (m *CustodyMetrics) RecordTreasuryCall(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.treasuryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrOutcome.String(outcome)))
}
