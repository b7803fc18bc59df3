package services

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "circulation/internal/services"

// Metrics are the circulation counters exported through OpenTelemetry. Without a configured
// MeterProvider they are no-ops.
type Metrics struct {
	borrows       metric.Int64Counter
	returns       metric.Int64Counter
	finesCharged  metric.Float64Counter
	notifications metric.Int64Counter
}

// NewMetrics registers the counters on mp, or on the global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	borrows, err := meter.Int64Counter("circulation.borrows",
		metric.WithDescription("Borrow requests by outcome"))
	if err != nil {
		return nil, err
	}
	returns, err := meter.Int64Counter("circulation.returns",
		metric.WithDescription("Completed returns"))
	if err != nil {
		return nil, err
	}
	fines, err := meter.Float64Counter("circulation.fines_charged",
		metric.WithDescription("Total fine amount charged to users"))
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("circulation.waitlist_notifications",
		metric.WithDescription("Waitlist notifications by result"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		borrows:       borrows,
		returns:       returns,
		finesCharged:  fines,
		notifications: notifications,
	}, nil
}

func (m *Metrics) borrowed(ctx context.Context, outcome Outcome) {
	m.borrows.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}

func (m *Metrics) returned(ctx context.Context) {
	m.returns.Add(ctx, 1)
}

func (m *Metrics) fineCharged(ctx context.Context, amount decimal.Decimal) {
	m.finesCharged.Add(ctx, amount.InexactFloat64())
}

func (m *Metrics) notified(ctx context.Context, ok bool) {
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
