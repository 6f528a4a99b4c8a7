// Package core holds the delivery plumbing shared by the API process and the
// queue worker: the SQS mail queue publisher, delivery metrics, and the retry
// policy applied to queued messages.
package core

import (
	"context"
	"time"

	"emailer/internal/types"
)

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricRetried MetricResult = "retried"
)

// DeliveryMetrics abstracts the telemetry emitted by the delivery pipeline.
type DeliveryMetrics interface {
	RecordBuilt(ctx context.Context, count int)
	RecordDiscarded(ctx context.Context, count int)
	RecordDelivery(ctx context.Context, mode types.DeliveryMode, provider string, result MetricResult)
	RecordLatency(ctx context.Context, mode types.DeliveryMode, d time.Duration)
}

// NopMetrics discards everything. Used when METRICS_ENABLED is false.
type NopMetrics struct{}

func (NopMetrics) RecordBuilt(context.Context, int) {}

func (NopMetrics) RecordDiscarded(context.Context, int) {}

func (NopMetrics) RecordDelivery(context.Context, types.DeliveryMode, string, MetricResult) {}

func (NopMetrics) RecordLatency(context.Context, types.DeliveryMode, time.Duration) {}

// RetryPolicy defines the exponential backoff for queued deliveries.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// QueueRetryPolicy applies to messages consumed from the mail queue. Delays
// stay under the SQS DelaySeconds limit.
var QueueRetryPolicy = RetryPolicy{
	MaxAttempts:   5,
	BaseDelay:     10 * time.Second,
	MaxDelay:      15 * time.Minute,
	BackoffFactor: 3.0,
}

// CalculateNextRetry computes min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func CalculateNextRetry(policy RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.BaseDelay)
	for range attempt {
		delay *= policy.BackoffFactor
	}

	d := time.Duration(delay)
	if d > policy.MaxDelay || d < 0 {
		d = policy.MaxDelay
	}
	return d
}
