package core

import (
	"context"
	"errors"
	"time"

	"emailer/internal/external"
	"emailer/internal/types"
)

// Publisher re-queues a message after a delay.
type Publisher interface {
	Publish(ctx context.Context, msg types.QueuedMessage, delay time.Duration) error
}

// DeliveryManager delivers messages consumed from the mail queue. Transient
// failures are re-published with backoff until the policy is exhausted;
// everything else is logged and dropped.
type DeliveryManager struct {
	provider    external.EmailProvider
	publisher   Publisher
	metrics     DeliveryMetrics
	retryPolicy RetryPolicy
	logger      types.Logger
	clock       types.Clock
}

// DeliveryManagerConfig holds the dependencies of a DeliveryManager.
type DeliveryManagerConfig struct {
	Provider    external.EmailProvider
	Publisher   Publisher
	Metrics     DeliveryMetrics
	RetryPolicy RetryPolicy
	Logger      types.Logger
}

// NewDeliveryManager creates a DeliveryManager. Zero-valued optional fields
// fall back to NopMetrics, QueueRetryPolicy and NopLogger.
func NewDeliveryManager(cfg DeliveryManagerConfig) *DeliveryManager {
	m := &DeliveryManager{
		provider:    cfg.Provider,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		retryPolicy: cfg.RetryPolicy,
		logger:      cfg.Logger,
		clock:       types.RealClock{},
	}
	if m.metrics == nil {
		m.metrics = NopMetrics{}
	}
	if m.retryPolicy.MaxAttempts == 0 {
		m.retryPolicy = QueueRetryPolicy
	}
	if m.logger == nil {
		m.logger = types.NopLogger{}
	}
	return m
}

// Deliver sends msg. A non-nil error means the message could neither be sent
// nor re-queued, and the caller should let SQS redeliver it.
func (m *DeliveryManager) Deliver(ctx context.Context, msg types.QueuedMessage) error {
	logger := m.logger.With(
		"message_id", msg.Message.ID,
		"retry_count", msg.RetryCount,
		"request_id", msg.RequestID,
	)
	start := m.clock.Now()

	providerID, err := m.provider.Send(ctx, msg.Message)
	m.metrics.RecordLatency(ctx, types.DeliveryQueued, m.clock.Now().Sub(start))
	if err == nil {
		m.metrics.RecordDelivery(ctx, types.DeliveryQueued, m.provider.Name(), MetricSuccess)
		logger.Info("Queued message delivered", "provider_message_id", providerID)
		return nil
	}

	if !ShouldRetry(err) {
		m.metrics.RecordDelivery(ctx, types.DeliveryQueued, m.provider.Name(), MetricFailed)
		logger.Error("Queued message permanently failed", "error", err.Error())
		return nil
	}

	next := msg.RetryCount + 1
	if next >= m.retryPolicy.MaxAttempts {
		m.metrics.RecordDelivery(ctx, types.DeliveryQueued, m.provider.Name(), MetricFailed)
		logger.Error("Queued message dropped after max retries",
			"max_attempts", m.retryPolicy.MaxAttempts,
			"error", err.Error(),
		)
		return nil
	}

	delay := CalculateNextRetry(m.retryPolicy, msg.RetryCount)
	msg.RetryCount = next
	if pubErr := m.publisher.Publish(ctx, msg, delay); pubErr != nil {
		return errors.Join(err, pubErr)
	}

	m.metrics.RecordDelivery(ctx, types.DeliveryQueued, m.provider.Name(), MetricRetried)
	logger.Warn("Queued message delivery failed, retry scheduled",
		"delay_seconds", int(delay.Seconds()),
		"error", err.Error(),
	)
	return nil
}

// ShouldRetry reports whether a delivery error is transient. Refused
// recipients and malformed messages are terminal.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	switch types.ErrorCodeOf(err) {
	case types.ErrCodeEmailBlocked,
		types.ErrCodeValidationInvalidEmail,
		types.ErrCodeInternalTemplate:
		return false
	}
	return true
}
