package email

import (
	"context"
	"fmt"

	"emailer/internal/external"
	"emailer/internal/notifications/core"
	"emailer/internal/types"
)

// Mailer is the delivery backend used after commit.
type Mailer interface {
	// SendImmediately delivers msg through the configured provider.
	SendImmediately(ctx context.Context, msg types.Message) error
	// SendToQueue hands msg to the mail queue for the worker to deliver.
	SendToQueue(ctx context.Context, msg types.Message) error
}

// Dispatcher implements Mailer on top of an EmailProvider and an optional
// queue publisher. A message without a sender gets the default sender.
type Dispatcher struct {
	provider      external.EmailProvider
	publisher     core.Publisher
	metrics       core.DeliveryMetrics
	defaultSender string
	logger        types.Logger
	clock         types.Clock
}

// DispatcherConfig holds the dependencies of a Dispatcher.
type DispatcherConfig struct {
	Provider      external.EmailProvider
	Publisher     core.Publisher
	Metrics       core.DeliveryMetrics
	DefaultSender string
	Logger        types.Logger
}

// NewDispatcher creates a Dispatcher. Publisher may be nil when no mail queue
// is configured; SendToQueue then fails.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		provider:      cfg.Provider,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		defaultSender: cfg.DefaultSender,
		logger:        cfg.Logger,
		clock:         types.RealClock{},
	}
	if d.metrics == nil {
		d.metrics = core.NopMetrics{}
	}
	if d.logger == nil {
		d.logger = types.NopLogger{}
	}
	return d
}

func (d *Dispatcher) withSender(msg types.Message) types.Message {
	if msg.Sender == "" {
		msg.Sender = d.defaultSender
	}
	return msg
}

// SendImmediately sends msg and returns the provider error unchanged.
func (d *Dispatcher) SendImmediately(ctx context.Context, msg types.Message) error {
	msg = d.withSender(msg)
	d.logger.Info("Sending email",
		"message_id", msg.ID,
		"recipients", RedactAll(msg.Recipients),
	)

	start := d.clock.Now()
	providerID, err := d.provider.Send(ctx, msg)
	d.metrics.RecordLatency(ctx, types.DeliveryImmediate, d.clock.Now().Sub(start))
	if err != nil {
		d.metrics.RecordDelivery(ctx, types.DeliveryImmediate, d.provider.Name(), core.MetricFailed)
		if IsBlocklistError(err) {
			d.logger.Warn("Recipient refused by provider",
				"message_id", msg.ID,
				"recipients", RedactAll(msg.Recipients),
			)
		}
		return err
	}

	d.metrics.RecordDelivery(ctx, types.DeliveryImmediate, d.provider.Name(), core.MetricSuccess)
	d.logger.Info("Email sent", "message_id", msg.ID, "provider_message_id", providerID)
	return nil
}

// SendToQueue publishes msg with no delay.
func (d *Dispatcher) SendToQueue(ctx context.Context, msg types.Message) error {
	if d.publisher == nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "no mail queue configured", nil)
	}
	msg = d.withSender(msg)
	queued := types.QueuedMessage{
		Message:   msg,
		RequestID: types.GetRequestID(ctx),
		QueuedAt:  d.clock.Now(),
	}
	if err := d.publisher.Publish(ctx, queued, 0); err != nil {
		d.metrics.RecordDelivery(ctx, types.DeliveryQueued, "sqs", core.MetricFailed)
		return fmt.Errorf("queueing message %s: %w", msg.ID, err)
	}
	return nil
}

var _ Mailer = (*Dispatcher)(nil)
