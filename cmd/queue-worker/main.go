// Package main is the entrypoint for the mail queue worker Lambda function.
//
// The worker consumes messages published by the API in queued delivery mode
// and sends them through the configured mail provider. Transient failures are
// re-published with backoff by the DeliveryManager; a record is reported as a
// batch item failure only when it could neither be sent nor re-queued, so SQS
// redelivers exactly those.
//
// With APP_ENV=local the worker reads one SQS event from stdin instead of
// starting the Lambda runtime:
//
//	echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run ./cmd/queue-worker
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"emailer/internal/config"
	"emailer/internal/external"
	"emailer/internal/notifications/core"
	"emailer/internal/types"
)

// maxConcurrentDeliveries bounds provider calls per invocation.
const maxConcurrentDeliveries = 4

// Deliverer sends one queued message.
type Deliverer interface {
	Deliver(ctx context.Context, msg types.QueuedMessage) error
}

// Handler holds the dependencies of the queue worker.
type Handler struct {
	delivery    Deliverer
	logger      types.Logger
	concurrency int
}

// Handle processes an SQS batch. Records are delivered concurrently; the
// response lists the records SQS should redeliver.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu       sync.Mutex
		response events.SQSEventResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.concurrency, 1))
	for _, record := range sqsEvent.Records {
		g.Go(func() error {
			if err := h.processRecord(gctx, record); err != nil {
				h.logger.Error("failed to process SQS message",
					"sqs_message_id", record.MessageId,
					"error", err.Error(),
				)
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
				)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return response, nil
}

// processRecord decodes and delivers one record. Undecodable bodies are
// acknowledged: redelivering them cannot succeed.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	msg, err := core.DecodeQueuedMessage(record.Body, encodingOf(record))
	if err != nil {
		h.logger.Error("dropping undecodable queue message",
			"sqs_message_id", record.MessageId,
			"error", err.Error(),
		)
		return nil
	}
	if len(msg.Message.Recipients) == 0 {
		h.logger.Warn("dropping queue message without recipients",
			"sqs_message_id", record.MessageId,
			"message_id", msg.Message.ID,
		)
		return nil
	}

	h.logger.Info("processing queue message",
		"message_id", msg.Message.ID,
		"retry_count", msg.RetryCount,
		"sent_timestamp", record.Attributes["SentTimestamp"],
	)

	return h.delivery.Deliver(ctx, msg)
}

func encodingOf(record events.SQSMessage) string {
	attr, ok := record.MessageAttributes[core.AttrEncoding]
	if !ok || attr.StringValue == nil {
		return ""
	}
	return *attr.StringValue
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Queue worker initializing (cold start)")

	if err := run(logger); err != nil {
		logger.Error("Queue worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()
	typedLogger := &slogAdapter{logger: logger}

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if !cfg.QueueEnabled() {
		return fmt.Errorf("MAIL_QUEUE_URL is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	endpoint := func(base **string) {
		if cfg.AWS.EndpointURL != "" {
			*base = aws.String(cfg.AWS.EndpointURL)
		}
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { endpoint(&o.BaseEndpoint) })

	registry, err := external.NewClientRegistry(ctx, cfg, typedLogger, external.WithAWSConfig(awsCfg))
	if err != nil {
		return fmt.Errorf("creating mail provider: %w", err)
	}

	var metrics core.DeliveryMetrics = core.NopMetrics{}
	if cfg.Observability.EnableMetrics {
		cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) { endpoint(&o.BaseEndpoint) })
		metrics = core.NewCloudWatchDeliveryMetrics(cw, cfg.Observability.MetricNamespace, typedLogger)
	}

	handler := &Handler{
		delivery: core.NewDeliveryManager(core.DeliveryManagerConfig{
			Provider:    registry.Email,
			Publisher:   core.NewMessagePublisher(sqsClient, cfg.AWS.MailQueueURL, typedLogger),
			Metrics:     metrics,
			RetryPolicy: core.QueueRetryPolicy,
			Logger:      typedLogger,
		}),
		logger:      typedLogger,
		concurrency: maxConcurrentDeliveries,
	}

	logger.Info("Queue worker initialized",
		"mail_queue", cfg.AWS.MailQueueURL,
		"provider", registry.Email.Name(),
	)

	if cfg.Environment == "local" {
		return runLocal(ctx, handler, os.Stdin, logger)
	}
	lambda.Start(handler.Handle)
	return nil
}

// runLocal feeds one SQS event read from r to the handler.
func runLocal(ctx context.Context, h *Handler, r io.Reader, logger *slog.Logger) error {
	logger.Info("APP_ENV=local: reading SQS event from stdin")
	payload, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no input received on stdin")
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}

	response, err := h.Handle(ctx, sqsEvent)
	if err != nil {
		return err
	}
	if len(response.BatchItemFailures) > 0 {
		logger.Warn("Handler reported partial failures",
			"failed_count", len(response.BatchItemFailures),
		)
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(respJSON))
	}
	logger.Info("Handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}

// slogAdapter wraps *slog.Logger to implement types.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var (
	_ types.Logger = (*slogAdapter)(nil)
	_ Deliverer    = (*core.DeliveryManager)(nil)
)
