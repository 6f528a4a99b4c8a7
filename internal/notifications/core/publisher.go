package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/klauspost/compress/zstd"

	"emailer/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

const (
	// AttrEncoding is the message attribute naming the body encoding.
	AttrEncoding = "content-encoding"
	// EncodingZstd marks a base64 zstd-compressed JSON body.
	EncodingZstd = "zstd+base64"

	// compressThreshold keeps small bodies readable in the console. SQS caps
	// bodies at 256 KiB.
	compressThreshold = 32 * 1024
	maxDelaySeconds   = 900
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// MessagePublisher writes QueuedMessages to the mail queue.
type MessagePublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewMessagePublisher creates a publisher for queueURL.
func NewMessagePublisher(client SQSSender, queueURL string, logger types.Logger) *MessagePublisher {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &MessagePublisher{client: client, queueURL: queueURL, logger: logger}
}

// Publish serializes msg and sends it with the given delay, clamped to the
// SQS maximum of 15 minutes. Large bodies are zstd-compressed.
func (p *MessagePublisher) Publish(ctx context.Context, msg types.QueuedMessage, delay time.Duration) error {
	body, encoding, err := EncodeQueuedMessage(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode queued message", err)
	}

	delaySec := int32(min(max(delay.Seconds(), 0), maxDelaySeconds))
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: delaySec,
	}
	if encoding != "" {
		input.MessageAttributes = map[string]sqstypes.MessageAttributeValue{
			AttrEncoding: {DataType: aws.String("String"), StringValue: aws.String(encoding)},
		}
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send message to %s", p.queueURL), err)
	}

	p.logger.Info("Mail message queued",
		"message_id", msg.Message.ID,
		"retry_count", msg.RetryCount,
		"delay_seconds", delaySec,
		"request_id", msg.RequestID,
	)
	return nil
}

// EncodeQueuedMessage returns the SQS body for msg and its encoding attribute
// ("" for plain JSON).
func EncodeQueuedMessage(msg types.QueuedMessage) (string, string, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", "", err
	}
	if len(raw) < compressThreshold {
		return string(raw), "", nil
	}
	compressed := encoder.EncodeAll(raw, nil)
	return base64.StdEncoding.EncodeToString(compressed), EncodingZstd, nil
}

// DecodeQueuedMessage reverses EncodeQueuedMessage.
func DecodeQueuedMessage(body, encoding string) (types.QueuedMessage, error) {
	var msg types.QueuedMessage
	raw := []byte(body)

	switch encoding {
	case "":
	case EncodingZstd:
		compressed, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return msg, fmt.Errorf("decoding base64 body: %w", err)
		}
		if raw, err = decoder.DecodeAll(compressed, nil); err != nil {
			return msg, fmt.Errorf("zstd decompression failed: %w", err)
		}
	default:
		return msg, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decoding queued message: %w", err)
	}
	return msg, nil
}
