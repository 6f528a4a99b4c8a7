package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailer/internal/notifications/core"
	"emailer/internal/types"
)

type fakeDeliverer struct {
	mu   sync.Mutex
	got  []types.QueuedMessage
	fail map[string]error
}

func (f *fakeDeliverer) Deliver(_ context.Context, msg types.QueuedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return f.fail[msg.Message.ID]
}

func newTestHandler(d Deliverer) *Handler {
	return &Handler{
		delivery:    d,
		logger:      &slogAdapter{logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
		concurrency: 2,
	}
}

func record(t *testing.T, id string, msg types.QueuedMessage) events.SQSMessage {
	t.Helper()
	body, encoding, err := core.EncodeQueuedMessage(msg)
	require.NoError(t, err)
	rec := events.SQSMessage{MessageId: id, Body: body}
	if encoding != "" {
		rec.MessageAttributes = map[string]events.SQSMessageAttribute{
			core.AttrEncoding: {StringValue: &encoding, DataType: "String"},
		}
	}
	return rec
}

func message(id string, body string) types.QueuedMessage {
	return types.QueuedMessage{Message: types.Message{
		ID:         id,
		Subject:    "s",
		Recipients: []string{"alice@example.com"},
		Body:       body,
	}}
}

func TestHandle_ReportsOnlyFailedRecords(t *testing.T) {
	d := &fakeDeliverer{fail: map[string]error{"m2": errors.New("queue down")}}
	h := newTestHandler(d)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		record(t, "sqs-1", message("m1", "a")),
		record(t, "sqs-2", message("m2", "b")),
		record(t, "sqs-3", message("m3", "c")),
	}})
	require.NoError(t, err)

	assert.Len(t, d.got, 3)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "sqs-2", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandle_DecodesCompressedBodies(t *testing.T) {
	d := &fakeDeliverer{}
	h := newTestHandler(d)
	large := string(bytes.Repeat([]byte("x"), 64*1024))

	rec := record(t, "sqs-1", message("m1", large))
	require.Contains(t, rec.MessageAttributes, core.AttrEncoding)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{rec}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	require.Len(t, d.got, 1)
	assert.Equal(t, large, d.got[0].Message.Body)
}

func TestHandle_AcknowledgesUndeliverableBodies(t *testing.T) {
	d := &fakeDeliverer{}
	h := newTestHandler(d)

	noRecipients := message("m1", "a")
	noRecipients.Message.Recipients = nil

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "sqs-1", Body: "{not json"},
		record(t, "sqs-2", noRecipients),
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Empty(t, d.got)
}

func TestRunLocal(t *testing.T) {
	d := &fakeDeliverer{}
	h := newTestHandler(d)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	body, _, err := core.EncodeQueuedMessage(message("m1", "a"))
	require.NoError(t, err)
	event, err := json.Marshal(events.SQSEvent{Records: []events.SQSMessage{{MessageId: "1", Body: body}}})
	require.NoError(t, err)

	require.NoError(t, runLocal(context.Background(), h, bytes.NewReader(event), logger))
	assert.Len(t, d.got, 1)

	assert.Error(t, runLocal(context.Background(), h, bytes.NewBufferString(""), logger))
	assert.Error(t, runLocal(context.Background(), h, bytes.NewBufferString("nope"), logger))
}
