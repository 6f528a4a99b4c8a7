package types

import "time"

// Message is a rendered email ready for delivery. Sender may be empty, in which
// case the transport's default sender applies.
type Message struct {
	ID         string   `json:"id" validate:"required"`
	Subject    string   `json:"subject"`
	Sender     string   `json:"sender,omitempty"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	Body       string   `json:"body"`
}

// QueuedMessage is the SQS envelope written by the send-to-queue path and
// consumed by the queue worker. JSON tags use snake_case.
type QueuedMessage struct {
	Message Message `json:"message"`

	// RetryCount carries the delivery attempt count across re-publishes.
	RetryCount int `json:"retry_count"`

	// Observability
	RequestID string    `json:"request_id,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}
