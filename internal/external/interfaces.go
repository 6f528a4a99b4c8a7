package external

import (
	"context"

	"emailer/internal/types"
)

// EmailProvider transmits one rendered message to all of its recipients.
// Implementations expect a non-empty Sender; the dispatcher fills in the
// default before calling Send.
type EmailProvider interface {
	// Name identifies the provider in logs and metric dimensions.
	Name() string

	// Send returns the provider's message ID when it issues one.
	Send(ctx context.Context, msg types.Message) (providerMsgID string, err error)
}
