// Package email renders hook templates into messages and hands them to a
// delivery backend: an immediate provider (SMTP or SES), the SQS mail queue,
// or the on-disk debug mailer used in local runs.
package email

import (
	"errors"
	"fmt"

	"emailer/internal/types"
)

// ErrRecipientBlocked indicates the email provider has the recipient on a
// suppression list or has blocked delivery. This is treated as a terminal
// (non-retryable) failure.
var ErrRecipientBlocked = errors.New("recipient blocked by provider")

// IsBlocklistError checks whether an error indicates the recipient is blocked
// by the email provider. It checks both the sentinel ErrRecipientBlocked and
// the AppError code ErrCodeEmailBlocked (returned by the provider clients).
func IsBlocklistError(err error) bool {
	if errors.Is(err, ErrRecipientBlocked) {
		return true
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code == types.ErrCodeEmailBlocked
	}
	return false
}

// newTemplateError builds the error returned when a template cannot be rendered
// against the evaluation context.
func newTemplateError(template, reason string, args ...any) *types.AppError {
	msg := fmt.Sprintf(reason, args...)
	return types.NewAppErrorWithDetails(
		types.ErrCodeInternalTemplate,
		msg,
		nil,
		map[string]any{"template": template},
	)
}

// IsTemplateError reports whether err was raised while rendering a template.
func IsTemplateError(err error) bool {
	return types.ErrorCodeOf(err) == types.ErrCodeInternalTemplate
}
