package hooks

import (
	"context"

	"github.com/google/uuid"

	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

// Engine turns change events into rendered messages.
type Engine struct {
	renderer *email.Renderer
	newID    func() string
}

// NewEngine creates an Engine rendering with r.
func NewEngine(r *email.Renderer) *Engine {
	if r == nil {
		r = email.NewRenderer()
	}
	return &Engine{renderer: r, newID: uuid.NewString}
}

// BuildMessages evaluates ev once per impacted object, in order, and returns
// every message produced. storage must read within the transaction that
// produced ev.
func (e *Engine) BuildMessages(ctx context.Context, storage types.StorageReader, ev types.Event) ([]types.Message, error) {
	base := BuildContext(ev)
	resource := types.EventResource(ev)

	var out []types.Message
	for _, obj := range ev.ImpactedObjects() {
		msgs, err := e.GetMessages(ctx, storage, base.ForObject(resource, obj))
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// GetMessages resolves the hooks applying to hctx and renders one message per
// matching hook. Hooks whose recipients expand to nothing produce no message.
func (e *Engine) GetMessages(ctx context.Context, storage types.StorageReader, hctx Context) ([]types.Message, error) {
	hooks, err := ResolveHooks(ctx, storage, hctx)
	if err != nil {
		return nil, err
	}

	var out []types.Message
	for _, h := range hooks {
		if !h.Matches(hctx) {
			continue
		}

		body, err := e.renderer.Render(h.Template, hctx)
		if err != nil {
			return nil, err
		}
		subject, err := e.renderer.Render(h.Subject, hctx)
		if err != nil {
			return nil, err
		}
		recipients, err := ExpandRecipients(ctx, storage, e.renderer, h.Recipients, hctx)
		if err != nil {
			return nil, err
		}
		if len(recipients) == 0 {
			continue
		}

		out = append(out, types.Message{
			ID:         e.newID(),
			Subject:    subject,
			Sender:     h.Sender,
			Recipients: recipients,
			Body:       body,
		})
	}
	return out, nil
}
