// Package emailer wires hook evaluation into the store's event bus. Messages
// are built inside the writing transaction, staged on the request, and only
// handed to the mailer once the transaction has committed.
package emailer

import (
	"context"

	"emailer/internal/events"
	"emailer/internal/hooks"
	"emailer/internal/notifications/core"
	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

// CapabilityName is the key under which the plugin advertises itself.
const CapabilityName = "emailer"

const (
	capabilityDescription = "Provide emailing capabilities to the server."
	defaultDocsURL        = "https://github.com/Kinto/kinto-emailer/"

	// batchKey names the staged messages attached to a request.
	batchKey = "emailer.messages"
)

// Capability is the public descriptor listed at the API root.
type Capability struct {
	Description string `json:"description"`
	URL         string `json:"url"`
}

// State is the lifecycle of a staged batch, used in logs.
type State string

const (
	StatePending   State = "pending"
	StateBuilt     State = "built"
	StateSent      State = "sent"
	StateDiscarded State = "discarded"
)

// Config holds the plugin dependencies.
type Config struct {
	Engine *hooks.Engine
	Mailer email.Mailer
	// UseQueue routes messages through Mailer.SendToQueue.
	UseQueue bool
	Metrics  core.DeliveryMetrics
	Logger   types.Logger
	DocsURL  string
}

// Plugin validates hook declarations and delivers the messages they produce.
type Plugin struct {
	engine   *hooks.Engine
	mailer   email.Mailer
	useQueue bool
	metrics  core.DeliveryMetrics
	logger   types.Logger
	docsURL  string
}

// New creates a Plugin.
func New(cfg Config) *Plugin {
	p := &Plugin{
		engine:   cfg.Engine,
		mailer:   cfg.Mailer,
		useQueue: cfg.UseQueue,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		docsURL:  cfg.DocsURL,
	}
	if p.engine == nil {
		p.engine = hooks.NewEngine(nil)
	}
	if p.metrics == nil {
		p.metrics = core.NopMetrics{}
	}
	if p.logger == nil {
		p.logger = types.NopLogger{}
	}
	if p.docsURL == "" {
		p.docsURL = defaultDocsURL
	}
	return p
}

// Capability returns the descriptor advertised at the API root.
func (p *Plugin) Capability() Capability {
	return Capability{Description: capabilityDescription, URL: p.docsURL}
}

// Register subscribes the plugin to bus.
func (p *Plugin) Register(bus *events.Bus) {
	containers := events.Filter{
		Resources: []types.ResourceName{types.ResourceBucket, types.ResourceCollection},
		Actions:   []types.Action{types.ActionCreate, types.ActionUpdate},
	}
	notifying := events.Filter{
		Resources: []types.ResourceName{types.ResourceRecord, types.ResourceCollection},
	}

	bus.Subscribe(events.BeforeCommit, "emailer.validate", containers, p.validate)
	bus.Subscribe(events.BeforeCommit, "emailer.build", notifying, p.build)
	bus.Subscribe(events.AfterCommit, "emailer.send", notifying, p.send)
	bus.Subscribe(events.Aborted, "emailer.discard", notifying, p.discard)
}

func (p *Plugin) validate(_ context.Context, _ *events.Request, ev types.Event) error {
	return hooks.ValidateEvent(ev)
}

func (p *Plugin) build(ctx context.Context, req *events.Request, ev types.Event) error {
	msgs, err := p.engine.BuildMessages(ctx, req.Storage, ev)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	batch := append(staged(req), msgs...)
	req.Attach(batchKey, batch)
	p.metrics.RecordBuilt(ctx, len(msgs))
	p.logger.Info("Messages staged",
		"state", string(StateBuilt),
		"request_id", req.ID,
		"event", ev.Kind(),
		"count", len(msgs),
		"staged", len(batch),
	)
	return nil
}

// send delivers and clears the staged batch. Several events committed
// together share one batch, so later calls find it empty.
func (p *Plugin) send(ctx context.Context, req *events.Request, _ types.Event) error {
	batch := take(req)
	if len(batch) == 0 {
		return nil
	}

	mode := types.DeliveryImmediate
	if p.useQueue {
		mode = types.DeliveryQueued
	}
	sent := 0
	for _, msg := range batch {
		var err error
		if p.useQueue {
			err = p.mailer.SendToQueue(ctx, msg)
		} else {
			err = p.mailer.SendImmediately(ctx, msg)
		}
		if err != nil {
			p.logger.Error("Message delivery failed",
				"request_id", req.ID,
				"message_id", msg.ID,
				"mode", string(mode),
				"recipients", email.RedactAll(msg.Recipients),
				"error", err.Error(),
			)
			continue
		}
		sent++
	}

	p.logger.Info("Staged messages delivered",
		"state", string(StateSent),
		"request_id", req.ID,
		"mode", string(mode),
		"sent", sent,
		"failed", len(batch)-sent,
	)
	return nil
}

func (p *Plugin) discard(ctx context.Context, req *events.Request, _ types.Event) error {
	batch := take(req)
	if len(batch) == 0 {
		return nil
	}
	p.metrics.RecordDiscarded(ctx, len(batch))
	p.logger.Warn("Staged messages discarded",
		"state", string(StateDiscarded),
		"request_id", req.ID,
		"count", len(batch),
	)
	return nil
}

func staged(req *events.Request) []types.Message {
	v, _ := req.Attachment(batchKey)
	batch, _ := v.([]types.Message)
	return batch
}

func take(req *events.Request) []types.Message {
	v, _ := req.Detach(batchKey)
	batch, _ := v.([]types.Message)
	return batch
}

// Staged returns a copy of the messages waiting for commit.
func Staged(req *events.Request) []types.Message {
	return append([]types.Message(nil), staged(req)...)
}
