// Package events dispatches store change events to subscribers in two
// phases: inside the writing transaction, and after it has committed.
package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"emailer/internal/types"
)

// Phase identifies when a subscriber runs relative to the transaction.
type Phase string

const (
	// BeforeCommit handlers run inside the transaction. The first error aborts
	// the write and is returned to the client.
	BeforeCommit Phase = "before_commit"
	// AfterCommit handlers run once the transaction has committed. Errors are
	// logged and never reach the client.
	AfterCommit Phase = "after_commit"
	// Aborted handlers run when the transaction rolled back. Errors are
	// logged like AfterCommit.
	Aborted Phase = "aborted"
)

// Handler reacts to one event.
type Handler func(ctx context.Context, req *Request, ev types.Event) error

// Filter restricts a subscription. Empty lists match everything.
type Filter struct {
	Resources []types.ResourceName
	Actions   []types.Action
}

// Matches reports whether ev passes the filter.
func (f Filter) Matches(ev types.Event) bool {
	if len(f.Resources) > 0 && !slices.Contains(f.Resources, types.EventResource(ev)) {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, types.EventAction(ev)) {
		return false
	}
	return true
}

type subscription struct {
	name    string
	filter  Filter
	handler Handler
}

// Bus holds the subscriptions for both phases.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Phase][]subscription
	logger types.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger types.Logger) *Bus {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Bus{
		subs:   make(map[Phase][]subscription),
		logger: logger,
	}
}

// Subscribe registers h for events of the given phase passing f. name
// identifies the subscriber in logs.
func (b *Bus) Subscribe(phase Phase, name string, f Filter, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[phase] = append(b.subs[phase], subscription{name: name, filter: f, handler: h})
}

// Notify runs the subscribers of phase for ev, in registration order.
func (b *Bus) Notify(ctx context.Context, phase Phase, req *Request, ev types.Event) error {
	b.mu.RLock()
	subs := b.subs[phase]
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.filter.Matches(ev) {
			continue
		}
		err := b.call(ctx, phase, s, req, ev)
		if err == nil {
			continue
		}
		if phase == BeforeCommit {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		b.logger.Error("Event subscriber failed",
			"phase", string(phase),
			"subscriber", s.name,
			"event", ev.Kind(),
			"request_id", req.ID,
			"error", err,
		)
	}
	return nil
}

// call runs one subscriber. Outside BeforeCommit a panic is recovered and
// returned as an error so it cannot escape a committed transaction.
func (b *Bus) call(ctx context.Context, phase Phase, s subscription, req *Request, ev types.Event) (err error) {
	if phase != BeforeCommit {
		defer func() {
			if rvr := recover(); rvr != nil {
				b.logger.Error("Event subscriber panicked",
					"phase", string(phase),
					"subscriber", s.name,
					"event", ev.Kind(),
					"request_id", req.ID,
					"panic", fmt.Sprintf("%v", rvr),
					"stack", string(debug.Stack()),
				)
				err = fmt.Errorf("panic: %v", rvr)
			}
		}()
	}
	return s.handler(ctx, req, ev)
}

// NotifyAll runs Notify for each event in order, stopping at the first error.
func (b *Bus) NotifyAll(ctx context.Context, phase Phase, req *Request, evs []types.Event) error {
	for _, ev := range evs {
		if err := b.Notify(ctx, phase, req, ev); err != nil {
			return err
		}
	}
	return nil
}
