// Package hooks evaluates the notification hooks declared in bucket and
// collection metadata against store change events and turns the matching
// ones into rendered messages.
package hooks

import (
	"sort"

	"emailer/internal/types"
)

// Context keys that are always present.
const (
	KeyEvent           = "event"
	KeyRootURL         = "root_url"
	KeyClientAddress   = "client_address"
	KeyUserAgent       = "user_agent"
	KeyImpactedObjects = "impacted_objects"
	KeySettings        = "settings"
	KeyID              = "id"
	KeyRecordID        = "record_id"
	KeyCollectionID    = "collection_id"
)

// Context is the ordered, immutable set of values a hook is matched and
// rendered against. Derivations return a new Context and leave the receiver
// untouched.
type Context struct {
	keys    []string
	values  map[string]any
	current *types.ImpactedObject
	impact  []types.ImpactedObject
}

// BuildContext assembles the event-level context: event kind, request values,
// every payload field, the impacted objects and the server settings. The
// record_id and collection_id keys default to their literal placeholders so
// templates referring to them render unchanged for events that lack them.
func BuildContext(ev types.Event) Context {
	c := Context{values: make(map[string]any)}
	req := ev.Request()

	c.set(KeyEvent, ev.Kind())
	c.set(KeyRootURL, req.RootURL)
	c.set(KeyClientAddress, req.ClientAddress)
	c.set(KeyUserAgent, req.UserAgent)

	impacted := ev.ImpactedObjects()
	c.impact = impacted
	c.set(KeyImpactedObjects, impactedValues(impacted))

	payload := ev.Payload()
	names := make([]string, 0, len(payload))
	for k := range payload {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		c.set(k, payload[k])
	}

	settings := req.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	c.set(KeySettings, settings)

	if _, ok := c.values[KeyRecordID]; !ok {
		c.set(KeyRecordID, "{record_id}")
	}
	if _, ok := c.values[KeyCollectionID]; !ok {
		c.set(KeyCollectionID, "{collection_id}")
	}
	return c
}

// ForObject derives the per-object context: "id" and "<resource>_id" are set
// to the impacted object's id (new snapshot, falling back to the old one).
func (c Context) ForObject(resource types.ResourceName, obj types.ImpactedObject) Context {
	d := c.clone()
	id := obj.Current().ID()
	d.set(string(resource)+"_id", id)
	d.set(KeyID, id)
	d.current = &obj
	return d
}

// With returns a copy of the context with key set to value.
func (c Context) With(key string, value any) Context {
	d := c.clone()
	d.set(key, value)
	return d
}

// Lookup returns the value for key. It satisfies email.Values.
func (c Context) Lookup(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns the value for key formatted as text, and whether it was present.
func (c Context) String(key string) (string, bool) {
	v, ok := c.values[key]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return types.PayloadString(c.values, key), true
}

// Keys returns the context keys in insertion order.
func (c Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Current returns the impacted object this context was derived for. Before
// ForObject it falls back to the first impacted object of the event.
func (c Context) Current() (types.ImpactedObject, bool) {
	if c.current != nil {
		return *c.current, true
	}
	if len(c.impact) > 0 {
		return c.impact[0], true
	}
	return types.ImpactedObject{}, false
}

func (c *Context) set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

func (c Context) clone() Context {
	d := Context{
		keys:    make([]string, len(c.keys)),
		values:  make(map[string]any, len(c.values)),
		current: c.current,
		impact:  c.impact,
	}
	copy(d.keys, c.keys)
	for k, v := range c.values {
		d.values[k] = v
	}
	return d
}

// impactedValues exposes impacted objects to templates as plain maps so
// placeholders like {impacted_objects[0][new][title]} resolve.
func impactedValues(impacted []types.ImpactedObject) []any {
	out := make([]any, 0, len(impacted))
	for _, io := range impacted {
		m := map[string]any{}
		if io.Old != nil {
			m["old"] = map[string]any(io.Old)
		}
		if io.New != nil {
			m["new"] = map[string]any(io.New)
		}
		out = append(out, m)
	}
	return out
}
