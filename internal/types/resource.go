package types

import "fmt"

// ResourceName identifies a level of the store hierarchy.
type ResourceName string

const (
	ResourceBucket     ResourceName = "bucket"
	ResourceCollection ResourceName = "collection"
	ResourceGroup      ResourceName = "group"
	ResourceRecord     ResourceName = "record"
)

// Action identifies the kind of change applied to an object.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event kinds emitted by the store. Hooks may filter on these values through
// the "event" field; events raised by other subsystems use their own kinds.
const (
	EventResourceChanged      = "store.events.ResourceChanged"
	EventAfterResourceChanged = "store.events.AfterResourceChanged"
)

// Payload keys shared by every store event.
const (
	PayloadResourceName = "resource_name"
	PayloadAction       = "action"
	PayloadBucketID     = "bucket_id"
	PayloadCollectionID = "collection_id"
	PayloadURI          = "uri"
	PayloadUserID       = "user_id"
	PayloadTimestamp    = "timestamp"
)

// Object is a JSON object snapshot as persisted in the store.
// Every persisted object carries a string "id".
type Object map[string]any

// ID returns the object's identifier, or "" when absent.
func (o Object) ID() string {
	if o == nil {
		return ""
	}
	id, _ := o["id"].(string)
	return id
}

// ImpactedObject pairs the before/after snapshots of one changed object.
// Old is nil on create, New is nil on delete.
type ImpactedObject struct {
	Old Object `json:"old,omitempty"`
	New Object `json:"new,omitempty"`
}

// Current returns the new snapshot when present, otherwise the old one.
func (io ImpactedObject) Current() Object {
	if io.New != nil {
		return io.New
	}
	return io.Old
}

// RequestInfo carries the request-level values exposed to hook templates.
type RequestInfo struct {
	ClientAddress string
	UserAgent     string
	RootURL       string
	Settings      map[string]any
}

// Event is a change notification raised by the store or another subsystem.
type Event interface {
	// Kind is the fully qualified event name.
	Kind() string
	Payload() map[string]any
	ImpactedObjects() []ImpactedObject
	Request() RequestInfo
}

// ResourceEvent is the concrete Event emitted for bucket/collection/group/record writes.
type ResourceEvent struct {
	EventKind string
	Fields    map[string]any
	Impacted  []ImpactedObject
	Info      RequestInfo
}

var _ Event = (*ResourceEvent)(nil)

func (e *ResourceEvent) Kind() string                      { return e.EventKind }
func (e *ResourceEvent) Payload() map[string]any           { return e.Fields }
func (e *ResourceEvent) ImpactedObjects() []ImpactedObject { return e.Impacted }
func (e *ResourceEvent) Request() RequestInfo              { return e.Info }

// PayloadString reads a payload value as a string. Non-string values are
// formatted with %v; missing keys yield "".
func PayloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// EventResource returns the resource name carried by an event's payload.
func EventResource(ev Event) ResourceName {
	return ResourceName(PayloadString(ev.Payload(), PayloadResourceName))
}

// EventAction returns the action carried by an event's payload.
func EventAction(ev Event) Action {
	return Action(PayloadString(ev.Payload(), PayloadAction))
}

// BucketURI returns the canonical URI of a bucket.
func BucketURI(bucketID string) string {
	return "/buckets/" + bucketID
}

// CollectionURI returns the canonical URI of a collection.
func CollectionURI(bucketID, collectionID string) string {
	return BucketURI(bucketID) + "/collections/" + collectionID
}
