package events

import (
	"emailer/internal/types"
)

// Request is the per-request state shared by subscribers across both phases.
// It is owned by a single request goroutine and is not safe for concurrent use.
type Request struct {
	ID   string
	Info types.RequestInfo

	// Storage reads through the writing transaction. It is only valid during
	// BeforeCommit.
	Storage types.StorageReader

	attachments map[string]any
}

// NewRequest creates request state for one client request.
func NewRequest(id string, info types.RequestInfo) *Request {
	return &Request{ID: id, Info: info, attachments: make(map[string]any)}
}

// Attach stores a value under key for later phases.
func (r *Request) Attach(key string, v any) {
	if r.attachments == nil {
		r.attachments = make(map[string]any)
	}
	r.attachments[key] = v
}

// Attachment returns the value stored under key.
func (r *Request) Attachment(key string) (any, bool) {
	v, ok := r.attachments[key]
	return v, ok
}

// Detach removes and returns the value stored under key.
func (r *Request) Detach(key string) (any, bool) {
	v, ok := r.attachments[key]
	delete(r.attachments, key)
	return v, ok
}
