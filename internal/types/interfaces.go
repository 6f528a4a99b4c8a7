package types

import (
	"context"
	"time"
)

// StorageReader reads a single object from the resource store.
// parentID is the URI of the parent ("" for buckets, "/buckets/{bid}" for
// collections and groups, "/buckets/{bid}/collections/{cid}" for records).
// A missing object is reported as an AppError with ErrCodeNotFoundObject.
type StorageReader interface {
	Get(ctx context.Context, parentID string, resource ResourceName, objectID string) (Object, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// NopLogger discards everything. Useful as a default when no logger is wired.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (n NopLogger) With(...any) Logger { return n }
