package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"emailer/internal/events"
	"emailer/internal/types"
)

// Fields maintained by the store on every object.
const (
	FieldID           = "id"
	FieldLastModified = "last_modified"
)

// ObjectStorage is the storage a Store runs against. ObjectRepository
// implements it.
type ObjectStorage interface {
	types.StorageReader
	List(ctx context.Context, parentID string, resource types.ResourceName) ([]types.Object, error)
	Insert(ctx context.Context, parentID string, resource types.ResourceName, obj types.Object) error
	Upsert(ctx context.Context, parentID string, resource types.ResourceName, obj types.Object) error
	Delete(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error)
}

// Store runs writes in a transaction and notifies the bus: BeforeCommit
// subscribers run inside the transaction and may abort it, AfterCommit
// subscribers run once it committed, Aborted subscribers when it rolled back
// after BeforeCommit had run.
type Store struct {
	db     TxBeginner
	bus    *events.Bus
	clock  types.Clock
	logger types.Logger

	newID   func() string
	objects func(DBTX) ObjectStorage
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithObjectStorage replaces the ObjectRepository bound to each transaction.
func WithObjectStorage(fn func(DBTX) ObjectStorage) StoreOption {
	return func(s *Store) { s.objects = fn }
}

// WithClock sets the clock stamping last_modified and event timestamps.
func WithClock(c types.Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// NewStore creates a Store.
func NewStore(db TxBeginner, bus *events.Bus, logger types.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = types.NopLogger{}
	}
	s := &Store{
		db:      db,
		bus:     bus,
		clock:   types.RealClock{},
		logger:  logger,
		newID:   uuid.NewString,
		objects: func(db DBTX) ObjectStorage { return NewObjectRepository(db) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx calls fn with a Writer bound to a new transaction. When fn succeeds
// the collected changes are announced to the bus and the transaction commits,
// unless a BeforeCommit subscriber fails.
func (s *Store) RunInTx(ctx context.Context, req *events.Request, fn func(ctx context.Context, w *Writer) error) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	w := &Writer{
		objects: s.objects(tx),
		now:     s.clock.Now,
		newID:   s.newID,
		userID:  types.GetUserID(ctx),
		info:    req.Info,
	}
	if err := fn(ctx, w); err != nil {
		return err
	}
	if len(w.changes) == 0 {
		return s.commit(ctx, tx)
	}

	req.Storage = w.objects
	err = s.bus.NotifyAll(ctx, events.BeforeCommit, req, w.Events(types.EventResourceChanged))
	req.Storage = nil
	if err != nil {
		s.abort(ctx, req, w)
		return err
	}

	if err := s.commit(ctx, tx); err != nil {
		s.abort(ctx, req, w)
		return err
	}

	// AfterCommit failures are logged by the bus.
	_ = s.bus.NotifyAll(ctx, events.AfterCommit, req, w.Events(types.EventAfterResourceChanged))
	return nil
}

// Get reads one object outside any transaction.
func (s *Store) Get(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error) {
	var obj types.Object
	err := s.read(ctx, func(ctx context.Context, objects ObjectStorage) error {
		var err error
		obj, err = objects.Get(ctx, parentID, resource, objectID)
		return err
	})
	return obj, err
}

// List reads the children of parentID outside any transaction.
func (s *Store) List(ctx context.Context, parentID string, resource types.ResourceName) ([]types.Object, error) {
	var out []types.Object
	err := s.read(ctx, func(ctx context.Context, objects ObjectStorage) error {
		if err := requireParent(ctx, objects, parentID); err != nil {
			return err
		}
		var err error
		out, err = objects.List(ctx, parentID, resource)
		return err
	})
	return out, err
}

func (s *Store) read(ctx context.Context, fn func(context.Context, ObjectStorage) error) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	return fn(ctx, s.objects(tx))
}

func (s *Store) commit(ctx context.Context, tx Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

func (s *Store) abort(ctx context.Context, req *events.Request, w *Writer) {
	s.logger.Warn("Transaction rolled back",
		"request_id", req.ID,
		"changes", len(w.changes),
	)
	_ = s.bus.NotifyAll(ctx, events.Aborted, req, w.Events(types.EventResourceChanged))
}

// change is one write recorded by a Writer.
type change struct {
	resource types.ResourceName
	action   types.Action
	parentID string
	payload  map[string]any
	impacted types.ImpactedObject
}

// Writer performs the writes of one transaction and records them as changes.
type Writer struct {
	objects ObjectStorage
	now     func() time.Time
	newID   func() string
	userID  string
	info    types.RequestInfo
	changes []change
}

// Get reads one object within the transaction.
func (w *Writer) Get(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error) {
	return w.objects.Get(ctx, parentID, resource, objectID)
}

// List reads the children of parentID within the transaction.
func (w *Writer) List(ctx context.Context, parentID string, resource types.ResourceName) ([]types.Object, error) {
	if err := requireParent(ctx, w.objects, parentID); err != nil {
		return nil, err
	}
	return w.objects.List(ctx, parentID, resource)
}

// Create stores a new object. An id is generated when obj has none.
func (w *Writer) Create(ctx context.Context, parentID string, resource types.ResourceName, obj types.Object) (types.Object, error) {
	if err := requireParent(ctx, w.objects, parentID); err != nil {
		return nil, err
	}
	next := w.stamp(obj, obj.ID())
	if err := w.objects.Insert(ctx, parentID, resource, next); err != nil {
		return nil, err
	}
	w.record(parentID, resource, types.ActionCreate, types.ImpactedObject{New: next})
	return next, nil
}

// Put creates or replaces the object objectID. The recorded action is
// update when the object existed.
func (w *Writer) Put(ctx context.Context, parentID string, resource types.ResourceName, objectID string, obj types.Object) (types.Object, bool, error) {
	if err := requireParent(ctx, w.objects, parentID); err != nil {
		return nil, false, err
	}
	old, err := w.objects.Get(ctx, parentID, resource, objectID)
	if err != nil && !types.IsNotFound(err) {
		return nil, false, err
	}

	next := w.stamp(obj, objectID)
	if err := w.objects.Upsert(ctx, parentID, resource, next); err != nil {
		return nil, false, err
	}
	created := old == nil
	action := types.ActionUpdate
	if created {
		action = types.ActionCreate
	}
	w.record(parentID, resource, action, types.ImpactedObject{Old: old, New: next})
	return next, created, nil
}

// Delete removes objectID and everything beneath it.
func (w *Writer) Delete(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error) {
	old, err := w.objects.Delete(ctx, parentID, resource, objectID)
	if err != nil {
		return nil, err
	}
	w.record(parentID, resource, types.ActionDelete, types.ImpactedObject{Old: old})
	return types.Object{FieldID: objectID, FieldLastModified: w.now().UnixMilli(), "deleted": true}, nil
}

// Events returns the recorded changes as events of the given kind. Changes
// sharing resource, action and parent are merged into one event whose
// impacted objects keep the write order; the payload is the first change's.
func (w *Writer) Events(kind string) []types.Event {
	type key struct {
		resource types.ResourceName
		action   types.Action
		parentID string
	}
	index := make(map[key]int)
	var out []*types.ResourceEvent
	for _, c := range w.changes {
		k := key{c.resource, c.action, c.parentID}
		if i, ok := index[k]; ok {
			out[i].Impacted = append(out[i].Impacted, c.impacted)
			continue
		}
		index[k] = len(out)
		out = append(out, &types.ResourceEvent{
			EventKind: kind,
			Fields:    c.payload,
			Impacted:  []types.ImpactedObject{c.impacted},
			Info:      w.info,
		})
	}

	evs := make([]types.Event, len(out))
	for i, ev := range out {
		evs[i] = ev
	}
	return evs
}

func (w *Writer) stamp(obj types.Object, objectID string) types.Object {
	next := make(types.Object, len(obj)+2)
	for k, v := range obj {
		next[k] = v
	}
	if objectID == "" {
		objectID = w.newID()
	}
	next[FieldID] = objectID
	next[FieldLastModified] = w.now().UnixMilli()
	return next
}

func (w *Writer) record(parentID string, resource types.ResourceName, action types.Action, impacted types.ImpactedObject) {
	objectID := impacted.Current().ID()
	bucketID, collectionID := SplitParent(parentID)

	payload := map[string]any{
		types.PayloadResourceName: string(resource),
		types.PayloadAction:       string(action),
		types.PayloadURI:          ObjectURI(parentID, resource, objectID),
		types.PayloadUserID:       w.userID,
		types.PayloadTimestamp:    w.now().UnixMilli(),
		FieldID:                   objectID,
		string(resource) + "_id":  objectID,
	}
	if bucketID != "" {
		payload[types.PayloadBucketID] = bucketID
	}
	if collectionID != "" {
		payload[types.PayloadCollectionID] = collectionID
	}

	w.changes = append(w.changes, change{
		resource: resource,
		action:   action,
		parentID: parentID,
		payload:  payload,
		impacted: impacted,
	})
}

// requireParent checks that the container parentID exists.
func requireParent(ctx context.Context, objects types.StorageReader, parentID string) error {
	bucketID, collectionID := SplitParent(parentID)
	var err error
	switch {
	case parentID == "":
		return nil
	case collectionID != "":
		_, err = objects.Get(ctx, types.BucketURI(bucketID), types.ResourceCollection, collectionID)
	case bucketID != "":
		_, err = objects.Get(ctx, "", types.ResourceBucket, bucketID)
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidRequest, fmt.Sprintf("invalid parent %q", parentID), nil)
	}
	return err
}
