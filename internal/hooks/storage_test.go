package hooks

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"emailer/internal/types"
)

// memStorage is an in-memory StorageReader keyed by parent/resource/id.
type memStorage struct {
	objects map[string]types.Object
	calls   []string
	failOn  map[string]error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string]types.Object{}, failOn: map[string]error{}}
}

func storageKey(parentID string, resource types.ResourceName, id string) string {
	return fmt.Sprintf("%s|%s|%s", parentID, resource, id)
}

func (s *memStorage) put(parentID string, resource types.ResourceName, obj types.Object) {
	s.objects[storageKey(parentID, resource, obj.ID())] = obj
}

func (s *memStorage) Get(_ context.Context, parentID string, resource types.ResourceName, id string) (types.Object, error) {
	key := storageKey(parentID, resource, id)
	s.calls = append(s.calls, key)
	if err, ok := s.failOn[key]; ok {
		return nil, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundObject, string(resource)+" not found", nil)
	}
	return obj, nil
}

// mockStorage is a testify mock for asserting exact lookups.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Get(ctx context.Context, parentID string, resource types.ResourceName, id string) (types.Object, error) {
	args := m.Called(ctx, parentID, resource, id)
	obj, _ := args.Get(0).(types.Object)
	return obj, args.Error(1)
}

// testEvent builds a store event for tests.
func testEvent(kind string, resource types.ResourceName, action types.Action, payload map[string]any, impacted ...types.ImpactedObject) *types.ResourceEvent {
	fields := map[string]any{
		types.PayloadResourceName: string(resource),
		types.PayloadAction:       string(action),
	}
	for k, v := range payload {
		fields[k] = v
	}
	return &types.ResourceEvent{
		EventKind: kind,
		Fields:    fields,
		Impacted:  impacted,
		Info: types.RequestInfo{
			ClientAddress: "127.0.0.1",
			UserAgent:     "test-agent",
			RootURL:       "http://localhost:8888/v1/",
			Settings:      map[string]any{"project_name": "Kinto DEV"},
		},
	}
}

// hookDecl wraps hook specs in the metadata layout stored on objects.
func hookDecl(id string, hooks ...map[string]any) types.Object {
	list := make([]any, len(hooks))
	for i, h := range hooks {
		list[i] = h
	}
	return types.Object{"id": id, MetadataKey: map[string]any{"hooks": list}}
}
