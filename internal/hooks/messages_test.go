package hooks

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

var collectionRecordHooks = hookDecl("c",
	map[string]any{
		"resource_name": "record",
		"action":        "update",
		"sender":        "kinto@restmail.net",
		"subject":       "Record update",
		"template":      "Bonjour les amis.",
		"recipients":    []any{"kinto-emailer@restmail.net"},
	},
	map[string]any{
		"resource_name": "collection",
		"action":        "update",
		"sender":        "kinto@restmail.net",
		"subject":       "Collection update",
		"template":      "Bonjour les amis on collection update.",
		"recipients":    []any{"kinto-emailer@restmail.net"},
	},
)

func newTestEngine() *Engine {
	e := NewEngine(email.NewRenderer())
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}
	return e
}

func recordUpdateContext() Context {
	obj := types.ImpactedObject{Old: types.Object{"id": "r1"}, New: types.Object{"id": "r1"}}
	ev := testEvent(types.EventResourceChanged, types.ResourceRecord, types.ActionUpdate,
		map[string]any{"bucket_id": "b", "collection_id": "c"}, obj)
	return BuildContext(ev).ForObject(types.ResourceRecord, obj)
}

func TestGetMessages_RecordHook(t *testing.T) {
	store := newMemStorage()
	store.put("/buckets/b", types.ResourceCollection, collectionRecordHooks)

	msgs, err := newTestEngine().GetMessages(context.Background(), store, recordUpdateContext())

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, types.Message{
		ID:         "msg-1",
		Subject:    "Record update",
		Sender:     "kinto@restmail.net",
		Recipients: []string{"kinto-emailer@restmail.net"},
		Body:       "Bonjour les amis.",
	}, msgs[0])
}

func TestGetMessages_CollectionHook(t *testing.T) {
	obj := types.ImpactedObject{Old: types.Object{"id": "c"}, New: collectionRecordHooks}
	ev := testEvent(types.EventResourceChanged, types.ResourceCollection, types.ActionUpdate,
		map[string]any{"bucket_id": "b"}, obj)

	msgs, err := newTestEngine().GetMessages(context.Background(), newMemStorage(),
		BuildContext(ev).ForObject(types.ResourceCollection, obj))

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Collection update", msgs[0].Subject)
	assert.Equal(t, "Bonjour les amis on collection update.", msgs[0].Body)
}

func TestGetMessages_DefaultSubjectAndSeveralHooks(t *testing.T) {
	store := newMemStorage()
	store.put("/buckets/b", types.ResourceCollection, hookDecl("c",
		map[string]any{"template": "Bonjour les amis.", "recipients": []any{"me@you.com"}},
		map[string]any{"template": "Bonjour les amies.", "recipients": []any{"you@me.com"}},
	))

	msgs, err := newTestEngine().GetMessages(context.Background(), store, recordUpdateContext())

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, email.DefaultSubject, msgs[0].Subject)
	assert.Empty(t, msgs[0].Sender)
	assert.Equal(t, []string{"you@me.com"}, msgs[1].Recipients)
}

func TestGetMessages_NoHooksConfigured(t *testing.T) {
	store := newMemStorage()
	store.put("/buckets/b", types.ResourceCollection, types.Object{"id": "c"})
	store.put("", types.ResourceBucket, types.Object{"id": "b"})

	msgs, err := newTestEngine().GetMessages(context.Background(), store, recordUpdateContext())

	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGetMessages_FilterByIDAndRegexp(t *testing.T) {
	store := newMemStorage()
	store.put("/buckets/b", types.ResourceCollection, hookDecl("c",
		map[string]any{"id": "poll", "template": "Poll changed.", "recipients": []any{"me@you.com"}},
	))

	msgs, err := newTestEngine().GetMessages(context.Background(), store, recordUpdateContext())
	require.NoError(t, err)
	assert.Empty(t, msgs)

	store.put("", types.ResourceBucket, hookDecl("b",
		map[string]any{"collection_id": "^(?!normandy-recipes$)", "template": "x", "recipients": []any{"me@you.com"}},
	))
	for cid, want := range map[string]int{"normandy-recipes": 0, "some-normandy-recipes": 1, "normandy-recipes-all": 1} {
		msgs, err := newTestEngine().GetMessages(context.Background(), store, recordContext("b", cid))
		require.NoError(t, err)
		assert.Len(t, msgs, want, cid)
	}
}

func TestGetMessages_EmptyRecipientsProduceNothing(t *testing.T) {
	store := newMemStorage()
	store.put("/buckets/b", types.ResourceCollection, hookDecl("c",
		map[string]any{"template": "x", "recipients": []any{"/buckets/b/groups/g"}},
	))
	store.put("/buckets/b", types.ResourceGroup, types.Object{"id": "g", "members": []any{"fxa:1", "basicauth:x"}})

	msgs, err := newTestEngine().GetMessages(context.Background(), store, recordUpdateContext())

	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGetMessages_TemplateErrorSurfaces(t *testing.T) {
	store := newMemStorage()
	store.put("/buckets/b", types.ResourceCollection, hookDecl("c",
		map[string]any{"template": "Hello {unknown}", "recipients": []any{"me@you.com"}},
	))

	_, err := newTestEngine().GetMessages(context.Background(), store, recordUpdateContext())

	require.Error(t, err)
	assert.True(t, email.IsTemplateError(err))
}

func TestBuildMessages_OneMessagePerImpactedObject(t *testing.T) {
	store := newMemStorage()
	store.put("", types.ResourceBucket, hookDecl("b", map[string]any{
		"action":        "create",
		"resource_name": "collection",
		"subject":       "Created {bucket_id}/{collection_id}.",
		"template":      "",
		"recipients":    []any{"me@you.com"},
	}))

	ev := testEvent(types.EventResourceChanged, types.ResourceCollection, types.ActionCreate,
		map[string]any{"bucket_id": "b"},
		types.ImpactedObject{New: types.Object{"id": "1"}},
		types.ImpactedObject{New: types.Object{"id": "2"}},
	)

	msgs, err := newTestEngine().BuildMessages(context.Background(), store, ev)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Created b/1.", msgs[0].Subject)
	assert.Equal(t, "Created b/2.", msgs[1].Subject)
	assert.Equal(t, "", msgs[0].Body)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestBuildMessages_ContextValuesInTemplate(t *testing.T) {
	store := newMemStorage()
	store.put("/buckets/b", types.ResourceCollection, hookDecl("c", map[string]any{
		"template":   "{user_id} changed {record_id} in {settings[project_name]} ({event})",
		"recipients": []any{"me@you.com"},
	}))

	ev := testEvent(types.EventResourceChanged, types.ResourceRecord, types.ActionCreate,
		map[string]any{"bucket_id": "b", "collection_id": "c", "user_id": "basicauth:alice"},
		types.ImpactedObject{New: types.Object{"id": "r9"}},
	)

	msgs, err := newTestEngine().BuildMessages(context.Background(), store, ev)

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "basicauth:alice changed r9 in Kinto DEV ("+types.EventResourceChanged+")", msgs[0].Body)
}
