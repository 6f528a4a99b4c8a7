package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

func TestNewMatcher_ExactAndPattern(t *testing.T) {
	exact, err := NewMatcher("normandy-recipes")
	require.NoError(t, err)
	assert.IsType(t, Exact(""), exact)
	assert.True(t, exact.Match("normandy-recipes"))
	assert.False(t, exact.Match("normandy-recipes-all"))

	pattern, err := NewMatcher("^(?!normandy-recipes$)")
	require.NoError(t, err)
	assert.IsType(t, &Pattern{}, pattern)
	assert.Equal(t, "^(?!normandy-recipes$)", pattern.String())

	assert.False(t, pattern.Match("normandy-recipes"))
	assert.True(t, pattern.Match("some-normandy-recipes"))
	assert.True(t, pattern.Match("normandy-recipes-all"))
}

func TestNewMatcher_PatternAnchoredAtStart(t *testing.T) {
	m, err := NewMatcher("^main")
	require.NoError(t, err)
	assert.True(t, m.Match("main-workspace"))
	assert.False(t, m.Match("staging-main"))
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher("^(unclosed")
	assert.Error(t, err)
}

func TestHookMatches(t *testing.T) {
	ev := testEvent(types.EventResourceChanged, types.ResourceRecord, types.ActionUpdate,
		map[string]any{"bucket_id": "b", "collection_id": "c"},
		types.ImpactedObject{New: types.Object{"id": "abc"}})
	hctx := BuildContext(ev).ForObject(types.ResourceRecord, ev.Impacted[0])

	tests := []struct {
		name string
		spec map[string]any
		want bool
	}{
		{"no filters match everything", map[string]any{}, true},
		{"resource match", map[string]any{"resource_name": "record"}, true},
		{"resource mismatch", map[string]any{"resource_name": "collection"}, false},
		{"action mismatch", map[string]any{"action": "create"}, false},
		{"id mismatch", map[string]any{"id": "poll"}, false},
		{"id match", map[string]any{"id": "abc"}, true},
		{"record id pattern", map[string]any{"record_id": "^a"}, true},
		{"event class mismatch", map[string]any{"event": "mylib.MyEvent"}, false},
		{"event class match", map[string]any{"event": types.EventResourceChanged}, true},
		{"all must hold", map[string]any{"resource_name": "record", "action": "delete"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := map[string]any{"template": "x", "recipients": []any{"me@you.com"}}
			for k, v := range tt.spec {
				spec[k] = v
			}
			hooks, err := ParseHooks([]any{spec})
			require.NoError(t, err)
			require.Len(t, hooks, 1)
			assert.Equal(t, tt.want, hooks[0].Matches(hctx))
		})
	}
}

func TestHookMatches_FieldAbsentFromContext(t *testing.T) {
	hooks, err := ParseHooks([]any{map[string]any{"template": "x", "id": "only-this"}})
	require.NoError(t, err)

	// A context built without ForObject has no "id" key.
	hctx := BuildContext(testEvent("custom.Event", types.ResourceRecord, types.ActionCreate, nil))
	assert.True(t, hooks[0].Matches(hctx))
}

func TestParseHooks_Defaults(t *testing.T) {
	hooks, err := ParseHooks([]any{
		map[string]any{"template": "Bonjour", "recipients": []any{"a@b.c"}},
		map[string]any{"template": "", "subject": "", "sender": "kinto@restmail.net", "recipients": []any{}},
	})
	require.NoError(t, err)
	require.Len(t, hooks, 2)

	assert.Equal(t, email.DefaultSubject, hooks[0].Subject)
	assert.Empty(t, hooks[0].Sender)
	assert.Equal(t, []string{"a@b.c"}, hooks[0].Recipients)

	assert.Equal(t, "", hooks[1].Subject)
	assert.Equal(t, "kinto@restmail.net", hooks[1].Sender)
	assert.Empty(t, hooks[1].Recipients)
}

func TestParseHooks_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"not a list", map[string]any{}},
		{"hook not an object", []any{"nope"}},
		{"missing template", []any{map[string]any{"recipients": []any{"a@b.c"}}}},
		{"recipients not a list", []any{map[string]any{"template": "x", "recipients": "a@b.c"}}},
		{"bad pattern", []any{map[string]any{"template": "x", "collection_id": "^(("}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHooks(tt.raw)
			require.Error(t, err)
			assert.Equal(t, types.ErrCodeInternalHookConfig, types.ErrorCodeOf(err))
		})
	}
}

func TestParseHooks_Nil(t *testing.T) {
	hooks, err := ParseHooks(nil)
	require.NoError(t, err)
	assert.Empty(t, hooks)
}
