package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emailer/internal/types"
)

func validHook() map[string]any {
	return map[string]any{
		"template": "{user_id} requested review on {uri}.",
		"recipients": []any{
			"me@you.com",
			"My friend alice <alice@wonderland.com>",
			"<t.h.i.s+that@some.crazy.moderndomainnameyouknow>",
		},
	}
}

func collectionWrite(decl any) *types.ResourceEvent {
	obj := types.Object{"id": "c"}
	if decl != nil {
		obj[MetadataKey] = decl
	}
	return testEvent(types.EventResourceChanged, types.ResourceCollection, types.ActionUpdate,
		map[string]any{"bucket_id": "b"}, types.ImpactedObject{New: obj})
}

func TestValidateEvent_Accepts(t *testing.T) {
	withGroup := validHook()
	withGroup["recipients"] = append(withGroup["recipients"].([]any), "/buckets/b/groups/g")

	emptyTemplate := validHook()
	emptyTemplate["template"] = ""

	withFilter := validHook()
	withFilter["collection_id"] = "^(?!normandy-recipes$)"

	tests := []struct {
		name string
		decl any
	}{
		{"no declaration", nil},
		{"simple recipients", map[string]any{"hooks": []any{validHook()}}},
		{"group url", map[string]any{"hooks": []any{withGroup}}},
		{"empty list of hooks", map[string]any{"hooks": []any{}}},
		{"empty template", map[string]any{"hooks": []any{emptyTemplate}}},
		{"look-ahead filter", map[string]any{"hooks": []any{withFilter}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateEvent(collectionWrite(tt.decl)))
		})
	}
}

func TestValidateEvent_Rejects(t *testing.T) {
	noTemplate := validHook()
	delete(noTemplate, "template")

	noRecipients := validHook()
	noRecipients["recipients"] = []any{}

	missingRecipients := validHook()
	delete(missingRecipients, "recipients")

	badEmails := validHook()
	badEmails["recipients"] = append(badEmails["recipients"].([]any), "<fe@gmail.com", "haha@haha@com")

	foreignGroup := validHook()
	foreignGroup["recipients"] = append(foreignGroup["recipients"].([]any), "/buckets/plop/groups/g")

	prefixGroup := validHook()
	prefixGroup["recipients"] = []any{"/buckets/bb/groups/g"}

	badGroupURI := validHook()
	badGroupURI["recipients"] = append(badGroupURI["recipients"].([]any), "/buckets/b/group/g")

	badFilter := validHook()
	badFilter["collection_id"] = "^(("

	nonStringFilter := validHook()
	nonStringFilter["action"] = 3

	tests := []struct {
		name string
		decl any
		want string
	}{
		{"missing hooks", map[string]any{}, `Missing "hooks"`},
		{"hooks not a list", map[string]any{"hooks": "x"}, `"hooks" must be a list`},
		{"missing template", map[string]any{"hooks": []any{noTemplate}}, `Missing "template"`},
		{"empty recipients", map[string]any{"hooks": []any{noRecipients}}, "Empty list of recipients"},
		{"absent recipients", map[string]any{"hooks": []any{missingRecipients}}, "Empty list of recipients"},
		{"invalid emails", map[string]any{"hooks": []any{badEmails}}, "Invalid recipients <fe@gmail.com, haha@haha@com"},
		{"group from other bucket", map[string]any{"hooks": []any{foreignGroup}}, "Invalid bucket for groups /buckets/plop/groups/g"},
		{"group bucket sharing a prefix", map[string]any{"hooks": []any{prefixGroup}}, "Invalid bucket for groups /buckets/bb/groups/g"},
		{"invalid group uri", map[string]any{"hooks": []any{badGroupURI}}, "Invalid recipients /buckets/b/group/g"},
		{"uncompilable filter", map[string]any{"hooks": []any{badFilter}}, `Invalid filter "collection_id"`},
		{"non-string filter", map[string]any{"hooks": []any{nonStringFilter}}, `Invalid filter "action", expected a string`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEvent(collectionWrite(tt.decl))
			require.Error(t, err)
			assert.Equal(t, types.ErrCodeValidationInvalidHooks, types.ErrorCodeOf(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateEvent_BucketUsesOwnID(t *testing.T) {
	hook := validHook()
	hook["recipients"] = []any{"/buckets/newbucket/groups/g"}
	obj := types.Object{"id": "newbucket", MetadataKey: map[string]any{"hooks": []any{hook}}}

	ev := testEvent(types.EventResourceChanged, types.ResourceBucket, types.ActionCreate, nil,
		types.ImpactedObject{New: obj})

	assert.NoError(t, ValidateEvent(ev))
}

func TestValidateEvent_SecondObjectInvalid(t *testing.T) {
	ok := types.Object{"id": "c1", MetadataKey: map[string]any{"hooks": []any{validHook()}}}
	bad := types.Object{"id": "c2", MetadataKey: map[string]any{}}

	ev := testEvent(types.EventResourceChanged, types.ResourceCollection, types.ActionCreate,
		map[string]any{"bucket_id": "b"},
		types.ImpactedObject{New: ok}, types.ImpactedObject{New: bad})

	err := ValidateEvent(ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Missing "hooks"`)
}
