package hooks

import (
	"fmt"
	"strings"

	"emailer/internal/types"
)

// ValidateEvent checks the hook declarations carried by the new snapshots of
// a bucket or collection write. Objects without a declaration are accepted.
// The first problem found is returned as a validation AppError.
func ValidateEvent(ev types.Event) error {
	resource := types.EventResource(ev)
	for _, obj := range ev.ImpactedObjects() {
		if obj.New == nil {
			continue
		}
		bucketID := types.PayloadString(ev.Payload(), types.PayloadBucketID)
		if resource == types.ResourceBucket {
			bucketID = obj.New.ID()
		}
		if err := ValidateMetadata(obj.New, bucketID); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMetadata checks the hook declaration of one object belonging to
// bucketID.
func ValidateMetadata(metadata types.Object, bucketID string) error {
	raw, declared := metadata[MetadataKey]
	if !declared {
		return nil
	}
	decl, ok := raw.(map[string]any)
	if !ok {
		return invalidHooks(fmt.Sprintf("%q must be an object", MetadataKey))
	}
	rawHooks, ok := decl["hooks"]
	if !ok {
		return invalidHooks(`Missing "hooks"`)
	}
	list, ok := rawHooks.([]any)
	if !ok {
		return invalidHooks(`"hooks" must be a list`)
	}

	for _, item := range list {
		hook, ok := item.(map[string]any)
		if !ok {
			return invalidHooks("Invalid hook, expected an object")
		}
		if err := validateHook(hook, bucketID); err != nil {
			return err
		}
	}
	return nil
}

func validateHook(hook map[string]any, bucketID string) error {
	tmpl, ok := hook["template"]
	if !ok {
		return invalidHooks(`Missing "template"`)
	}
	if _, ok := tmpl.(string); !ok {
		return invalidHooks(`Invalid "template", expected a string`)
	}

	for _, key := range []string{"subject", "sender"} {
		if v, present := hook[key]; present && v != nil {
			if _, ok := v.(string); !ok {
				return invalidHooks(fmt.Sprintf("Invalid %q, expected a string", key))
			}
		}
	}

	rawRecipients := asList(hook["recipients"])
	if len(rawRecipients) == 0 {
		return invalidHooks("Empty list of recipients")
	}

	var invalid, foreignGroups []string
	for _, r := range rawRecipients {
		s, ok := r.(string)
		if !ok {
			invalid = append(invalid, fmt.Sprintf("%v", r))
			continue
		}
		switch {
		case IsGroupURI(s):
			if groupBucket(s) != bucketID {
				foreignGroups = append(foreignGroups, s)
			}
		case IsEmail(s):
		default:
			invalid = append(invalid, s)
		}
	}
	if len(invalid) > 0 {
		return invalidHooks("Invalid recipients " + strings.Join(invalid, ", "))
	}
	if len(foreignGroups) > 0 {
		return invalidHooks("Invalid bucket for groups " + strings.Join(foreignGroups, ", "))
	}

	for _, field := range FilterFields {
		v, present := hook[string(field)]
		if !present {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return invalidHooks(fmt.Sprintf("Invalid filter %q, expected a string", field))
		}
		if _, err := NewMatcher(s); err != nil {
			return invalidHooks(fmt.Sprintf("Invalid filter %q: %v", field, err))
		}
	}
	return nil
}

func asList(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// groupBucket returns the bucket id segment of a group path.
func groupBucket(uri string) string {
	bucketURI, _ := splitGroupURI(uri)
	return strings.TrimPrefix(bucketURI, "/buckets/")
}

func invalidHooks(msg string) *types.AppError {
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidHooks,
		msg,
		nil,
		map[string]any{"location": "body", "name": MetadataKey},
	)
}
