package hooks

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"emailer/internal/notifications/email"
	"emailer/internal/types"
)

// MetadataKey is the reserved metadata key holding hook declarations on
// buckets and collections.
const MetadataKey = "emailer"

// FilterField names a context field a hook may constrain.
type FilterField string

const (
	FilterEvent        FilterField = "event"
	FilterAction       FilterField = "action"
	FilterResourceName FilterField = "resource_name"
	FilterID           FilterField = "id"
	FilterRecordID     FilterField = "record_id"
	FilterCollectionID FilterField = "collection_id"
)

// FilterFields lists the filterable fields in evaluation order.
var FilterFields = []FilterField{
	FilterEvent,
	FilterAction,
	FilterResourceName,
	FilterID,
	FilterRecordID,
	FilterCollectionID,
}

// patternTimeout bounds a single filter evaluation; backtracking patterns
// come from user-supplied metadata.
const patternTimeout = 100 * time.Millisecond

// Matcher tests a context value against a filter.
type Matcher interface {
	Match(value string) bool
	String() string
}

// Exact matches by string equality.
type Exact string

func (e Exact) Match(value string) bool { return string(e) == value }
func (e Exact) String() string          { return string(e) }

// Pattern is a filter declared with a leading "^". It is compiled with
// .NET-style syntax so look-aheads such as ^(?!staging$) are available.
type Pattern struct {
	source string
	re     *regexp2.Regexp
}

// Match reports whether the pattern matches at the start of value. A pattern
// that exceeds its time budget does not match.
func (p *Pattern) Match(value string) bool {
	ok, err := p.re.MatchString(value)
	return err == nil && ok
}

func (p *Pattern) String() string { return p.source }

// NewMatcher builds the matcher for a raw filter value.
func NewMatcher(raw string) (Matcher, error) {
	if !strings.HasPrefix(raw, "^") {
		return Exact(raw), nil
	}
	re, err := regexp2.Compile(raw, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = patternTimeout
	return &Pattern{source: raw, re: re}, nil
}

// Filter constrains one context field.
type Filter struct {
	Field FilterField
	Match Matcher
}

// Hook is one parsed notification rule.
type Hook struct {
	Template   string
	Subject    string
	Sender     string
	Recipients []string
	Filters    []Filter
}

// Matches reports whether every filter is satisfied by hctx. A filter on a
// field the context does not carry is satisfied.
func (h Hook) Matches(hctx Context) bool {
	for _, f := range h.Filters {
		value, ok := hctx.String(string(f.Field))
		if !ok {
			continue
		}
		if !f.Match.Match(value) {
			return false
		}
	}
	return true
}

// ParseHooks converts the raw "hooks" list from metadata into Hooks. Metadata
// that passed validation always parses; anything else is a configuration
// error on the stored object.
func ParseHooks(raw any) ([]Hook, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, hookConfigError("hooks must be a list, got %T", raw)
	}

	out := make([]Hook, 0, len(list))
	for i, item := range list {
		spec, ok := item.(map[string]any)
		if !ok {
			return nil, hookConfigError("hook %d must be an object, got %T", i, item)
		}
		h, err := parseHook(spec)
		if err != nil {
			return nil, hookConfigError("hook %d: %v", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

func parseHook(spec map[string]any) (Hook, error) {
	var h Hook

	tmpl, ok := spec["template"].(string)
	if !ok {
		return h, fmt.Errorf(`missing "template"`)
	}
	h.Template = tmpl

	h.Subject = email.DefaultSubject
	if raw, present := spec["subject"]; present {
		s, ok := raw.(string)
		if !ok {
			return h, fmt.Errorf(`"subject" must be a string`)
		}
		h.Subject = s
	}

	if raw, present := spec["sender"]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return h, fmt.Errorf(`"sender" must be a string`)
		}
		h.Sender = s
	}

	recipients, err := stringList(spec["recipients"])
	if err != nil {
		return h, fmt.Errorf(`"recipients": %w`, err)
	}
	h.Recipients = recipients

	for _, field := range FilterFields {
		if _, present := spec[string(field)]; !present {
			continue
		}
		m, err := NewMatcher(types.PayloadString(spec, string(field)))
		if err != nil {
			return h, fmt.Errorf("filter %q: %w", field, err)
		}
		h.Filters = append(h.Filters, Filter{Field: field, Match: m})
	}
	return h, nil
}

func stringList(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", raw)
	}
}

func hookConfigError(format string, args ...any) *types.AppError {
	return types.NewAppError(types.ErrCodeInternalHookConfig, fmt.Sprintf(format, args...), nil)
}
