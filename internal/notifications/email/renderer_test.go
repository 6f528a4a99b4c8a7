package email

import (
	"encoding/json"
	"testing"

	"emailer/internal/types"
)

func TestRendererRender(t *testing.T) {
	values := MapValues{
		"bucket_id":     "b",
		"collection_id": "c",
		"user_id":       "basicauth:alice",
		"uri":           "/buckets/b/collections/c",
		"settings":      map[string]any{"project_name": "Kinto DEV"},
		"count":         json.Number("3"),
		"ratio":         2.0,
		"missing_value": nil,
		"impacted_objects": []any{
			map[string]any{"new": map[string]any{"id": "r1"}},
		},
		"secret":  types.SecretString("hunter2"),
		"enabled": true,
		"title":   "it's",
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain text", "Bonjour les amis.", "Bonjour les amis."},
		{"empty template", "", ""},
		{"single placeholder", "Created {bucket_id}/{collection_id}.", "Created b/c."},
		{"sentence", "{user_id} requested review on {uri}.", "basicauth:alice requested review on /buckets/b/collections/c."},
		{"map index", "{settings[project_name]}", "Kinto DEV"},
		{"attribute access", "{settings.project_name}", "Kinto DEV"},
		{"list index", "{impacted_objects[0][new][id]}", "r1"},
		{"escaped braces", "{{literal}} {bucket_id}", "{literal} b"},
		{"json number", "{count} items", "3 items"},
		{"float without trailing zero", "{ratio}", "2"},
		{"nil renders empty", "[{missing_value}]", "[]"},
		{"repr conversion", "{bucket_id!r}", "'b'"},
		{"repr of number is bare", "{count!r}", "3"},
		{"repr of bool", "{enabled!r}", "True"},
		{"repr of nil", "{missing_value!r}", "None"},
		{"repr picks double quotes", "{title!r}", `"it's"`},
		{"ascii conversion", "{bucket_id!a}", "'b'"},
		{"string conversion", "{bucket_id!s}", "b"},
		{"composite as json", "{settings}", `{"project_name":"Kinto DEV"}`},
		{"secret stays redacted", "{secret}", "***REDACTED***"},
	}

	r := NewRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.tmpl, values)
			if err != nil {
				t.Fatalf("Render(%q) error: %v", tt.tmpl, err)
			}
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestRendererErrors(t *testing.T) {
	values := MapValues{
		"bucket_id": "b",
		"settings":  map[string]any{"project_name": "Kinto"},
		"list":      []any{"a"},
	}

	tests := []struct {
		name string
		tmpl string
	}{
		{"missing placeholder", "Hello {nobody}"},
		{"missing nested key", "{settings[nope]}"},
		{"index out of range", "{list[3]}"},
		{"unclosed brace", "Hello {bucket_id"},
		{"stray closing brace", "Hello } there"},
		{"positional empty", "Hello {}"},
		{"positional numeric", "Hello {0}"},
		{"format spec", "{bucket_id:>10}"},
		{"unknown conversion", "{bucket_id!x}"},
		{"index into string", "{bucket_id[0]}"},
	}

	r := NewRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Render(tt.tmpl, values)
			if err == nil {
				t.Fatalf("Render(%q) expected error", tt.tmpl)
			}
			if !IsTemplateError(err) {
				t.Errorf("Render(%q) error %v is not a template error", tt.tmpl, err)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{true, "true"},
		{42, "42"},
		{1.5, "1.5"},
		{[]string{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
