package email

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DefaultSubject is used when a hook does not declare a subject.
const DefaultSubject = "New message"

// Values resolves the top-level names a template refers to.
type Values interface {
	Lookup(name string) (any, bool)
}

// MapValues adapts a plain map to Values.
type MapValues map[string]any

// Lookup implements Values.
func (m MapValues) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Renderer substitutes named placeholders in hook templates.
//
// Supported syntax:
//
//	{name}              top-level value
//	{name[key]}         map key or list index
//	{name.key}          map key
//	{{ and }}           literal braces
//	{name!s} {name!r}   conversions
//
// Positional placeholders and format specs are rejected. A name missing from
// the values is an error; nothing is silently substituted.
type Renderer struct{}

// NewRenderer returns a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render expands tmpl against values.
func (r *Renderer) Render(tmpl string, values Values) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := closingBrace(tmpl, i+1)
			if end < 0 {
				return "", newTemplateError(tmpl, "unclosed placeholder at offset %d", i)
			}
			val, err := r.resolve(tmpl, tmpl[i+1:end], values)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
			i = end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", newTemplateError(tmpl, "single '}' encountered at offset %d", i)
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

// closingBrace returns the index of the '}' closing a placeholder opened just
// before start, skipping over bracketed keys.
func closingBrace(s string, start int) int {
	depth := 0
	for j := start; j < len(s); j++ {
		switch s[j] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '{':
			if depth == 0 {
				return -1
			}
		case '}':
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func (r *Renderer) resolve(tmpl, field string, values Values) (string, error) {
	expr, conversion, spec := splitField(field)
	if spec != "" {
		return "", newTemplateError(tmpl, "format spec %q is not supported", spec)
	}

	name, rest := splitName(expr)
	if name == "" || isDigits(name) {
		return "", newTemplateError(tmpl, "positional placeholder {%s} is not supported", field)
	}

	val, ok := values.Lookup(name)
	if !ok {
		return "", newTemplateError(tmpl, "missing placeholder %q", name)
	}

	for rest != "" {
		var key string
		switch rest[0] {
		case '.':
			key, rest = splitName(rest[1:])
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return "", newTemplateError(tmpl, "missing ']' in placeholder {%s}", field)
			}
			key, rest = rest[1:end], rest[end+1:]
		default:
			return "", newTemplateError(tmpl, "invalid placeholder {%s}", field)
		}
		if key == "" {
			return "", newTemplateError(tmpl, "empty key in placeholder {%s}", field)
		}
		next, found := index(val, key)
		if !found {
			return "", newTemplateError(tmpl, "missing placeholder %q", name+"["+key+"]")
		}
		val = next
	}

	var out string
	switch conversion {
	case "", "s":
		out = FormatValue(val)
	case "r", "a":
		out = reprValue(val)
	default:
		return "", newTemplateError(tmpl, "unknown conversion %q", conversion)
	}
	return out, nil
}

// reprValue renders v the way a !r conversion shows it: strings are quoted,
// booleans and nil use their literal names, other values render as usual.
func reprValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		quote := "'"
		if strings.Contains(x, "'") && !strings.Contains(x, `"`) {
			quote = `"`
		}
		escaped := strings.ReplaceAll(x, `\`, `\\`)
		if quote == "'" {
			escaped = strings.ReplaceAll(escaped, "'", `\'`)
		}
		return quote + escaped + quote
	}
	return FormatValue(v)
}

// splitField separates "expr!conv:spec", ignoring '!' and ':' inside brackets.
func splitField(field string) (expr, conversion, spec string) {
	depth := 0
	for i := 0; i < len(field); i++ {
		switch field[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '!':
			if depth == 0 {
				expr = field[:i]
				rest := field[i+1:]
				if c := strings.IndexByte(rest, ':'); c >= 0 {
					return expr, rest[:c], rest[c+1:]
				}
				return expr, rest, ""
			}
		case ':':
			if depth == 0 {
				return field[:i], "", field[i+1:]
			}
		}
	}
	return field, "", ""
}

// splitName returns the leading identifier of s and the accessor chain after it.
func splitName(s string) (string, string) {
	if i := strings.IndexAny(s, ".["); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// index resolves one accessor step on a map or list value.
func index(val any, key string) (any, bool) {
	if val == nil {
		return nil, false
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || n >= rv.Len() {
			return nil, false
		}
		return rv.Index(n).Interface(), true
	default:
		return nil, false
	}
}

// FormatValue renders a context value as template text. Strings are inserted
// verbatim, nil renders empty, numbers drop insignificant zeros, and
// composite values are JSON encoded.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}
