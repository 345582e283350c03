package dualwrite

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/taskflow/taskflow/internal/domain"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
	"github.com/taskflow/taskflow/internal/pkg/id"
)

// hexer is implemented by driver identifier types such as ObjectID
type hexer interface {
	Hex() string
}

func invalid(format string, args ...any) error {
	return apperrors.Validation(fmt.Sprintf(format, args...))
}

// AsString passes strings through and formats other scalars
func AsString(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return stringify(v), nil
}

// AsOptionalString is AsString with empty values stored as NULL
func AsOptionalString(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s := stringify(v)
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// AsID stringifies identifier values, including driver id types
func AsID(v any) (any, error) {
	if v == nil {
		return "", nil
	}
	return stringify(v), nil
}

// AsOptionalID is AsID with empty values stored as NULL
func AsOptionalID(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s := stringify(v)
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// AsBool accepts booleans and their common string forms
func AsBool(v any) (any, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil, invalid("invalid boolean %q", b)
		}
		return parsed, nil
	}
	return nil, invalid("invalid boolean of type %T", v)
}

// AsTime accepts time values and RFC 3339 strings. Absent values stay NULL.
func AsTime(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		return t.UTC(), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil, nil
		}
		return t.UTC(), nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, invalid("invalid timestamp %q", t)
		}
		return parsed.UTC(), nil
	case int64:
		return time.UnixMilli(t).UTC(), nil
	}
	return nil, invalid("invalid timestamp of type %T", v)
}

// AsJSON stores maps and slices as JSON documents
func AsJSON(v any) (any, error) {
	switch v.(type) {
	case nil:
		return nil, nil
	case map[string]any, domain.Document, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, invalid("value is not representable as JSON: %v", err)
		}
		return json.RawMessage(b), nil
	case string:
		if !json.Valid([]byte(v.(string))) {
			return nil, invalid("invalid JSON string")
		}
		return json.RawMessage(v.(string)), nil
	}
	return nil, invalid("invalid JSON value of type %T", v)
}

// FromJSON reverses AsJSON
func FromJSON(v any) (any, error) {
	var raw []byte
	switch j := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = j
	case []byte:
		raw = j
	case string:
		raw = []byte(j)
	default:
		return v, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AsTaskPriority accepts priority names and integers and stores the integer
func AsTaskPriority(v any) (any, error) {
	switch p := v.(type) {
	case nil:
		return int(domain.DefaultTaskPriority), nil
	case domain.TaskPriority:
		if !p.IsValid() {
			return nil, invalid("invalid task priority %d", int(p))
		}
		return int(p), nil
	case string:
		parsed, ok := domain.ParseTaskPriority(p)
		if !ok {
			return nil, invalid("invalid task priority %q", p)
		}
		return int(parsed), nil
	}

	n, ok := toInt(v)
	if !ok || !domain.TaskPriority(n).IsValid() {
		return nil, invalid("invalid task priority %v", v)
	}
	return n, nil
}

// AsTaskStatus stores the canonical status string
func AsTaskStatus(v any) (any, error) {
	if v == nil {
		return string(domain.TaskStatusTodo), nil
	}
	s, ok := domain.ParseTaskStatus(stringify(v))
	if !ok {
		return nil, invalid("invalid task status %q", stringify(v))
	}
	return string(s), nil
}

// AsAssigneeType stores the lower case assignee kind
func AsAssigneeType(v any) (any, error) {
	t := domain.AssigneeType(strings.ToLower(stringify(v)))
	if !t.IsValid() {
		return nil, invalid("invalid assignee type %q", stringify(v))
	}
	return string(t), nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case float32:
		return toInt(float64(n))
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case hexer:
		return s.Hex()
	case fmt.Stringer:
		return s.String()
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

// normalizeIdentifier stringifies values that look like document ids
func normalizeIdentifier(v any) any {
	switch s := v.(type) {
	case hexer:
		return s.Hex()
	case fmt.Stringer:
		str := s.String()
		if id.IsObjectIDHex(str) {
			return str
		}
	}
	return v
}

// snakeCase converts camelCase keys to snake_case. Runs of capitals are
// treated as one word, so "displayID" becomes "display_id".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimPrefix(b.String(), "_")
}
