package submission

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Fields holds the decoded values of one submission keyed by field name.
// Values are strings, []string for repeated form keys, or whatever
// encoding/json produced for JSON bodies.
type Fields map[string]any

// FieldsFromForm converts parsed form values. Keys written with a trailing
// "[]" (routeType[]) are folded into the bare name.
func FieldsFromForm(values url.Values) Fields {
	merged := make(map[string][]string, len(values))
	for key, vals := range values {
		key = strings.TrimSuffix(key, "[]")
		merged[key] = append(merged[key], vals...)
	}

	f := make(Fields, len(merged))
	for key, vals := range merged {
		switch len(vals) {
		case 0:
		case 1:
			f[key] = vals[0]
		default:
			f[key] = vals
		}
	}
	return f
}

// String returns the value of key rendered as text. Missing keys yield "".
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		return StringList(listFromAny(v)).String()
	default:
		return fmt.Sprint(v)
	}
}

// List returns the value of key as an ordered list. See StringList.
func (f Fields) List(key string) StringList {
	switch v := f[key].(type) {
	case nil:
		return nil
	case string:
		return parseListString(v)
	case []string:
		return nonEmpty(v)
	case []any:
		return listFromAny(v)
	default:
		return StringList{fmt.Sprint(v)}
	}
}

// StringList is an ordered list of values such as preferred routes or
// requested positions.
type StringList []string

// String joins the list with ", ".
func (l StringList) String() string {
	return strings.Join(l, ", ")
}

// parseListString accepts a JSON-encoded array or a bare value.
func parseListString(s string) StringList {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var items []any
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			return listFromAny(items)
		}
	}
	return StringList{s}
}

func listFromAny(items []any) StringList {
	var out StringList
	for _, item := range items {
		if item == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(item))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func nonEmpty(items []string) StringList {
	var out StringList
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
