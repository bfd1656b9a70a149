package commands

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is the optional argument map of a command
type Payload map[string]any

// String returns the trimmed string value of key, or "" when missing or
// not a string
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Int returns the integer value of key. JSON numbers arrive as float64;
// numeric strings are accepted too.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case json.Number:
		n, err := strconv.Atoi(v.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Strings returns the string list under key. A single string is treated
// as a one-element list; non-string and blank elements are skipped.
func (p Payload) Strings(key string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	switch v := p[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case string:
		add(v)
	}
	return out
}
