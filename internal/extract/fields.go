package extract

import (
	"sort"
	"strconv"
	"strings"
)

// Fields is the result of a template match. Values are strings, except
// repeating captures which are []Fields.
type Fields map[string]any

// String returns the string stored under key, or "".
func (f Fields) String(key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

// List returns the repeating capture stored under key.
func (f Fields) List(key string) []Fields {
	if l, ok := f[key].([]Fields); ok {
		return l
	}
	return nil
}

// Int parses the first integer found in the string under key, ignoring
// thousands separators ("1,234 results" gives 1234).
func (f Fields) Int(key string) (int, bool) {
	return FirstInt(f.String(key))
}

// Merge copies src into f. Existing non-empty values are kept.
func (f Fields) Merge(src Fields) {
	for k, v := range src {
		if cur, ok := f[k]; ok && !empty(cur) {
			continue
		}
		f[k] = v
	}
}

// Keys returns the keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []Fields:
		return len(t) == 0
	}
	return false
}

// FirstInt returns the first run of digits in s, skipping commas inside it.
func FirstInt(s string) (int, bool) {
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return 0, false
	}
	var b strings.Builder
	for _, r := range s[start:] {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == ',' {
			continue
		}
		break
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
