package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Selector picks one value out of a decoded JSON document. Path steps are
// object keys (string) or array indices (int, negative counts from the end).
// When Pattern is set the selected value is matched against it and its
// placeholders become the output fields.
type Selector struct {
	Path    []any
	Pattern *textPattern
}

// UnmarshalYAML accepts:
//
//	field: key
//	field: [key, 0, key]
//	field: {path: [key, ...], pattern: "{{ a }}/{{ b }}"}
//	field: "{{ a }} ({{ b }})"      pattern on the value at key "field"
func (s *Selector) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var str string
		if err := value.Decode(&str); err != nil {
			return err
		}
		if placeholderRe.MatchString(str) {
			p, err := compileText(str)
			if err != nil {
				return err
			}
			s.Pattern = p
			return nil
		}
		s.Path = []any{str}
		return nil
	case yaml.SequenceNode:
		path, err := decodePath(value)
		if err != nil {
			return err
		}
		s.Path = path
		return nil
	case yaml.MappingNode:
		var raw struct {
			Path    yaml.Node `yaml:"path"`
			Pattern string    `yaml:"pattern"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		switch raw.Path.Kind {
		case yaml.SequenceNode:
			path, err := decodePath(&raw.Path)
			if err != nil {
				return err
			}
			s.Path = path
		case yaml.ScalarNode:
			s.Path = []any{raw.Path.Value}
		}
		if raw.Pattern != "" {
			p, err := compileText(raw.Pattern)
			if err != nil {
				return err
			}
			s.Pattern = p
		}
		return nil
	}
	return fmt.Errorf("line %d: unsupported selector", value.Line)
}

func decodePath(n *yaml.Node) ([]any, error) {
	path := make([]any, 0, len(n.Content))
	for _, step := range n.Content {
		if step.ShortTag() == "!!int" {
			i, err := strconv.Atoi(step.Value)
			if err != nil {
				return nil, err
			}
			path = append(path, i)
			continue
		}
		path = append(path, step.Value)
	}
	return path, nil
}

// JSONTemplate maps output field names to selectors.
type JSONTemplate map[string]Selector

// Apply extracts fields from a decoded document. Missing selectors yield
// nothing.
func (t JSONTemplate) Apply(doc any) Fields {
	out := Fields{}
	for name, sel := range t {
		path := sel.Path
		if len(path) == 0 {
			path = []any{name}
		}
		v, ok := Lookup(doc, path)
		if !ok {
			continue
		}
		s, ok := Stringify(v)
		if !ok || s == "" {
			continue
		}
		if sel.Pattern == nil {
			out[name] = s
			continue
		}
		sub := sel.Pattern.anchored.FindStringSubmatch(s)
		if sub == nil {
			continue
		}
		for i, c := range sel.Pattern.caps {
			if v := strings.TrimSpace(sub[i+1]); v != "" {
				out[c.name] = v
			}
		}
	}
	return out
}

// JSONList extracts one Fields per element of the array found at Path.
type JSONList struct {
	Path   []any        `yaml:"-"`
	Fields JSONTemplate `yaml:"fields"`
}

// UnmarshalYAML reads {path: [...], fields: {...}}.
func (l *JSONList) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Path   Selector     `yaml:"path"`
		Fields JSONTemplate `yaml:"fields"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	l.Path = raw.Path.Path
	l.Fields = raw.Fields
	return nil
}

// Apply returns the extracted items, skipping elements that yield nothing.
func (l JSONList) Apply(doc any) []Fields {
	v, ok := Lookup(doc, l.Path)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []Fields
	for _, item := range items {
		if f := l.Fields.Apply(item); len(f) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the number of elements in the array at Path, and false
// when Path does not lead to an array.
func (l JSONList) Count(doc any) (int, bool) {
	v, ok := Lookup(doc, l.Path)
	if !ok {
		return 0, false
	}
	items, ok := v.([]any)
	return len(items), ok
}

// DecodeJSON parses a response body. Bodies that are not strict JSON
// (trailing commas, single quotes, unquoted keys) fall back to JSON5.
func DecodeJSON(body []byte) (any, error) {
	var v any
	err := json.Unmarshal(body, &v)
	if err == nil {
		return v, nil
	}
	if err5 := json5.Unmarshal(body, &v); err5 == nil {
		return v, nil
	}
	return nil, err
}

// Lookup walks path through maps and arrays.
func Lookup(v any, path []any) (any, bool) {
	cur := v
	for _, step := range path {
		switch k := step.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = m[k]; !ok {
				return nil, false
			}
		case int:
			a, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			if k < 0 {
				k += len(a)
			}
			if k < 0 || k >= len(a) {
				return nil, false
			}
			cur = a[k]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Stringify renders a scalar as a field value. Arrays of scalars are joined
// with ", ". Objects are not representable.
func Stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case []any:
		var parts []string
		for _, e := range t {
			s, ok := Stringify(e)
			if !ok {
				return "", false
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), true
	}
	return "", false
}
