package tools

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	TypeObject  = "object"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// Schema is the subset of JSON Schema the model's function-calling protocol understands.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// ValidationError reports arguments that do not match a tool's declared parameters.
type ValidationError struct {
	Tool   string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(parts, "; "))
}

func (e *ValidationError) add(path, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if path == "" {
		path = "$"
	}
	e.Fields[path] = msg
}

// Validate checks v against the schema and records problems under path.
func (s *Schema) Validate(path string, v any, errs *ValidationError) {
	if s == nil {
		return
	}
	switch s.Type {
	case TypeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			errs.add(path, "expected object")
			return
		}
		for _, name := range s.Required {
			if val, present := obj[name]; !present || val == nil {
				errs.add(join(path, name), "required")
			}
		}
		for name, val := range obj {
			prop, known := s.Properties[name]
			if !known {
				errs.add(join(path, name), "unknown parameter")
				continue
			}
			if val == nil {
				continue
			}
			prop.Validate(join(path, name), val, errs)
		}
	case TypeString:
		str, ok := v.(string)
		if !ok {
			errs.add(path, "expected string")
			return
		}
		if len(s.Enum) > 0 && !inEnum(s.Enum, str) {
			errs.add(path, fmt.Sprintf("must be one of: %s", strings.Join(s.Enum, ", ")))
		}
	case TypeNumber:
		if _, ok := asFloat(v); !ok {
			errs.add(path, "expected number")
		}
	case TypeInteger:
		f, ok := asFloat(v)
		if !ok || f != math.Trunc(f) {
			errs.add(path, "expected integer")
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			errs.add(path, "expected boolean")
		}
	case TypeArray:
		items, ok := v.([]any)
		if !ok {
			errs.add(path, "expected array")
			return
		}
		for i, item := range items {
			s.Items.Validate(fmt.Sprintf("%s[%d]", path, i), item, errs)
		}
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func inEnum(enum []string, v string) bool {
	for _, e := range enum {
		if e == v {
			return true
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String returns args[key] when it is a string.
func String(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// Int returns args[key] as an int, or def when absent.
func Int(args map[string]any, key string, def int) int {
	if f, ok := asFloat(args[key]); ok {
		return int(f)
	}
	return def
}

// Bool returns args[key] as a bool, or def when absent.
func Bool(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}
