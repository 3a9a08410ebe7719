package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
)

// Schema is the structural, JSON-schema-equivalent description of a
// payload (spec §3 "payloadSchema"): property types, required fields,
// string patterns, enum constraints, numeric bounds, array bounds, and an
// additionalProperties flag.
type Schema struct {
	Type                 string             `json:"type"` // "object", "string", "number", "integer", "boolean", "array"
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Pattern              string             `json:"pattern,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	MinItems             *int               `json:"minItems,omitempty"`
	MaxItems             *int               `json:"maxItems,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// Mode controls how unknown schema keywords and additionalProperties are
// treated (spec §4.1 "Validation mode").
type Mode string

const (
	// ModeStrict enforces additionalProperties:false as declared and
	// rejects schemas that use keywords Schema does not define.
	ModeStrict Mode = "strict"
	// ModeLoose accepts extra properties regardless of the schema.
	ModeLoose Mode = "loose"
)

// compiledSchema is a Schema plus its precompiled regexps, memoized by
// (eventName, version) so repeated ValidatePayload calls never re-parse
// the same schema (spec §9 "precompiled validators memoized by
// (eventName, version)").
type compiledSchema struct {
	schema   *Schema
	patterns map[string]*regexp.Regexp
}

// Validator compiles and memoizes schema validators.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*compiledSchema
	mode  Mode
}

// NewValidator creates a Validator in the given mode (defaulting to strict).
func NewValidator(mode Mode) *Validator {
	if mode == "" {
		mode = ModeStrict
	}
	return &Validator{cache: make(map[string]*compiledSchema), mode: mode}
}

func cacheKey(eventName string, version int) string {
	return fmt.Sprintf("%s@%d", eventName, version)
}

func (v *Validator) compile(eventName string, version int, raw json.RawMessage) (*compiledSchema, error) {
	key := cacheKey(eventName, version)

	v.mu.RLock()
	if cs, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cs, nil
	}
	v.mu.RUnlock()

	var schema Schema
	dec := json.NewDecoder(bytes.NewReader(raw))
	if v.mode == ModeStrict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&schema); err != nil {
		return nil, err
	}

	cs := &compiledSchema{schema: &schema, patterns: make(map[string]*regexp.Regexp)}
	if err := precompilePatterns(&schema, cs.patterns, ""); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.cache[key] = cs
	v.mu.Unlock()
	return cs, nil
}

func precompilePatterns(s *Schema, out map[string]*regexp.Regexp, path string) error {
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern at %s: %w", path, err)
		}
		out[path] = re
	}
	for name, prop := range s.Properties {
		if err := precompilePatterns(prop, out, joinPath(path, name)); err != nil {
			return err
		}
	}
	if s.Items != nil {
		if err := precompilePatterns(s.Items, out, path+"[]"); err != nil {
			return err
		}
	}
	return nil
}

// itemIndex matches the "[<n>]" segments of a value path; precompilePatterns
// records array item paths with "[]" in their place.
var itemIndex = regexp.MustCompile(`\[\d+\]`)

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// Validate validates payload against the compiled schema for (eventName,
// version). Exactly one ValidationError is produced per offending path
// (spec §8 invariant 2).
func (v *Validator) Validate(eventName string, version int, schemaRaw json.RawMessage, payload any) (*ValidationResult, error) {
	cs, err := v.compile(eventName, version, schemaRaw)
	if err != nil {
		return nil, err
	}

	var errs []ValidationError
	validateValue(cs.schema, cs.patterns, "", payload, v.mode, &errs)

	return &ValidationResult{Valid: len(errs) == 0, Errors: errs}, nil
}

func validateValue(s *Schema, patterns map[string]*regexp.Regexp, path string, value any, mode Mode, errs *[]ValidationError) {
	if s == nil {
		return
	}

	if len(s.Enum) > 0 && !enumContains(s.Enum, value) {
		addError(errs, path, "value not in enum", fmt.Sprintf("%v", s.Enum), fmt.Sprintf("%v", value))
		return
	}

	switch s.Type {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			addError(errs, path, "expected object", "object", typeName(value))
			return
		}
		for _, req := range s.Required {
			if _, present := obj[req]; !present {
				addError(errs, joinPath(path, req), "required field missing", "present", "missing")
			}
		}
		for name, prop := range s.Properties {
			if v, present := obj[name]; present {
				validateValue(prop, patterns, joinPath(path, name), v, mode, errs)
			}
		}
		if mode == ModeStrict && s.AdditionalProperties != nil && !*s.AdditionalProperties {
			for name := range obj {
				if _, known := s.Properties[name]; !known {
					addError(errs, joinPath(path, name), "unexpected additional property", "absent", "present")
				}
			}
		}

	case "array":
		arr, ok := value.([]any)
		if !ok {
			addError(errs, path, "expected array", "array", typeName(value))
			return
		}
		if s.MinItems != nil && len(arr) < *s.MinItems {
			addError(errs, path, "array too short", fmt.Sprintf(">=%d items", *s.MinItems), fmt.Sprintf("%d items", len(arr)))
		}
		if s.MaxItems != nil && len(arr) > *s.MaxItems {
			addError(errs, path, "array too long", fmt.Sprintf("<=%d items", *s.MaxItems), fmt.Sprintf("%d items", len(arr)))
		}
		if s.Items != nil {
			for i, item := range arr {
				validateValue(s.Items, patterns, fmt.Sprintf("%s[%d]", path, i), item, mode, errs)
			}
		}

	case "string":
		str, ok := value.(string)
		if !ok {
			addError(errs, path, "expected string", "string", typeName(value))
			return
		}
		if re, ok := patterns[itemIndex.ReplaceAllString(path, "[]")]; ok && !re.MatchString(str) {
			addError(errs, path, "string does not match pattern", s.Pattern, str)
		}

	case "number", "integer":
		num, ok := toFloat(value)
		if !ok {
			addError(errs, path, "expected number", "number", typeName(value))
			return
		}
		if s.Type == "integer" && num != float64(int64(num)) {
			addError(errs, path, "expected integer", "integer", fmt.Sprintf("%v", value))
			return
		}
		if s.Minimum != nil && num < *s.Minimum {
			addError(errs, path, "value below minimum", fmt.Sprintf(">=%v", *s.Minimum), fmt.Sprintf("%v", num))
		}
		if s.Maximum != nil && num > *s.Maximum {
			addError(errs, path, "value above maximum", fmt.Sprintf("<=%v", *s.Maximum), fmt.Sprintf("%v", num))
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			addError(errs, path, "expected boolean", "boolean", typeName(value))
		}
	}
}

func addError(errs *[]ValidationError, path, message, expected, received string) {
	*errs = append(*errs, ValidationError{Path: path, Message: message, Expected: expected, Received: received})
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeName(value any) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
