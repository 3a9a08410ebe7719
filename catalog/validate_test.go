package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createSessionSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"required": ["userId", "device"],
		"properties": {
			"userId": {"type": "string"},
			"device": {
				"type": "object",
				"required": ["userAgent", "ipAddress"],
				"properties": {
					"userAgent": {"type": "string"},
					"ipAddress": {"type": "string", "pattern": "^[0-9.]+$"}
				}
			},
			"role": {"type": "string", "enum": ["admin", "member"]}
		},
		"additionalProperties": false
	}`)
}

func TestValidator_ValidPayloadHasNoErrors(t *testing.T) {
	v := NewValidator(ModeStrict)
	result, err := v.Validate("CREATE_SESSION", 1, createSessionSchema(), map[string]any{
		"userId": "u1",
		"device": map[string]any{"userAgent": "ua", "ipAddress": "127.0.0.1"},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidator_MissingRequiredFieldYieldsOneErrorPerPath(t *testing.T) {
	v := NewValidator(ModeStrict)
	result, err := v.Validate("CREATE_SESSION", 1, createSessionSchema(), map[string]any{
		"userId": "u1",
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "device", result.Errors[0].Path)
}

func TestValidator_WrongTypeAndEnumAndPattern(t *testing.T) {
	v := NewValidator(ModeStrict)
	result, err := v.Validate("CREATE_SESSION", 1, createSessionSchema(), map[string]any{
		"userId": 5,
		"device": map[string]any{"userAgent": "ua", "ipAddress": "not-an-ip"},
		"role":   "superadmin",
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)

	paths := make(map[string]bool)
	for _, e := range result.Errors {
		paths[e.Path] = true
	}
	assert.True(t, paths["userId"])
	assert.True(t, paths["device.ipAddress"])
	assert.True(t, paths["role"])
}

func TestValidator_StrictModeRejectsAdditionalProperties(t *testing.T) {
	v := NewValidator(ModeStrict)
	result, err := v.Validate("CREATE_SESSION", 1, createSessionSchema(), map[string]any{
		"userId": "u1",
		"device": map[string]any{"userAgent": "ua", "ipAddress": "127.0.0.1"},
		"extra":  "nope",
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidator_LooseModeAcceptsAdditionalProperties(t *testing.T) {
	v := NewValidator(ModeLoose)
	result, err := v.Validate("CREATE_SESSION", 1, createSessionSchema(), map[string]any{
		"userId": "u1",
		"device": map[string]any{"userAgent": "ua", "ipAddress": "127.0.0.1"},
		"extra":  "ok",
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidator_NumericBoundsAndArrayBounds(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"age": {"type": "number", "minimum": 0, "maximum": 120},
			"tags": {"type": "array", "minItems": 1, "maxItems": 3, "items": {"type": "string"}}
		}
	}`)
	v := NewValidator(ModeLoose)

	result, err := v.Validate("UPDATE_PROFILE", 1, schema, map[string]any{"age": 200, "tags": []any{}})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
}

func TestValidator_SchemaIsMemoizedPerEventAndVersion(t *testing.T) {
	v := NewValidator(ModeStrict)
	_, err := v.Validate("CREATE_SESSION", 1, createSessionSchema(), map[string]any{
		"userId": "u1",
		"device": map[string]any{"userAgent": "ua", "ipAddress": "127.0.0.1"},
	})
	require.NoError(t, err)

	v.mu.RLock()
	_, cached := v.cache[cacheKey("CREATE_SESSION", 1)]
	v.mu.RUnlock()
	assert.True(t, cached)
}
