package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_GeneratesIDAndCorrelationID(t *testing.T) {
	env := New("SEND_MAGIC_LINK", map[string]any{"email": "u@x"}, "")
	assert.NotEmpty(t, env.ID)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, "SEND_MAGIC_LINK", env.Type)
}

func TestNew_PreservesGivenCorrelationID(t *testing.T) {
	env := New("MAGIC_LINK_SENT", nil, "corr-1")
	assert.Equal(t, "corr-1", env.CorrelationID)
}

func TestInferCategory(t *testing.T) {
	cases := map[string]Category{
		"SEND_MAGIC_LINK": CategoryCommand,
		"GET_USER":        CategoryQuery,
		"MAGIC_LINK_SENT": CategoryNotification,
		"USER_CREATED":    CategoryNotification,
	}
	for eventType, want := range cases {
		assert.Equal(t, want, InferCategory(eventType), eventType)
	}
}

func TestResolveCategory_PrefersResolver(t *testing.T) {
	resolver := func(eventType string) (Category, bool) {
		if eventType == "SEND_MAGIC_LINK" {
			return CategoryQuery, true
		}
		return "", false
	}
	assert.Equal(t, CategoryQuery, ResolveCategory("SEND_MAGIC_LINK", resolver))
	assert.Equal(t, CategoryCommand, ResolveCategory("DO_THING", resolver), "falls back to inference when resolver misses")
}
