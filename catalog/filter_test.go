package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesFilter_EmptyFilterAlwaysMatches(t *testing.T) {
	assert.True(t, MatchesFilter(nil, map[string]any{"a": 1}))
}

func TestMatchesFilter_EqualityRule(t *testing.T) {
	filter := json.RawMessage(`[{"path":"plan","equals":"pro"}]`)
	assert.True(t, MatchesFilter(filter, map[string]any{"plan": "pro"}))
	assert.False(t, MatchesFilter(filter, map[string]any{"plan": "free"}))
}

func TestMatchesFilter_ExistsRule(t *testing.T) {
	filter := json.RawMessage(`[{"path":"device.ipAddress","exists":true}]`)
	assert.True(t, MatchesFilter(filter, map[string]any{"device": map[string]any{"ipAddress": "1.2.3.4"}}))
	assert.False(t, MatchesFilter(filter, map[string]any{"device": map[string]any{}}))
}

func TestMatchesFilter_MultipleRulesAllMustMatch(t *testing.T) {
	filter := json.RawMessage(`[{"path":"plan","equals":"pro"},{"path":"active","equals":true}]`)
	assert.True(t, MatchesFilter(filter, map[string]any{"plan": "pro", "active": true}))
	assert.False(t, MatchesFilter(filter, map[string]any{"plan": "pro", "active": false}))
}
