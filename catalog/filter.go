package catalog

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// FilterRule is one clause of a consumer filter expression. The spec leaves
// "filter expression" as arbitrary accepted-but-unevaluated JSON (§9 open
// question); SPEC_FULL.md resolves it as this narrow attribute matcher:
// each rule checks a gjson path for either presence or equality.
type FilterRule struct {
	Path   string `json:"path"`
	Equals any    `json:"equals,omitempty"`
	Exists bool   `json:"exists,omitempty"`
}

// MatchesFilter reports whether payload satisfies every rule encoded in
// raw. A nil/empty filter always matches (no filter means "consume
// everything").
func MatchesFilter(raw json.RawMessage, payload any) bool {
	if len(raw) == 0 {
		return true
	}

	var rules []FilterRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return true // malformed filter: fail open, never drop a delivery on our own parse error
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return true
	}
	doc := gjson.ParseBytes(payloadJSON)

	for _, rule := range rules {
		result := doc.Get(rule.Path)
		if rule.Exists && !result.Exists() {
			return false
		}
		if rule.Equals != nil {
			if !result.Exists() {
				return false
			}
			want, err := json.Marshal(rule.Equals)
			if err != nil {
				return false
			}
			if result.Raw != string(want) && result.String() != string(want) {
				return false
			}
		}
	}
	return true
}
