// Package eventbus carries Envelopes between actors via ask/tell/publish,
// over an in-memory or Redis-backed transport (spec §4.2).
package eventbus

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is an envelope's delivery category.
type Category string

const (
	CategoryCommand      Category = "command"
	CategoryQuery        Category = "query"
	CategoryNotification Category = "notification"
)

// Metadata carries optional envelope provenance (spec §6 wire format).
type Metadata struct {
	Source       string `json:"source,omitempty"`
	SourceActorID string `json:"sourceActorId,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

// Envelope is the immutable unit of communication between actors (spec §3).
type Envelope struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Payload       any            `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	Actor         string         `json:"actor,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Metadata      Metadata       `json:"metadata,omitempty"`
}

// New creates an envelope, generating an id and correlation id when absent.
// Envelopes never mutate after creation; derived envelopes copy the
// originating correlationId so causal chains stay linked (spec §3).
func New(eventType string, payload any, correlationID string) Envelope {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Envelope{
		ID:            uuid.NewString(),
		Type:          eventType,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// CategoryResolver resolves an event type's category, typically backed by
// the catalog. When the catalog is unavailable or the type is unknown, the
// caller should fall back to InferCategory.
type CategoryResolver func(eventType string) (Category, bool)

// InferCategory derives a category from naming convention when the catalog
// cannot be consulted (spec §3: "Envelope" category derivation).
//
// GET_* and names containing _QUERY read as queries; VERB_NOUN imperative commands (the
// common case) and NOUN_VERB_PAST notifications are distinguished by
// whether the last component is a past-tense-looking verb.
func InferCategory(eventType string) Category {
	upper := strings.ToUpper(eventType)
	if strings.HasPrefix(upper, "GET_") || strings.Contains(upper, "_QUERY") {
		return CategoryQuery
	}
	parts := strings.Split(upper, "_")
	if len(parts) > 0 && looksPastTense(parts[len(parts)-1]) {
		return CategoryNotification
	}
	return CategoryCommand
}

func looksPastTense(word string) bool {
	return strings.HasSuffix(word, "ED") || strings.HasSuffix(word, "SENT") || strings.HasSuffix(word, "CREATED")
}

// ResolveCategory prefers resolver, falling back to naming-convention
// inference when resolver is nil or returns not-found.
func ResolveCategory(eventType string, resolver CategoryResolver) Category {
	if resolver != nil {
		if cat, ok := resolver(eventType); ok {
			return cat
		}
	}
	return InferCategory(eventType)
}
