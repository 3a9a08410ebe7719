// Package catalog is the single source of truth for event shape, producer,
// consumers, and observability (spec §4.1).
package catalog

import (
	"encoding/json"
	"time"
)

// EventDefinition is the immutable contract of an event type (spec §3).
type EventDefinition struct {
	Name          string          `json:"name" db:"name"`
	Category      Category        `json:"category" db:"category"`
	Description   string          `json:"description" db:"description"`
	ProducerActor string          `json:"producerActor" db:"producer_actor"`
	Version       int             `json:"version" db:"version"`
	Deprecated    bool            `json:"deprecated" db:"deprecated"`
	ReplacedBy    string          `json:"replacedBy,omitempty" db:"replaced_by"`
	PayloadSchema json.RawMessage `json:"payloadSchema" db:"payload_schema"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// Category matches eventbus.Category; duplicated here (rather than
// importing eventbus) because the catalog is the authority that eventbus
// consults, not the other way around.
type Category string

const (
	CategoryCommand      Category = "command"
	CategoryQuery        Category = "query"
	CategoryNotification Category = "notification"
)

// Pattern is the delivery pattern declared for a consumer (spec §3).
type Pattern string

const (
	PatternAsk     Pattern = "ask"
	PatternTell    Pattern = "tell"
	PatternPublish Pattern = "publish"
)

// EventConsumer is a routing edge: (eventName, consumerActor) (spec §3).
type EventConsumer struct {
	EventName    string          `json:"eventName" db:"event_name"`
	ConsumerActor string         `json:"consumerActor" db:"consumer_actor"`
	Required     bool            `json:"required" db:"required"`
	Pattern      Pattern         `json:"pattern" db:"pattern"`
	TimeoutMs    int             `json:"timeoutMs,omitempty" db:"timeout_ms"`
	Filter       json.RawMessage `json:"filter,omitempty" db:"filter_expression"`
}

// Direction is whether a metric observes production or consumption.
type Direction string

const (
	DirectionProduced Direction = "produced"
	DirectionConsumed Direction = "consumed"
)

// EventMetric is an append-only observation record (spec §3).
type EventMetric struct {
	ID            int64     `json:"id,omitempty" db:"id"`
	EventName     string    `json:"eventName" db:"event_name"`
	ActorID       string    `json:"actorId" db:"actor_id"`
	Direction     Direction `json:"direction" db:"direction"`
	Success       bool      `json:"success" db:"success"`
	DurationMs    int64     `json:"durationMs" db:"duration_ms"`
	ErrorMessage  string    `json:"errorMessage,omitempty" db:"error_message"`
	CorrelationID string    `json:"correlationId,omitempty" db:"correlation_id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

// SchemaVersion is an append-only version-history row (spec §3).
type SchemaVersion struct {
	ID               int64           `json:"id,omitempty" db:"id"`
	EventName        string          `json:"eventName" db:"event_name"`
	Version          int             `json:"version" db:"version"`
	PayloadSchema    json.RawMessage `json:"payloadSchema" db:"payload_schema"`
	MigrationScript  string          `json:"migrationScript,omitempty" db:"migration_script"`
	BreakingChange   bool            `json:"breakingChange" db:"breaking_change"`
	ChangeDescription string         `json:"changeDescription,omitempty" db:"change_description"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	CreatedBy        string          `json:"createdBy,omitempty" db:"created_by"`
}

// ActorManifest declares the events an actor produces and consumes (spec §3).
type ActorManifest struct {
	ActorName      string    `json:"actorName" db:"actor_name"`
	Description    string    `json:"description,omitempty" db:"description"`
	Version        int       `json:"version" db:"version"`
	Produces       []string  `json:"produces"`
	Consumes       []string  `json:"consumes"`
	HealthEndpoint string    `json:"healthEndpoint,omitempty" db:"health_endpoint"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// ListFilter narrows ListEvents (spec §4.1 "listEvents(filter)").
type ListFilter struct {
	Category   Category
	Producer   string
	Deprecated *bool
}

// ValidationError is one offending path within a payload (spec §4.1
// "validatePayload").
type ValidationError struct {
	Path     string `json:"path"`
	Message  string `json:"message"`
	Expected string `json:"expected,omitempty"`
	Received string `json:"received,omitempty"`
}

// ValidationResult is returned by ValidatePayload.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// DependencyGraph is the output of VisualizeDependencies (spec §4.1).
type DependencyGraph struct {
	Nodes []string         `json:"nodes"`
	Edges []DependencyEdge `json:"edges"`
}

// DependencyEdge is one (source actor, target actor) relationship.
type DependencyEdge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Events []string `json:"events"`
}

// ExportedEvent is one row of ExportCatalog's flattened view (spec §4.1).
type ExportedEvent struct {
	EventDefinition
	Produced24h  int64   `json:"produced24h"`
	Consumed24h  int64   `json:"consumed24h"`
	FailureRate  float64 `json:"failureRate"`
}

// HealthStatus is the result of Catalog.HealthCheck (spec §4.1).
type HealthStatus struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}
