package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/actorsys/runtime/internal/errs"
	"github.com/actorsys/runtime/internal/log"
	"github.com/actorsys/runtime/internal/metrics"
)

// Catalog is the single source of truth for event shape, producer,
// consumers, and observability (spec §4.1).
type Catalog struct {
	store     Store
	cache     Cache
	validator *Validator
	log       *log.Logger
	metrics   *metrics.Metrics
}

// Option configures a Catalog at construction time.
type Option func(*Catalog)

// WithCache attaches a read-through Cache (spec §4.1 "Caching"). Without
// one, every read goes straight to the store.
func WithCache(c Cache) Option {
	return func(cat *Catalog) { cat.cache = c }
}

// WithMetrics attaches a metrics sink for catalog operation counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cat *Catalog) { cat.metrics = m }
}

// New creates a Catalog over store, validating in the given mode.
func New(store Store, mode Mode, logger *log.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = log.NewDefault("catalog")
	}
	cat := &Catalog{store: store, validator: NewValidator(mode), log: logger}
	for _, opt := range opts {
		opt(cat)
	}
	return cat
}

func eventCacheKey(name string) string      { return "event:" + name }
func consumersCacheKey(name string) string  { return "consumers:" + name }

const eventListCacheKey = "event:list"

// Register inserts or updates an event definition. Transactional from the
// catalog's perspective: write the definition, append an audit row,
// invalidate caches (spec §4.1 "register").
func (c *Catalog) Register(ctx context.Context, def EventDefinition) error {
	if def.Name == "" {
		return errs.NewInvalidEventDefinition("event name must not be empty")
	}
	if len(def.PayloadSchema) == 0 || !json.Valid(def.PayloadSchema) {
		return errs.NewInvalidEventDefinition("payload schema must be valid JSON")
	}
	if def.Version == 0 {
		def.Version = 1
	}

	before, _ := c.store.GetDefinition(ctx, def.Name)

	if err := c.store.UpsertDefinition(ctx, &def); err != nil {
		return errs.NewEventRegistrationFailed(err)
	}
	_ = c.store.InsertAudit(ctx, def.Name, "register", before, def, def.ProducerActor)
	c.invalidate(ctx, def.Name)
	return nil
}

// Update applies partial field changes to an existing definition (spec
// §4.1 "update"). Only description, payloadSchema, deprecated, replacedBy
// are mutable.
type UpdateFields struct {
	Description   *string
	PayloadSchema json.RawMessage
	Deprecated    *bool
	ReplacedBy    *string
}

func (c *Catalog) Update(ctx context.Context, name string, fields UpdateFields) error {
	before, err := c.store.GetDefinition(ctx, name)
	if err != nil {
		return errs.NewEventRegistrationFailed(err)
	}
	if before == nil {
		return errs.NewEventNotFound(name)
	}

	after := *before
	if fields.Description != nil {
		after.Description = *fields.Description
	}
	if len(fields.PayloadSchema) > 0 {
		after.PayloadSchema = fields.PayloadSchema
	}
	if fields.Deprecated != nil {
		after.Deprecated = *fields.Deprecated
	}
	if fields.ReplacedBy != nil {
		after.ReplacedBy = *fields.ReplacedBy
	}

	if err := c.store.UpsertDefinition(ctx, &after); err != nil {
		return errs.NewEventRegistrationFailed(err)
	}
	_ = c.store.InsertAudit(ctx, name, "update", before, after, "")
	c.invalidate(ctx, name)
	return nil
}

// Deprecate is a convenience over Update (spec §4.1 "deprecate").
func (c *Catalog) Deprecate(ctx context.Context, name string, replacedBy string) error {
	deprecated := true
	fields := UpdateFields{Deprecated: &deprecated}
	if replacedBy != "" {
		fields.ReplacedBy = &replacedBy
	}
	return c.Update(ctx, name, fields)
}

// GetDefinition reads through the cache to the store; errors fail closed
// (return nil, nil) rather than surfacing (spec §4.1 "Failure semantics").
func (c *Catalog) GetDefinition(ctx context.Context, name string) (*EventDefinition, error) {
	if c.cache != nil {
		var def EventDefinition
		if hit, err := c.cache.Get(ctx, eventCacheKey(name), &def); err == nil && hit {
			return &def, nil
		} else if err != nil {
			c.log.WithContext(ctx).WithError(err).Warn("catalog cache read failed, bypassing")
		}
	}

	def, err := c.store.GetDefinition(ctx, name)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).Error("catalog store read failed")
		return nil, nil
	}
	if def == nil {
		return nil, nil
	}
	if c.cache != nil {
		_ = c.cache.Set(ctx, eventCacheKey(name), def, DefaultCacheTTL)
	}
	return def, nil
}

// ListEvents lists definitions matching filter, ordered by name (spec §4.1
// "listEvents").
func (c *Catalog) ListEvents(ctx context.Context, filter ListFilter) ([]EventDefinition, error) {
	defs, err := c.store.ListDefinitions(ctx, filter)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).Error("catalog list failed")
		return nil, nil
	}
	return defs, nil
}

// AddConsumer registers target as a consumer of eventName (spec §4.1
// "addConsumer").
func (c *Catalog) AddConsumer(ctx context.Context, consumer EventConsumer) error {
	def, err := c.store.GetDefinition(ctx, consumer.EventName)
	if err != nil {
		return errs.NewEventRegistrationFailed(err)
	}
	if def == nil {
		return errs.NewEventNotFound(consumer.EventName)
	}
	if consumer.ConsumerActor == "" || consumer.Pattern == "" {
		return errs.NewInvalidConsumer("consumerActor and pattern are required")
	}
	if err := c.store.UpsertConsumer(ctx, &consumer); err != nil {
		return errs.NewEventRegistrationFailed(err)
	}
	c.invalidateConsumers(ctx, consumer.EventName)
	return nil
}

// RemoveConsumer deregisters a consumer (spec §4.1 "removeConsumer").
func (c *Catalog) RemoveConsumer(ctx context.Context, eventName, consumerActor string) error {
	if err := c.store.RemoveConsumer(ctx, eventName, consumerActor); err != nil {
		return errs.NewEventRegistrationFailed(err)
	}
	c.invalidateConsumers(ctx, eventName)
	return nil
}

// GetConsumers returns eventName's consumers, cache-backed (spec §4.1
// "getConsumers").
func (c *Catalog) GetConsumers(ctx context.Context, eventName string) ([]EventConsumer, error) {
	if c.cache != nil {
		var consumers []EventConsumer
		if hit, err := c.cache.Get(ctx, consumersCacheKey(eventName), &consumers); err == nil && hit {
			return consumers, nil
		}
	}

	consumers, err := c.store.ListConsumers(ctx, eventName)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).Error("catalog consumer read failed")
		return nil, nil
	}
	if c.cache != nil {
		_ = c.cache.Set(ctx, consumersCacheKey(eventName), consumers, DefaultCacheTTL)
	}
	return consumers, nil
}

// ValidatePayload validates payload against eventName's current schema
// (spec §4.1 "validatePayload").
func (c *Catalog) ValidatePayload(ctx context.Context, eventName string, payload any) (*ValidationResult, error) {
	def, err := c.GetDefinition(ctx, eventName)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return &ValidationResult{Valid: false, Errors: []ValidationError{{Message: fmt.Sprintf("Event %s not found", eventName)}}}, nil
	}
	return c.validator.Validate(eventName, def.Version, def.PayloadSchema, payload)
}

// RecordMetric appends an observation to the store and, when a metrics sink
// is attached, bumps its counters. A store failure is logged, never
// returned (spec §4.1 "recordMetric").
func (c *Catalog) RecordMetric(ctx context.Context, m EventMetric) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if err := c.store.InsertMetric(ctx, &m); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("metric insert failed")
		return nil
	}
	if c.metrics != nil {
		switch m.Direction {
		case DirectionProduced:
			c.metrics.EventsProduced.WithLabelValues(m.EventName, m.ActorID).Inc()
		case DirectionConsumed:
			outcome := "success"
			if !m.Success {
				outcome = "failure"
			}
			c.metrics.EventsConsumed.WithLabelValues(m.EventName, m.ActorID, outcome).Inc()
		}
		if !m.Success {
			c.metrics.EventErrors.WithLabelValues(m.EventName, "").Inc()
		}
	}
	return nil
}

// RegisterActor upserts an actor manifest (spec §4.1 "registerActor").
func (c *Catalog) RegisterActor(ctx context.Context, manifest ActorManifest) error {
	return c.store.UpsertManifest(ctx, &manifest)
}

// GetActorManifest reads a manifest by actor name (spec §4.1
// "getActorManifest").
func (c *Catalog) GetActorManifest(ctx context.Context, actorName string) (*ActorManifest, error) {
	return c.store.GetManifest(ctx, actorName)
}

// DiscoverEvents returns the produces/consumes sets for actorName, derived
// from the manifest plus the live consumer table (spec §4.1
// "discoverEvents").
func (c *Catalog) DiscoverEvents(ctx context.Context, actorName string) (produces, consumes []string, err error) {
	manifest, merr := c.store.GetManifest(ctx, actorName)
	if merr != nil {
		return nil, nil, merr
	}
	if manifest != nil {
		produces = manifest.Produces
	}

	edges, eerr := c.store.ListAllConsumerEdges(ctx)
	if eerr != nil {
		return produces, nil, eerr
	}
	for _, edge := range edges {
		if edge.ConsumerActor == actorName {
			consumes = append(consumes, edge.EventName)
		}
	}
	return produces, consumes, nil
}

// AddSchemaVersion appends a version-history row (spec §4.1
// "addSchemaVersion").
func (c *Catalog) AddSchemaVersion(ctx context.Context, version SchemaVersion) error {
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now()
	}
	return c.store.InsertSchemaVersion(ctx, &version)
}

// GetSchemaHistory returns eventName's version log in ascending order
// (spec §4.1 "getSchemaHistory").
func (c *Catalog) GetSchemaHistory(ctx context.Context, eventName string) ([]SchemaVersion, error) {
	return c.store.ListSchemaHistory(ctx, eventName)
}

// GenerateTypes produces an idempotent textual listing of events grouped
// by category, purely derived from current state (spec §4.1
// "generateTypes").
func (c *Catalog) GenerateTypes(ctx context.Context) (string, error) {
	defs, err := c.store.ListDefinitions(ctx, ListFilter{})
	if err != nil {
		return "", err
	}

	grouped := map[Category][]EventDefinition{}
	for _, d := range defs {
		grouped[d.Category] = append(grouped[d.Category], d)
	}

	var b strings.Builder
	for _, cat := range []Category{CategoryCommand, CategoryQuery, CategoryNotification} {
		events := grouped[cat]
		if len(events) == 0 {
			continue
		}
		sort.Slice(events, func(i, j int) bool { return events[i].Name < events[j].Name })
		fmt.Fprintf(&b, "// %s\n", strings.ToUpper(string(cat)))
		for _, e := range events {
			fmt.Fprintf(&b, "type %s struct{} // producer=%s v%d\n", e.Name, e.ProducerActor, e.Version)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ExportCatalog returns a flattened view with 24h produced/consumed counts
// and failure rate per event (spec §4.1 "exportCatalog").
func (c *Catalog) ExportCatalog(ctx context.Context) ([]ExportedEvent, error) {
	defs, err := c.store.ListDefinitions(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-24 * time.Hour)
	exported := make([]ExportedEvent, 0, len(defs))
	for _, def := range defs {
		produced, consumed, failureRate, err := c.store.MetricCounts(ctx, def.Name, since)
		if err != nil {
			continue
		}
		exported = append(exported, ExportedEvent{
			EventDefinition: def,
			Produced24h:     produced,
			Consumed24h:     consumed,
			FailureRate:     failureRate,
		})
	}
	return exported, nil
}

// VisualizeDependencies derives an actor dependency graph from the
// consumer table (spec §4.1 "visualizeDependencies").
func (c *Catalog) VisualizeDependencies(ctx context.Context) (*DependencyGraph, error) {
	edges, err := c.store.ListAllConsumerEdges(ctx)
	if err != nil {
		return nil, err
	}

	nodeSet := map[string]struct{}{}
	byPair := map[[2]string][]string{}
	for _, e := range edges {
		def, err := c.store.GetDefinition(ctx, e.EventName)
		if err != nil || def == nil {
			continue
		}
		nodeSet[def.ProducerActor] = struct{}{}
		nodeSet[e.ConsumerActor] = struct{}{}
		key := [2]string{def.ProducerActor, e.ConsumerActor}
		byPair[key] = append(byPair[key], e.EventName)
	}

	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	graphEdges := make([]DependencyEdge, 0, len(byPair))
	for pair, events := range byPair {
		graphEdges = append(graphEdges, DependencyEdge{Source: pair[0], Target: pair[1], Events: events})
	}
	sort.Slice(graphEdges, func(i, j int) bool {
		if graphEdges[i].Source != graphEdges[j].Source {
			return graphEdges[i].Source < graphEdges[j].Source
		}
		return graphEdges[i].Target < graphEdges[j].Target
	})

	return &DependencyGraph{Nodes: nodes, Edges: graphEdges}, nil
}

// HealthCheck pings the store and cache (spec §4.1 "healthCheck").
func (c *Catalog) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, Components: map[string]string{}}

	if err := c.store.Ping(ctx); err != nil {
		status.Healthy = false
		status.Components["store"] = err.Error()
	} else {
		status.Components["store"] = "ok"
	}

	if c.cache != nil {
		var probe string
		if _, err := c.cache.Get(ctx, "healthcheck:probe", &probe); err != nil {
			status.Components["cache"] = err.Error()
		} else {
			status.Components["cache"] = "ok"
		}
	}

	return status
}

func (c *Catalog) invalidate(ctx context.Context, name string) {
	if c.cache == nil {
		return
	}
	_ = c.cache.InvalidatePrefix(ctx, eventCacheKey(name))
	_ = c.cache.InvalidatePrefix(ctx, eventListCacheKey)
}

func (c *Catalog) invalidateConsumers(ctx context.Context, name string) {
	if c.cache == nil {
		return
	}
	_ = c.cache.InvalidatePrefix(ctx, consumersCacheKey(name))
}
