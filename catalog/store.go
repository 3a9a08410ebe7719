package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/actorsys/runtime/catalog/migrations"
)

// Store is the catalog's persistence port (spec §6 "Catalog persistence").
// PostgresStore is the only production implementation; the interface lets
// catalog.Catalog be unit-tested against an in-memory fake, while
// PostgresStore itself is tested against go-sqlmock without a live DB.
type Store interface {
	EnsureSchema(ctx context.Context) error

	UpsertDefinition(ctx context.Context, def *EventDefinition) error
	GetDefinition(ctx context.Context, name string) (*EventDefinition, error)
	ListDefinitions(ctx context.Context, filter ListFilter) ([]EventDefinition, error)
	InsertAudit(ctx context.Context, eventName, action string, oldValue, newValue any, changedBy string) error

	UpsertConsumer(ctx context.Context, c *EventConsumer) error
	RemoveConsumer(ctx context.Context, eventName, consumerActor string) error
	ListConsumers(ctx context.Context, eventName string) ([]EventConsumer, error)

	InsertMetric(ctx context.Context, m *EventMetric) error
	MetricCounts(ctx context.Context, eventName string, since time.Time) (produced, consumed int64, failureRate float64, err error)

	UpsertManifest(ctx context.Context, m *ActorManifest) error
	GetManifest(ctx context.Context, actorName string) (*ActorManifest, error)

	InsertSchemaVersion(ctx context.Context, v *SchemaVersion) error
	ListSchemaHistory(ctx context.Context, eventName string) ([]SchemaVersion, error)

	ListAllDefinitionNames(ctx context.Context) ([]string, error)
	ListAllConsumerEdges(ctx context.Context) ([]EventConsumer, error)

	Ping(ctx context.Context) error
}

// PostgresStore implements Store over Postgres via sqlx + lib/pq (spec §6).
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing sqlx.DB (so callers can share a pool
// across the catalog and other components).
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a new connection pool for dsn.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema applies the catalog's embedded migrations (§6 tables and
// views) if they don't already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return migrations.Apply(ctx, s.db.DB)
}

func (s *PostgresStore) UpsertDefinition(ctx context.Context, def *EventDefinition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_definitions (name, category, description, payload_schema, producer_actor, version, deprecated, replaced_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (name) DO UPDATE SET
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			payload_schema = EXCLUDED.payload_schema,
			deprecated = EXCLUDED.deprecated,
			replaced_by = EXCLUDED.replaced_by,
			updated_at = now()
	`, def.Name, def.Category, def.Description, def.PayloadSchema, def.ProducerActor, def.Version, def.Deprecated, nullIfEmpty(def.ReplacedBy))
	return err
}

func (s *PostgresStore) GetDefinition(ctx context.Context, name string) (*EventDefinition, error) {
	var def EventDefinition
	var replacedBy sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT name, category, description, payload_schema, producer_actor, version, deprecated, replaced_by, created_at, updated_at
		FROM event_definitions WHERE name = $1
	`, name)
	err := row.Scan(&def.Name, &def.Category, &def.Description, &def.PayloadSchema, &def.ProducerActor, &def.Version, &def.Deprecated, &replacedBy, &def.CreatedAt, &def.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	def.ReplacedBy = replacedBy.String
	return &def, nil
}

func (s *PostgresStore) ListDefinitions(ctx context.Context, filter ListFilter) ([]EventDefinition, error) {
	query := `SELECT name, category, description, payload_schema, producer_actor, version, deprecated, replaced_by, created_at, updated_at FROM event_definitions WHERE 1=1`
	var args []any
	argNum := 1

	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argNum)
		args = append(args, filter.Category)
		argNum++
	}
	if filter.Producer != "" {
		query += fmt.Sprintf(" AND producer_actor = $%d", argNum)
		args = append(args, filter.Producer)
		argNum++
	}
	if filter.Deprecated != nil {
		query += fmt.Sprintf(" AND deprecated = $%d", argNum)
		args = append(args, *filter.Deprecated)
		argNum++
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []EventDefinition
	for rows.Next() {
		var def EventDefinition
		var replacedBy sql.NullString
		if err := rows.Scan(&def.Name, &def.Category, &def.Description, &def.PayloadSchema, &def.ProducerActor, &def.Version, &def.Deprecated, &replacedBy, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, err
		}
		def.ReplacedBy = replacedBy.String
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *PostgresStore) InsertAudit(ctx context.Context, eventName, action string, oldValue, newValue any, changedBy string) error {
	oldJSON, err := json.Marshal(oldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(newValue)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO event_audit_log (event_name, action, old_value, new_value, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, eventName, action, oldJSON, newJSON, nullIfEmpty(changedBy))
	return err
}

func (s *PostgresStore) UpsertConsumer(ctx context.Context, c *EventConsumer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_consumers (event_name, consumer_actor, required, pattern, timeout_ms, filter_expression)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_name, consumer_actor) DO UPDATE SET
			required = EXCLUDED.required,
			pattern = EXCLUDED.pattern,
			timeout_ms = EXCLUDED.timeout_ms,
			filter_expression = EXCLUDED.filter_expression
	`, c.EventName, c.ConsumerActor, c.Required, c.Pattern, nullIfZero(c.TimeoutMs), c.Filter)
	return err
}

func (s *PostgresStore) RemoveConsumer(ctx context.Context, eventName, consumerActor string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_consumers WHERE event_name = $1 AND consumer_actor = $2`, eventName, consumerActor)
	return err
}

func (s *PostgresStore) ListConsumers(ctx context.Context, eventName string) ([]EventConsumer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_name, consumer_actor, required, pattern, timeout_ms, filter_expression
		FROM event_consumers WHERE event_name = $1 ORDER BY consumer_actor
	`, eventName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var consumers []EventConsumer
	for rows.Next() {
		var c EventConsumer
		var timeoutMs sql.NullInt64
		if err := rows.Scan(&c.EventName, &c.ConsumerActor, &c.Required, &c.Pattern, &timeoutMs, &c.Filter); err != nil {
			return nil, err
		}
		c.TimeoutMs = int(timeoutMs.Int64)
		consumers = append(consumers, c)
	}
	return consumers, rows.Err()
}

func (s *PostgresStore) InsertMetric(ctx context.Context, m *EventMetric) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_metrics (event_name, actor_id, direction, success, duration_ms, error_message, correlation_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, m.EventName, m.ActorID, m.Direction, m.Success, m.DurationMs, nullIfEmpty(m.ErrorMessage), nullIfEmpty(m.CorrelationID))
	return err
}

func (s *PostgresStore) MetricCounts(ctx context.Context, eventName string, since time.Time) (produced, consumed int64, failureRate float64, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE direction = 'produced'),
			COUNT(*) FILTER (WHERE direction = 'consumed'),
			COALESCE(AVG(CASE WHEN success THEN 0 ELSE 1 END), 0)
		FROM event_metrics WHERE event_name = $1 AND timestamp > $2
	`, eventName, since)
	err = row.Scan(&produced, &consumed, &failureRate)
	return
}

func (s *PostgresStore) UpsertManifest(ctx context.Context, m *ActorManifest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actor_manifests (actor_name, description, version, produces, consumes, health_endpoint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (actor_name) DO UPDATE SET
			description = EXCLUDED.description,
			version = EXCLUDED.version,
			produces = EXCLUDED.produces,
			consumes = EXCLUDED.consumes,
			health_endpoint = EXCLUDED.health_endpoint,
			updated_at = now()
	`, m.ActorName, m.Description, m.Version, pq.Array(m.Produces), pq.Array(m.Consumes), nullIfEmpty(m.HealthEndpoint))
	return err
}

func (s *PostgresStore) GetManifest(ctx context.Context, actorName string) (*ActorManifest, error) {
	var m ActorManifest
	var healthEndpoint sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT actor_name, description, version, produces, consumes, health_endpoint, created_at, updated_at
		FROM actor_manifests WHERE actor_name = $1
	`, actorName)
	err := row.Scan(&m.ActorName, &m.Description, &m.Version, pq.Array(&m.Produces), pq.Array(&m.Consumes), &healthEndpoint, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.HealthEndpoint = healthEndpoint.String
	return &m, nil
}

func (s *PostgresStore) InsertSchemaVersion(ctx context.Context, v *SchemaVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_schema_versions (event_name, version, payload_schema, migration_script, breaking_change, change_description, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
	`, v.EventName, v.Version, v.PayloadSchema, nullIfEmpty(v.MigrationScript), v.BreakingChange, v.ChangeDescription, nullIfEmpty(v.CreatedBy))
	return err
}

func (s *PostgresStore) ListSchemaHistory(ctx context.Context, eventName string) ([]SchemaVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_name, version, payload_schema, migration_script, breaking_change, change_description, created_at, created_by
		FROM event_schema_versions WHERE event_name = $1 ORDER BY version ASC
	`, eventName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []SchemaVersion
	for rows.Next() {
		var v SchemaVersion
		var migrationScript, createdBy sql.NullString
		if err := rows.Scan(&v.ID, &v.EventName, &v.Version, &v.PayloadSchema, &migrationScript, &v.BreakingChange, &v.ChangeDescription, &v.CreatedAt, &createdBy); err != nil {
			return nil, err
		}
		v.MigrationScript = migrationScript.String
		v.CreatedBy = createdBy.String
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) ListAllDefinitionNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM event_definitions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) ListAllConsumerEdges(ctx context.Context) ([]EventConsumer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_name, consumer_actor, required, pattern, timeout_ms, filter_expression
		FROM event_consumers ORDER BY event_name, consumer_actor
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []EventConsumer
	for rows.Next() {
		var c EventConsumer
		var timeoutMs sql.NullInt64
		if err := rows.Scan(&c.EventName, &c.ConsumerActor, &c.Required, &c.Pattern, &timeoutMs, &c.Filter); err != nil {
			return nil, err
		}
		c.TimeoutMs = int(timeoutMs.Int64)
		edges = append(edges, c)
	}
	return edges, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIfZero(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
