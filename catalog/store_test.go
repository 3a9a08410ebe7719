package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewPostgresStore(sqlxDB), mock
}

func TestPostgresStore_UpsertDefinition(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO event_definitions").
		WithArgs("SEND_MAGIC_LINK", CategoryCommand, "", []byte("{}"), "auth", 1, false, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.UpsertDefinition(context.Background(), &EventDefinition{
		Name: "SEND_MAGIC_LINK", Category: CategoryCommand, ProducerActor: "auth",
		Version: 1, PayloadSchema: []byte("{}"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDefinition_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT name, category").
		WithArgs("UNKNOWN_EVENT").
		WillReturnError(sql.ErrNoRows)

	def, err := store.GetDefinition(context.Background(), "UNKNOWN_EVENT")
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestPostgresStore_InsertMetric(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO event_metrics").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.InsertMetric(context.Background(), &EventMetric{
		EventName: "SEND_MAGIC_LINK", ActorID: "auth", Direction: DirectionProduced,
		Success: true, DurationMs: 12, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectPing()

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
