package state

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBackend(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return &PostgresBackend{db: sqlx.NewDb(mockDB, "postgres")}, mock
}

func TestPostgresBackendSaveUpserts(t *testing.T) {
	backend, mock := newMockBackend(t)
	mock.ExpectExec("INSERT INTO fleetcore_state").
		WithArgs("failover:history:abc", []byte("payload")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := backend.Save(context.Background(), "failover:history:abc", []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendLoadNotFound(t *testing.T) {
	backend, mock := newMockBackend(t)
	mock.ExpectQuery("SELECT value FROM fleetcore_state").
		WithArgs("missing-key").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, err := backend.Load(context.Background(), "missing-key")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackendListFiltersByPrefix(t *testing.T) {
	backend, mock := newMockBackend(t)
	mock.ExpectQuery("SELECT key FROM fleetcore_state").
		WithArgs("backup:metadata:%").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).
			AddRow("backup:metadata:1").
			AddRow("backup:metadata:2"))

	keys, err := backend.List(context.Background(), "backup:metadata:")
	require.NoError(t, err)
	assert.Equal(t, []string{"backup:metadata:1", "backup:metadata:2"}, keys)
}
