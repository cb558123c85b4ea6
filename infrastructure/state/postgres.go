package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const bootstrapTableSQL = `CREATE TABLE IF NOT EXISTS fleetcore_state (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBackend is the production PersistenceBackend: a flat key/value
// table behind sqlx/lib/pq, used to durably store SiteStatus, the backup
// registry, and failover history across process restarts.
type PostgresBackend struct {
	db *sqlx.DB
}

// NewPostgresBackend opens a connection pool against dsn. When
// migrationsPath is non-empty, pending golang-migrate migrations under it
// are applied before the backend is returned; otherwise the backend
// bootstraps its own table with a single idempotent DDL statement, which
// is adequate for this single-table schema but not a substitute for
// golang-migrate-managed schema evolution in a multi-table deployment.
func NewPostgresBackend(ctx context.Context, dsn, migrationsPath string) (*PostgresBackend, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if migrationsPath != "" {
		m, err := migrate.New("file://"+migrationsPath, dsn)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open migrations: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	} else if _, err := db.ExecContext(ctx, bootstrapTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap state table: %w", err)
	}

	return &PostgresBackend{db: db}, nil
}

// DB exposes the underlying connection pool so other components (the
// connection pool monitor) can observe its stats without a second driver
// connection.
func (p *PostgresBackend) DB() *sql.DB {
	return p.db.DB
}

func (p *PostgresBackend) Save(ctx context.Context, key string, data []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO fleetcore_state (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, data)
	return err
}

func (p *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.db.GetContext(ctx, &data, `SELECT value FROM fleetcore_state WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM fleetcore_state WHERE key = $1`, key)
	return err
}

func (p *PostgresBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := p.db.SelectContext(ctx, &keys, `SELECT key FROM fleetcore_state WHERE key LIKE $1`, prefix+"%")
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *PostgresBackend) Close(ctx context.Context) error {
	return p.db.Close()
}
