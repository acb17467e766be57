package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateDocuments = `
        CREATE TABLE IF NOT EXISTS documents (
            key TEXT PRIMARY KEY,
            body JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlSelectDocument = `SELECT body FROM documents WHERE key = $1;`
	sqlUpsertDocument = `
        INSERT INTO documents (key, body, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (key) DO UPDATE SET
            body = EXCLUDED.body,
            updated_at = EXCLUDED.updated_at;
    `
)

// PostgresStore keeps documents as JSONB rows in a "documents" table.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// OpenPostgres connects a pgx pool and prepares the schema.
func OpenPostgres(ctx context.Context, url string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore verifies the connection and ensures the documents table exists.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateDocuments); err != nil {
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("store.postgres")}, nil
}

// Load fetches the document body for key.
func (s *PostgresStore) Load(ctx context.Context, key string, v interface{}) error {
	var body []byte
	err := s.pool.QueryRow(ctx, sqlSelectDocument, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("%w: query %q: %w", ErrPersistence, key, err)
	}
	return decode(key, body, v)
}

// Save upserts the document body for key.
func (s *PostgresStore) Save(ctx context.Context, key string, v interface{}) error {
	body, err := encode(key, v)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertDocument, key, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: upsert %q: %w", ErrPersistence, key, err)
	}
	s.log.Debug("Document saved.", zap.String("key", key), zap.Int("bytes", len(body)))
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
