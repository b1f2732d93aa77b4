// Package postgres provides a [speaker.Store] backed by PostgreSQL with the
// pgvector extension. It is the multi-host alternative to the default JSON
// file store: the wholesale load/replace contract is identical, but profiles
// live in a shared database so several assistant hosts can serve the same
// household.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxenlabs/voxen/internal/speaker"
)

// Ensure Store implements speaker.Store at compile time.
var _ speaker.Store = (*Store)(nil)

// Store is a PostgreSQL-backed enrolled-speaker store. All operations are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the database at dsn,
// registers pgvector types on every connection, and ensures the speakers
// table exists.
//
// embeddingDimensions must match the output dimension of the embedding model
// producing [speaker.Profile.Embedding] values. Changing it after the first
// migration requires a manual schema change.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("speaker postgres: parse dsn: %w", err)
	}

	// Register pgvector types so embedding columns can be scanned into and
	// inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("speaker postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("speaker postgres: ping: %w", err)
	}

	if err := migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("speaker postgres: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// migrate creates the vector extension and the speakers table when missing.
func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS speakers (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			embedding     vector(%d) NOT NULL,
			model_version TEXT NOT NULL DEFAULT '',
			threshold     DOUBLE PRECISION NOT NULL DEFAULT 0,
			enrolled_at   TIMESTAMPTZ NOT NULL,
			command_count INTEGER NOT NULL DEFAULT 0,
			last_seen     TIMESTAMPTZ
		)`, dims)
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create speakers table: %w", err)
	}
	return nil
}

// Load implements [speaker.Store].
func (s *Store) Load(ctx context.Context) ([]speaker.Profile, error) {
	const q = `
		SELECT id, name, embedding, model_version, threshold,
		       enrolled_at, command_count, last_seen
		FROM speakers
		ORDER BY enrolled_at`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("speaker postgres: load: %w", err)
	}
	defer rows.Close()

	profiles := []speaker.Profile{}
	for rows.Next() {
		var (
			p    speaker.Profile
			vec  pgvector.Vector
			last *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Name, &vec, &p.ModelVersion, &p.Threshold,
			&p.EnrolledAt, &p.CommandCount, &last); err != nil {
			return nil, fmt.Errorf("speaker postgres: scan profile: %w", err)
		}
		p.Embedding = vec.Slice()
		if last != nil {
			p.LastSeen = *last
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("speaker postgres: load: %w", err)
	}
	return profiles, nil
}

// Replace implements [speaker.Store]. The whole collection is rewritten in a
// single transaction, so concurrent readers see either the previous or the
// next collection, never a mix.
func (s *Store) Replace(ctx context.Context, profiles []speaker.Profile) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("speaker postgres: begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM speakers`); err != nil {
		return fmt.Errorf("speaker postgres: clear collection: %w", err)
	}

	const q = `
		INSERT INTO speakers
		    (id, name, embedding, model_version, threshold, enrolled_at, command_count, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, p := range profiles {
		var last any
		if !p.LastSeen.IsZero() {
			last = p.LastSeen
		}
		if _, err := tx.Exec(ctx, q,
			p.ID, p.Name, pgvector.NewVector(p.Embedding), p.ModelVersion,
			p.Threshold, p.EnrolledAt, p.CommandCount, last,
		); err != nil {
			return fmt.Errorf("speaker postgres: insert profile %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("speaker postgres: commit replace: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
