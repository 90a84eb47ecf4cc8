package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgvectorStore persists documents in PostgreSQL with the vector
// extension. Similarity search runs in the database via the cosine
// distance operator.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
}

var _ Store = (*PgvectorStore)(nil)

// PgvectorConfig configures a PgvectorStore.
type PgvectorConfig struct {
	DSN        string
	Table      string
	Dimensions int
	// MigrateOnStart creates the extension and table when true.
	MigrateOnStart bool
}

func (c *PgvectorConfig) defaults() {
	if c.Table == "" {
		c.Table = "documents"
	}
}

// NewPgvector connects to PostgreSQL and optionally applies the schema.
func NewPgvector(ctx context.Context, cfg PgvectorConfig) (*PgvectorStore, error) {
	cfg.defaults()
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("pgvector: dimensions must be positive, got %d", cfg.Dimensions)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &PgvectorStore{pool: pool, table: cfg.Table, dimensions: cfg.Dimensions}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, s.dimensions),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Add upserts documents in a single transaction.
func (s *PgvectorStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.table)

	for i := range docs {
		EnsureID(&docs[i])
		if len(docs[i].Vector) != s.dimensions {
			return fmt.Errorf("document %s has %d dimensions, store expects %d",
				docs[i].ID, len(docs[i].Vector), s.dimensions)
		}
		if _, err := tx.Exec(ctx, query,
			docs[i].ID, docs[i].Content, docs[i].Metadata, vectorLiteral(docs[i].Vector),
		); err != nil {
			return fmt.Errorf("inserting document %s: %w", docs[i].ID, err)
		}
	}
	return tx.Commit(ctx)
}

// Search orders by cosine distance in the database. The score reported is
// 1 - distance, so higher means closer.
func (s *PgvectorStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, s.table)

	rows, err := s.pool.Query(ctx, query, vectorLiteral(vector), k)
	if err != nil {
		return nil, fmt.Errorf("querying similar documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Document.ID, &m.Document.Content, &m.Document.Metadata, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Delete removes documents by ID.
func (s *PgvectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders a float32 slice in pgvector text format: [0.1,0.2].
func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%g", val)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
