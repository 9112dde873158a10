// Package pgvector stores image records in Postgres with the pgvector extension.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/vecsight/internal/domain"
	"github.com/kailas-cloud/vecsight/internal/domain/record"
)

const uniqueViolation = pq.ErrorCode("23505")

// Repo implements usecase/search.VectorStore on a Postgres table.
type Repo struct {
	db        *sql.DB
	table     string // quoted identifier
	rawTable  string
	dimension int
}

// Open connects to Postgres through lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpenConns > 0 {
		conn.SetMaxOpenConns(maxOpenConns)
		conn.SetMaxIdleConns(maxOpenConns)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close() //nolint:errcheck // connection never became usable
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

// New creates a pgvector repository over table.
func New(db *sql.DB, table string, dimension int) *Repo {
	return &Repo{db: db, table: pq.QuoteIdentifier(table), rawTable: table, dimension: dimension}
}

// EnsureSchema creates the extension, table and indexes if absent, then checks
// that the embedding column matches the configured dimension.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL NOT NULL,
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			content_ref TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			embedding vector(%d) NOT NULL
		)`, r.table, r.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pq.QuoteIdentifier(r.rawTable+"_embedding_idx"), r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (category)`,
			pq.QuoteIdentifier(r.rawTable+"_category_idx"), r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return r.CheckDimension(ctx)
}

// CheckDimension compares the declared vector(D) of the embedding column with
// the configured dimension.
func (r *Repo) CheckDimension(ctx context.Context) error {
	var dim int
	err := r.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding' AND NOT attisdropped`,
		r.rawTable,
	).Scan(&dim)
	if err != nil {
		return fmt.Errorf("inspect embedding column: %w", err)
	}
	if dim != r.dimension {
		return fmt.Errorf("%w: table %s declares vector(%d), extractor produces %d",
			domain.ErrDimensionMismatch, r.rawTable, dim, r.dimension)
	}
	return nil
}

// Ping checks database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Insert stores a new record. The primary key rejects duplicate ids.
func (r *Repo) Insert(ctx context.Context, rec record.Record) error {
	if got := rec.Embedding().Dim(); got != r.dimension {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, got, r.dimension)
	}

	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, category, content_ref, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5)`, r.table),
		rec.ID(), rec.Category(), rec.ContentRef(), rec.CreatedAt(),
		pgvector.NewVector(rec.Embedding().Values()),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateID, rec.ID())
		}
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// Query returns up to k nearest records by cosine distance (<=>); score = 1 - distance.
func (r *Repo) Query(
	ctx context.Context, emb domain.Embedding, k int, category string,
) ([]record.Candidate, error) {
	if got := emb.Dim(); got != r.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, got, r.dimension)
	}

	vec := pgvector.NewVector(emb.Values())
	var (
		rows *sql.Rows
		err  error
	)
	if category == "" {
		rows, err = r.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT seq, id, category, content_ref, embedding, 1 - (embedding <=> $1) AS score
			FROM %s
			ORDER BY embedding <=> $1, seq
			LIMIT $2`, r.table), vec, k)
	} else {
		rows, err = r.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT seq, id, category, content_ref, embedding, 1 - (embedding <=> $1) AS score
			FROM %s
			WHERE category = $3
			ORDER BY embedding <=> $1, seq
			LIMIT $2`, r.table), vec, k, category)
	}
	if err != nil {
		return nil, fmt.Errorf("nearest images: %w", err)
	}
	defer rows.Close()

	out := make([]record.Candidate, 0, k)
	for rows.Next() {
		var (
			c      record.Candidate
			stored pgvector.Vector
		)
		if err := rows.Scan(&c.Seq, &c.ID, &c.Category, &c.ContentRef, &stored, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if v := stored.Slice(); len(v) == r.dimension {
			c.Embedding = domain.ReconstructEmbedding(v)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest: %w", err)
	}
	return out, nil
}

// Get returns a stored record by id.
func (r *Repo) Get(ctx context.Context, id string) (record.Record, error) {
	var (
		seq                  int64
		category, contentRef string
		createdAt            time.Time
		stored               pgvector.Vector
	)
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT seq, category, content_ref, created_at, embedding
		FROM %s WHERE id = $1`, r.table), id,
	).Scan(&seq, &category, &contentRef, &createdAt, &stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Record{}, domain.ErrNotFound
		}
		return record.Record{}, fmt.Errorf("get image: %w", err)
	}
	return record.Reconstruct(id, category, contentRef,
		domain.ReconstructEmbedding(stored.Slice()), createdAt.UTC(), seq), nil
}

// Stats counts all records and the records of each given category.
func (r *Repo) Stats(ctx context.Context, categories []string) (record.Stats, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT category, count(*) FROM %s GROUP BY category`, r.table))
	if err != nil {
		return record.Stats{}, fmt.Errorf("count images: %w", err)
	}
	defer rows.Close()

	stats := record.Stats{Categories: make(map[string]int, len(categories))}
	for _, c := range categories {
		stats.Categories[c] = 0
	}
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return record.Stats{}, fmt.Errorf("scan count: %w", err)
		}
		stats.Total += n
		if _, ok := stats.Categories[category]; ok {
			stats.Categories[category] = n
		}
	}
	if err := rows.Err(); err != nil {
		return record.Stats{}, fmt.Errorf("iterating counts: %w", err)
	}
	return stats, nil
}
