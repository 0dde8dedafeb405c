package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Pgvector is an Index backed by PostgreSQL with the pgvector
// extension. Ranking uses the cosine distance operator (<=>).
//
// Pgvector is safe for concurrent use by multiple goroutines.
type Pgvector struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgvector connects to PostgreSQL and ensures the vector schema
// exists. dims fixes the embedding column dimensionality and must
// match the embedder's declared output.
func NewPgvector(ctx context.Context, connString string, dims int, logger *slog.Logger) (*Pgvector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	p := &Pgvector{pool: pool, logger: logger}
	if err := p.ensureSchema(ctx, dims); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pgvector) ensureSchema(ctx context.Context, dims int) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS turn_vectors (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dims),
		"CREATE INDEX IF NOT EXISTS idx_turn_vectors_metadata ON turn_vectors USING gin (metadata)",
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring vector schema: %w", err)
		}
	}
	return nil
}

// Upsert inserts or replaces the record, idempotent by id.
func (p *Pgvector) Upsert(ctx context.Context, rec Record) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO turn_vectors (id, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
		rec.ID, rec.Document, pgvector.NewVector(rec.Vector), metadata,
	)
	if err != nil {
		return fmt.Errorf("upserting record %q: %w", rec.ID, err)
	}

	p.logger.Debug("upserted vector record", "id", rec.ID)
	return nil
}

// Query returns at most k records matching the filter, nearest first
// by cosine distance.
func (p *Pgvector) Query(ctx context.Context, vec []float32, filter map[string]string, k int) ([]Record, error) {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, content, metadata
		 FROM turn_vectors
		 WHERE metadata @> $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		filterJSON, pgvector.NewVector(vec), k,
	)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec      Record
			metadata []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Document, &metadata); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			p.logger.Warn("failed to parse metadata", "id", rec.ID, "error", err)
			rec.Metadata = map[string]string{}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// List returns the ids of all records matching the filter.
func (p *Pgvector) List(ctx context.Context, filter map[string]string) ([]string, error) {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshaling filter: %w", err)
	}

	rows, err := p.pool.Query(ctx, "SELECT id FROM turn_vectors WHERE metadata @> $1", filterJSON)
	if err != nil {
		return nil, fmt.Errorf("listing index ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

// Close releases the connection pool.
func (p *Pgvector) Close() {
	p.pool.Close()
}
