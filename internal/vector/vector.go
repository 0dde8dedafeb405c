// Package vector provides the durable nearest-neighbor store for
// conversation turns, keyed by exact-match metadata filters.
//
// Two backends implement Index: a Chroma collection-API client (the
// default, matching the deployed vector service) and a PostgreSQL
// pgvector store. Both rank by cosine similarity.
package vector

import "context"

// Record is one stored vector with its source document and metadata.
// Its ID equals the ID of the conversation turn that produced it.
type Record struct {
	ID       string
	Document string
	Vector   []float32
	Metadata map[string]string
}

// Index is a nearest-neighbor store.
//
// Query returns at most k records nearest to vec under cosine
// similarity, nearest first. The filter is an exact-match metadata
// predicate applied before or as part of ranking, so a record never
// leaks across filter boundaries (per-user isolation relies on this).
// Fewer than k matching records yield all of them, never padded with
// unrelated results; an empty index yields an empty slice, not an
// error.
//
// List returns the ids of every record matching the filter, for
// reconciliation against the relational log.
type Index interface {
	Upsert(ctx context.Context, rec Record) error
	Query(ctx context.Context, vec []float32, filter map[string]string, k int) ([]Record, error)
	List(ctx context.Context, filter map[string]string) ([]string, error)
}
