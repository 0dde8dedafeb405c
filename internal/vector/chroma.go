package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// chromaTimeout caps a single vector service call.
const chromaTimeout = 10 * time.Second

// Chroma is an Index backed by a Chroma collection over its HTTP API.
// The collection is resolved get-or-create by name at construction,
// with cosine as the similarity space.
//
// Chroma is safe for concurrent use by multiple goroutines.
type Chroma struct {
	baseURL      string
	collectionID string
	client       *http.Client
	logger       *slog.Logger
}

// ChromaConfig contains the parameters for a Chroma index.
type ChromaConfig struct {
	// BaseURL of the Chroma server, e.g. http://localhost:8888.
	BaseURL string
	// Collection name, resolved get-or-create.
	Collection string
	// HTTPClient overrides the default client (nil = 10s timeout client).
	HTTPClient *http.Client
	// Logger (nil = slog.Default()).
	Logger *slog.Logger
}

// collection mirrors the Chroma collection resource.
type collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewChroma connects to the Chroma server and resolves the collection.
func NewChroma(ctx context.Context, cfg ChromaConfig) (*Chroma, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: chromaTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Chroma{baseURL: cfg.BaseURL, client: client, logger: logger}

	col, err := c.getOrCreateCollection(ctx, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("resolving collection %q: %w", cfg.Collection, err)
	}
	c.collectionID = col.ID

	logger.Debug("connected to vector index", "collection", col.Name, "id", col.ID)
	return c, nil
}

func (c *Chroma) getOrCreateCollection(ctx context.Context, name string) (collection, error) {
	var col collection
	err := c.do(ctx, http.MethodPost, "/api/v1/collections", map[string]any{
		"name":          name,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
		"get_or_create": true,
	}, &col)
	return col, err
}

// Upsert inserts or replaces the record, idempotent by id.
func (c *Chroma) Upsert(ctx context.Context, rec Record) error {
	path := fmt.Sprintf("/api/v1/collections/%s/upsert", c.collectionID)
	err := c.do(ctx, http.MethodPost, path, map[string]any{
		"ids":        []string{rec.ID},
		"embeddings": [][]float32{rec.Vector},
		"documents":  []string{rec.Document},
		"metadatas":  []map[string]string{rec.Metadata},
	}, nil)
	if err != nil {
		return fmt.Errorf("upserting record %q: %w", rec.ID, err)
	}
	return nil
}

// queryResponse mirrors the Chroma query result shape: one inner slice
// per query embedding.
type queryResponse struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]string            `json:"documents"`
	Metadatas [][]map[string]string `json:"metadatas"`
	Distances [][]float64           `json:"distances"`
}

// Query returns at most k records matching the filter, nearest first.
func (c *Chroma) Query(ctx context.Context, vec []float32, filter map[string]string, k int) ([]Record, error) {
	body := map[string]any{
		"query_embeddings": [][]float32{vec},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(filter) > 0 {
		body["where"] = filter
	}

	var out queryResponse
	path := fmt.Sprintf("/api/v1/collections/%s/query", c.collectionID)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	if len(out.IDs) == 0 {
		return []Record{}, nil
	}

	records := make([]Record, 0, len(out.IDs[0]))
	for i, id := range out.IDs[0] {
		rec := Record{ID: id}
		if len(out.Documents) > 0 && i < len(out.Documents[0]) {
			rec.Document = out.Documents[0][i]
		}
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) {
			rec.Metadata = out.Metadatas[0][i]
		}
		records = append(records, rec)
	}
	return records, nil
}

// getResponse mirrors the Chroma get result shape.
type getResponse struct {
	IDs []string `json:"ids"`
}

// List returns the ids of all records matching the filter.
func (c *Chroma) List(ctx context.Context, filter map[string]string) ([]string, error) {
	body := map[string]any{"include": []string{}}
	if len(filter) > 0 {
		body["where"] = filter
	}

	var out getResponse
	path := fmt.Sprintf("/api/v1/collections/%s/get", c.collectionID)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("listing index ids: %w", err)
	}
	return out.IDs, nil
}

// do executes one JSON request against the Chroma API, decoding the
// response into out when non-nil.
func (c *Chroma) do(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling vector service: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vector service returned HTTP %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
