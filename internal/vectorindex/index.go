// Package vectorindex stores chunk embeddings in per-tenant collections and
// answers similarity queries against them.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultDimension = 384
	DefaultTopK      = 5
)

var ErrLengthMismatch = errors.New("chunks and embeddings length mismatch")

// Collection identifies one tenant's partition of the index. The zero value
// is invalid; obtain one with CollectionFor.
type Collection struct {
	tenantID string
	name     string
}

// CollectionFor maps a tenant to its collection. The mapping is stable and
// injective: distinct tenants never share a collection.
func CollectionFor(tenantID string) Collection {
	return Collection{
		tenantID: tenantID,
		name:     "tenant_" + tenantID,
	}
}

func (c Collection) TenantID() string { return c.tenantID }
func (c Collection) Name() string     { return c.name }
func (c Collection) Valid() bool      { return c.tenantID != "" }

func (c Collection) String() string { return c.name }

type SearchOptions struct {
	TopK int
	// DocumentIDs restricts results to these documents when non-empty.
	DocumentIDs []string
}

type SearchResult struct {
	Score      float32 `json:"score"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
}

// Index is implemented by every vector backend. Searching or deleting from a
// collection that was never created is not an error.
type Index interface {
	EnsureCollection(ctx context.Context, c Collection) error
	Upsert(ctx context.Context, c Collection, documentID string, chunks []string, embeddings [][]float32) error
	Search(ctx context.Context, c Collection, query []float32, opts SearchOptions) ([]SearchResult, error)
	DeleteByDocument(ctx context.Context, c Collection, documentID string) error
	DeleteCollection(ctx context.Context, c Collection) error
	Ping(ctx context.Context) error
	Close() error
}

func checkCollection(c Collection) error {
	if !c.Valid() {
		return errors.New("invalid vector collection")
	}
	return nil
}

func checkUpsert(c Collection, chunks []string, embeddings [][]float32, dim int) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings", ErrLengthMismatch, len(chunks), len(embeddings))
	}
	for i, e := range embeddings {
		if len(e) != dim {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(e), dim)
		}
	}
	return nil
}

func topK(opts SearchOptions) int {
	if opts.TopK <= 0 {
		return DefaultTopK
	}
	return opts.TopK
}
