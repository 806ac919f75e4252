package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryPoint struct {
	id         string
	vector     []float32
	documentID string
	chunkIndex int
	text       string
}

// MemoryIndex keeps points in process memory. It backs tests and
// single-node development setups.
type MemoryIndex struct {
	dim int

	mu          sync.RWMutex
	collections map[string][]memoryPoint
}

func NewMemoryIndex(dim int) *MemoryIndex {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &MemoryIndex{
		dim:         dim,
		collections: make(map[string][]memoryPoint),
	}
}

func (m *MemoryIndex) EnsureCollection(_ context.Context, c Collection) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[c.Name()]; !ok {
		m.collections[c.Name()] = nil
	}
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, c Collection, documentID string, chunks []string, embeddings [][]float32) error {
	if err := checkUpsert(c, chunks, embeddings, m.dim); err != nil {
		return err
	}
	if err := m.EnsureCollection(ctx, c); err != nil {
		return err
	}

	points := make([]memoryPoint, len(chunks))
	for i := range chunks {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		points[i] = memoryPoint{
			id:         uuid.NewString(),
			vector:     vec,
			documentID: documentID,
			chunkIndex: i,
			text:       chunks[i],
		}
	}

	m.mu.Lock()
	m.collections[c.Name()] = append(m.collections[c.Name()], points...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, c Collection, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("query dimension %d, want %d", len(query), m.dim)
	}

	var allowed map[string]struct{}
	if len(opts.DocumentIDs) > 0 {
		allowed = make(map[string]struct{}, len(opts.DocumentIDs))
		for _, id := range opts.DocumentIDs {
			allowed[id] = struct{}{}
		}
	}

	m.mu.RLock()
	points := m.collections[c.Name()]
	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		if allowed != nil {
			if _, ok := allowed[p.documentID]; !ok {
				continue
			}
		}
		results = append(results, SearchResult{
			Score:      cosine(query, p.vector),
			DocumentID: p.documentID,
			ChunkIndex: p.chunkIndex,
			Text:       p.text,
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k := topK(opts); len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryIndex) DeleteByDocument(_ context.Context, c Collection, documentID string) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	points, ok := m.collections[c.Name()]
	if !ok {
		return nil
	}
	kept := points[:0]
	for _, p := range points {
		if p.documentID != documentID {
			kept = append(kept, p)
		}
	}
	m.collections[c.Name()] = kept
	return nil
}

func (m *MemoryIndex) DeleteCollection(_ context.Context, c Collection) error {
	m.mu.Lock()
	delete(m.collections, c.Name())
	m.mu.Unlock()
	return nil
}

// Count reports the number of points stored in c.
func (m *MemoryIndex) Count(c Collection) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[c.Name()])
}

func (m *MemoryIndex) Ping(context.Context) error { return nil }
func (m *MemoryIndex) Close() error               { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
