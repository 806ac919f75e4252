package vectorindex

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(dim int, hot ...int) []float32 {
	v := make([]float32, dim)
	for _, i := range hot {
		v[i] = 1
	}
	return v
}

func TestCollectionFor(t *testing.T) {
	a := CollectionFor("8d1f-aa")
	assert.Equal(t, a, CollectionFor("8d1f-aa"))
	assert.NotEqual(t, a.Name(), CollectionFor("8d1f_aa").Name())
	assert.Equal(t, "8d1f-aa", a.TenantID())
	assert.True(t, a.Valid())
	assert.False(t, Collection{}.Valid())
}

func TestMemorySearchMissingCollection(t *testing.T) {
	idx := NewMemoryIndex(4)
	results, err := idx.Search(context.Background(), CollectionFor("nobody"), vec(4, 0), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, idx.DeleteByDocument(context.Background(), CollectionFor("nobody"), "doc"))
}

func TestMemoryUpsertAndSearchOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)
	c := CollectionFor("t1")

	require.NoError(t, idx.Upsert(ctx, c, "doc-1",
		[]string{"alpha", "beta", "gamma"},
		[][]float32{vec(4, 0), vec(4, 1), vec(4, 0, 1)},
	))

	results, err := idx.Search(ctx, c, vec(4, 0), SearchOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Text)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, "gamma", results[1].Text)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryUpsertLengthMismatch(t *testing.T) {
	idx := NewMemoryIndex(4)
	err := idx.Upsert(context.Background(), CollectionFor("t1"), "d", []string{"a", "b"}, [][]float32{vec(4, 0)})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestMemoryDocumentFilter(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)
	c := CollectionFor("t1")

	require.NoError(t, idx.Upsert(ctx, c, "doc-1", []string{"one"}, [][]float32{vec(4, 2)}))
	require.NoError(t, idx.Upsert(ctx, c, "doc-2", []string{"two", "two-b"}, [][]float32{vec(4, 0), vec(4, 0)}))
	require.NoError(t, idx.Upsert(ctx, c, "doc-3", []string{"three"}, [][]float32{vec(4, 0)}))

	results, err := idx.Search(ctx, c, vec(4, 0), SearchOptions{DocumentIDs: []string{"doc-1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocumentID)

	results, err = idx.Search(ctx, c, vec(4, 0), SearchOptions{DocumentIDs: []string{"doc-1", "doc-3"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, []string{"doc-1", "doc-3"}, r.DocumentID)
	}
}

func TestMemoryTenantIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)

	require.NoError(t, idx.Upsert(ctx, CollectionFor("t1"), "doc", []string{"secret"}, [][]float32{vec(4, 0)}))

	results, err := idx.Search(ctx, CollectionFor("t2"), vec(4, 0), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryDeleteByDocumentAndCollection(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)
	c := CollectionFor("t1")

	require.NoError(t, idx.Upsert(ctx, c, "doc-1", []string{"a", "b"}, [][]float32{vec(4, 0), vec(4, 1)}))
	require.NoError(t, idx.Upsert(ctx, c, "doc-2", []string{"c"}, [][]float32{vec(4, 2)}))

	require.NoError(t, idx.DeleteByDocument(ctx, c, "doc-1"))
	assert.Equal(t, 1, idx.Count(c))

	require.NoError(t, idx.DeleteCollection(ctx, c))
	require.NoError(t, idx.DeleteCollection(ctx, c))
	assert.Equal(t, 0, idx.Count(c))
}

func TestMemoryConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(4)
	c := CollectionFor("t1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, idx.EnsureCollection(ctx, c))
			assert.NoError(t, idx.Upsert(ctx, c, "doc", []string{"x"}, [][]float32{vec(4, 3)}))
			_, err := idx.Search(ctx, c, vec(4, 3), SearchOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, idx.Count(c))
}
