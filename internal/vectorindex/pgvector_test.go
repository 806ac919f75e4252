package vectorindex

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPGVectorIndexRejectsTableName(t *testing.T) {
	for _, table := range []string{"points; DROP TABLE x", "1points", "vector-points"} {
		_, err := NewPGVectorIndex(context.Background(), "postgres://localhost/none", table, 4)
		assert.Error(t, err, table)
	}
}

func TestSearchQuery(t *testing.T) {
	c := CollectionFor("t1")

	sql, args := searchQuery("vector_points", c, []float32{1, 0}, SearchOptions{})
	assert.Contains(t, sql, "FROM vector_points")
	assert.NotContains(t, sql, "ANY($4)")
	require.Len(t, args, 3)
	assert.Equal(t, pgvector.NewVector([]float32{1, 0}), args[0])
	assert.Equal(t, "tenant_t1", args[1])
	assert.Equal(t, DefaultTopK, args[2])

	sql, args = searchQuery("vector_points", c, []float32{1, 0}, SearchOptions{TopK: 3, DocumentIDs: []string{"doc-1", "doc-2"}})
	assert.Contains(t, sql, "AND document_id = ANY($4)")
	require.Len(t, args, 4)
	assert.Equal(t, 3, args[2])
	assert.Equal(t, []string{"doc-1", "doc-2"}, args[3])
}

// newPGVectorTestIndex needs a Postgres with the vector extension available.
func newPGVectorTestIndex(t *testing.T) *PGVectorIndex {
	t.Helper()
	dsn := os.Getenv("DOCUQUERY_TEST_PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("DOCUQUERY_TEST_PGVECTOR_DSN not set")
	}
	table := fmt.Sprintf("vector_points_test_%d", time.Now().UnixNano())
	idx, err := NewPGVectorIndex(context.Background(), dsn, table, 4)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = idx.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
		_ = idx.Close()
	})
	return idx
}

func TestPGVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := newPGVectorTestIndex(t)
	c := CollectionFor("t1")

	results, err := idx.Search(ctx, c, vec(4, 0), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, idx.Upsert(ctx, c, "doc-1", []string{"alpha", "beta"}, [][]float32{vec(4, 0), vec(4, 1)}))
	require.NoError(t, idx.Upsert(ctx, c, "doc-2", []string{"gamma"}, [][]float32{vec(4, 0, 1)}))
	require.NoError(t, idx.Upsert(ctx, CollectionFor("t2"), "doc-9", []string{"other"}, [][]float32{vec(4, 0)}))

	results, err = idx.Search(ctx, c, vec(4, 0), SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "alpha", results[0].Text)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		assert.False(t, strings.HasPrefix(results[i].DocumentID, "doc-9"))
	}

	results, err = idx.Search(ctx, c, vec(4, 0), SearchOptions{DocumentIDs: []string{"doc-2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].DocumentID)

	require.NoError(t, idx.DeleteByDocument(ctx, c, "doc-1"))
	results, err = idx.Search(ctx, c, vec(4, 0), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, idx.DeleteCollection(ctx, c))
	results, err = idx.Search(ctx, c, vec(4, 0), SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
