package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"docuquery/internal/model"
	"docuquery/internal/repository"
	"docuquery/internal/vectorindex"
)

const testDim = 4

var errBoom = errors.New("boom")

func nullLogger() logrus.FieldLogger {
	l, _ := logtest.NewNullLogger()
	return l
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Organization{}, &model.User{}, &model.Document{}))
	return db
}

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeEmbedder) vector() []float32 {
	return []float32{1, 1, 1, 1}
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector()
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return testDim }

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingIndex wraps the in-memory index with call counters and injectable
// failures.
type countingIndex struct {
	*vectorindex.MemoryIndex

	mu        sync.Mutex
	searches  int
	deletes   int
	upsertErr error
	searchErr error
	deleteErr error
	lastOpts  vectorindex.SearchOptions
}

func newCountingIndex() *countingIndex {
	return &countingIndex{MemoryIndex: vectorindex.NewMemoryIndex(testDim)}
}

func (c *countingIndex) Upsert(ctx context.Context, col vectorindex.Collection, documentID string, chunks []string, embeddings [][]float32) error {
	if c.upsertErr != nil {
		return c.upsertErr
	}
	return c.MemoryIndex.Upsert(ctx, col, documentID, chunks, embeddings)
}

func (c *countingIndex) Search(ctx context.Context, col vectorindex.Collection, query []float32, opts vectorindex.SearchOptions) ([]vectorindex.SearchResult, error) {
	c.mu.Lock()
	c.searches++
	c.lastOpts = opts
	c.mu.Unlock()
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	return c.MemoryIndex.Search(ctx, col, query, opts)
}

func (c *countingIndex) DeleteByDocument(ctx context.Context, col vectorindex.Collection, documentID string) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.MemoryIndex.DeleteByDocument(ctx, col, documentID)
}

func (c *countingIndex) seed(t *testing.T, tenantID, documentID string, chunks ...string) {
	t.Helper()
	vecs := make([][]float32, len(chunks))
	for i := range chunks {
		vecs[i] = []float32{1, 1, 1, 1}
	}
	require.NoError(t, c.MemoryIndex.Upsert(context.Background(), vectorindex.CollectionFor(tenantID), documentID, chunks, vecs))
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	chunks []string
	answer string
	err    error
	block  bool
}

func (f *fakeGenerator) Generate(ctx context.Context, chunks []string, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.chunks = append([]string(nil), chunks...)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// fakeCache round-trips payloads through JSON the way the Redis cache does.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	puts    int
	getErr  error
	putErr  error
	lastTTL time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, tenantID, question string, out any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return false, f.getErr
	}
	raw, ok := f.entries[tenantID+"|"+question]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (f *fakeCache) Put(_ context.Context, tenantID, question string, payload any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.lastTTL = ttl
	if f.putErr != nil {
		return f.putErr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.entries[tenantID+"|"+question] = raw
	return nil
}

type fakeDocs struct {
	mu      sync.Mutex
	docs    map[string]*model.Document
	findErr error
}

func newFakeDocs(docs ...*model.Document) *fakeDocs {
	f := &fakeDocs{docs: make(map[string]*model.Document)}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *fakeDocs) FindByID(_ context.Context, id string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) UpdateStatusFields(_ context.Context, id string, u repository.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil
	}
	d.Status = u.Status
	d.ChunksCount = u.ChunksCount
	d.ErrorMessage = u.ErrorMessage
	d.ProcessedAt = u.ProcessedAt
	return nil
}

func (f *fakeDocs) ClaimForProcessing(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.Status != model.DocumentQueued {
		return false, nil
	}
	d.Status = model.DocumentProcessing
	return true, nil
}

func (f *fakeDocs) ClaimForReprocess(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok || d.Status == model.DocumentProcessing {
		return false, nil
	}
	d.Status = model.DocumentProcessing
	d.ChunksCount = 0
	d.ErrorMessage = nil
	d.ProcessedAt = nil
	return true, nil
}

func (f *fakeDocs) ListIDsByStatus(_ context.Context, status model.DocumentStatus) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, d := range f.docs {
		if d.Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeDocs) get(id string) model.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[id]
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	texts map[string]string
	errs  map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	return f.texts[key], nil
}

type fakePublisher struct {
	mu   sync.Mutex
	jobs []model.DocumentJob
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, job model.DocumentJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}
