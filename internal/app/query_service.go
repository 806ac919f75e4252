package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"docuquery/internal/embedding"
	"docuquery/internal/llm"
	"docuquery/internal/metrics"
	"docuquery/internal/vectorindex"
)

const (
	NoResultsAnswer = "No relevant documents found. Please upload documents first."
	degradedPrefix  = "LLM unavailable. Here are the most relevant chunks:\n"

	defaultGenerationTimeout = 60 * time.Second
)

// QueryCache stores answer payloads keyed by tenant and question.
type QueryCache interface {
	Get(ctx context.Context, tenantID, question string, out any) (bool, error)
	Put(ctx context.Context, tenantID, question string, payload any, ttl time.Duration) error
}

type QueryResult struct {
	Answer  string                     `json:"answer"`
	Sources []vectorindex.SearchResult `json:"sources"`
	Cached  bool                       `json:"cached"`
}

type QueryConfig struct {
	TopK              int
	CacheTTL          time.Duration
	GenerationTimeout time.Duration
}

type QueryService struct {
	cache     QueryCache
	embedder  embedding.Embedder
	index     vectorindex.Index
	generator llm.Generator
	cfg       QueryConfig
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
}

func NewQueryService(
	cache QueryCache,
	embedder embedding.Embedder,
	index vectorindex.Index,
	generator llm.Generator,
	cfg QueryConfig,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) *QueryService {
	if cfg.TopK <= 0 {
		cfg.TopK = vectorindex.DefaultTopK
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	return &QueryService{
		cache:     cache,
		embedder:  embedder,
		index:     index,
		generator: generator,
		cfg:       cfg,
		metrics:   m,
		log:       log,
	}
}

// Answer runs cache lookup, retrieval and generation for one question.
// tenantID must come from the authenticated caller. Generation failures
// degrade to a listing of the retrieved chunks; only embedding or search
// failures are returned as errors.
func (s *QueryService) Answer(ctx context.Context, tenantID, question string, documentIDs []string) (*QueryResult, error) {
	if tenantID == "" || strings.TrimSpace(question) == "" {
		return nil, ErrInvalidInput
	}
	log := s.log.WithField("tenant_id", tenantID)

	var cached QueryResult
	hit, err := s.cache.Get(ctx, tenantID, question, &cached)
	if err != nil {
		log.WithError(err).Warn("query cache read failed, treating as miss")
	}
	if hit && err == nil {
		cached.Cached = true
		log.WithField("cached", true).Debug("query served from cache")
		s.metrics.Query(metrics.QueryCacheHit)
		return &cached, nil
	}

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, question)
	s.metrics.ObserveStage("query_embed", start)
	if err != nil {
		s.metrics.Query(metrics.QueryError)
		return nil, fmt.Errorf("%w: embed question: %v", ErrRetrieval, err)
	}

	start = time.Now()
	results, err := s.index.Search(ctx, vectorindex.CollectionFor(tenantID), vector, vectorindex.SearchOptions{
		TopK:        s.cfg.TopK,
		DocumentIDs: documentIDs,
	})
	s.metrics.ObserveStage("search", start)
	if err != nil {
		s.metrics.Query(metrics.QueryError)
		return nil, fmt.Errorf("%w: search: %v", ErrRetrieval, err)
	}

	if len(results) == 0 {
		s.metrics.Query(metrics.QueryNoResults)
		return &QueryResult{Answer: NoResultsAnswer, Sources: []vectorindex.SearchResult{}}, nil
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	start = time.Now()
	answer, err := s.generator.Generate(genCtx, texts, question)
	cancel()
	s.metrics.ObserveStage("generate", start)
	if err != nil {
		log.WithError(err).Warn("answer generation failed, returning retrieved chunks")
		s.metrics.Query(metrics.QueryDegraded)
		return &QueryResult{Answer: degradedAnswer(results), Sources: results}, nil
	}

	res := &QueryResult{Answer: answer, Sources: results}
	if err := s.cache.Put(context.WithoutCancel(ctx), tenantID, question, res, s.cfg.CacheTTL); err != nil {
		log.WithError(err).Warn("query cache write failed")
	}
	log.WithFields(logrus.Fields{"cached": false, "sources": len(results)}).Debug("query answered")
	s.metrics.Query(metrics.QueryGenerated)
	return res, nil
}

func degradedAnswer(results []vectorindex.SearchResult) string {
	var b strings.Builder
	b.WriteString(degradedPrefix)
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Text)
	}
	return b.String()
}
