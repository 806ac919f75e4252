package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"docuquery/internal/chunker"
	"docuquery/internal/embedding"
	"docuquery/internal/metrics"
	"docuquery/internal/model"
	"docuquery/internal/repository"
	"docuquery/internal/vectorindex"
)

const defaultErrorMessageMax = 1000

// DocumentStore is the narrow persistence contract the processor needs.
type DocumentStore interface {
	FindByID(ctx context.Context, id string) (*model.Document, error)
	UpdateStatusFields(ctx context.Context, id string, u repository.StatusUpdate) error
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
	ClaimForReprocess(ctx context.Context, id string) (bool, error)
	ListIDsByStatus(ctx context.Context, status model.DocumentStatus) ([]string, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, key string) (string, error)
}

type ProcessorConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	ErrorMessageMax int
}

// BatchResult tallies a process-all-queued run. Skipped documents were
// claimed by another worker first and are not part of Total.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

type outcome int

const (
	outcomeReady outcome = iota
	outcomeFailed
	outcomeSkipped
)

// ProcessorService drives a document through
// queued -> processing -> ready|failed.
type ProcessorService struct {
	docs      DocumentStore
	extractor TextExtractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     vectorindex.Index
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	errMax    int
	now       func() time.Time
}

func NewProcessorService(
	docs DocumentStore,
	extractor TextExtractor,
	embedder embedding.Embedder,
	index vectorindex.Index,
	cfg ProcessorConfig,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) (*ProcessorService, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if cfg.ErrorMessageMax <= 0 {
		cfg.ErrorMessageMax = defaultErrorMessageMax
	}
	return &ProcessorService{
		docs:      docs,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		metrics:   m,
		log:       log,
		errMax:    cfg.ErrorMessageMax,
		now:       time.Now,
	}, nil
}

// Process runs the pipeline for one queued document and reports whether it
// ended ready. Failures are recorded on the document, never returned.
func (s *ProcessorService) Process(ctx context.Context, documentID string) bool {
	return s.process(ctx, documentID) == outcomeReady
}

func (s *ProcessorService) process(ctx context.Context, documentID string) outcome {
	log := s.log.WithField("document_id", documentID)

	claimed, err := s.docs.ClaimForProcessing(ctx, documentID)
	if err != nil {
		log.WithError(err).Error("claim document failed")
		return outcomeFailed
	}
	if !claimed {
		log.Info("document not queued, skipping")
		s.metrics.DocumentProcessed(metrics.DocumentSkipped)
		return outcomeSkipped
	}

	return s.runClaimed(ctx, documentID, log)
}

// runClaimed processes a document the caller has already moved to
// processing and records the outcome on it.
func (s *ProcessorService) runClaimed(ctx context.Context, documentID string, log logrus.FieldLogger) outcome {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err == nil && doc == nil {
		err = ErrDocumentNotFound
	}
	if err != nil {
		s.recordFailure(ctx, documentID, fmt.Errorf("load document: %w", err), log)
		return outcomeFailed
	}
	log = log.WithField("tenant_id", doc.TenantID)

	chunks, runErr := s.run(ctx, doc, log)
	if runErr != nil {
		s.recordFailure(ctx, documentID, runErr, log)
		return outcomeFailed
	}

	// the status write must land even if the caller gave up
	processedAt := s.now().UTC()
	if err := s.docs.UpdateStatusFields(context.WithoutCancel(ctx), documentID, repository.StatusUpdate{
		Status:      model.DocumentReady,
		ChunksCount: chunks,
		ProcessedAt: &processedAt,
	}); err != nil {
		log.WithError(err).Error("record ready status failed")
		s.metrics.DocumentProcessed(metrics.DocumentFailed)
		return outcomeFailed
	}
	log.WithField("chunks", chunks).Info("document processed")
	s.metrics.DocumentProcessed(metrics.DocumentReady)
	return outcomeReady
}

func (s *ProcessorService) recordFailure(ctx context.Context, documentID string, cause error, log logrus.FieldLogger) {
	msg := truncate(cause.Error(), s.errMax)
	processedAt := s.now().UTC()
	if err := s.docs.UpdateStatusFields(context.WithoutCancel(ctx), documentID, repository.StatusUpdate{
		Status:       model.DocumentFailed,
		ErrorMessage: &msg,
		ProcessedAt:  &processedAt,
	}); err != nil {
		log.WithError(err).Error("record failed status failed")
	}
	log.WithError(cause).Warn("document processing failed")
	s.metrics.DocumentProcessed(metrics.DocumentFailed)
}

// run executes extract -> chunk -> embed -> upsert and returns the chunk count.
func (s *ProcessorService) run(ctx context.Context, doc *model.Document, log logrus.FieldLogger) (int, error) {
	start := time.Now()
	text, err := s.extractor.Extract(ctx, doc.FilePath)
	s.metrics.ObserveStage("extract", start)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyText
	}
	log.WithField("stage", "extract").Debugf("extracted %d characters", utf8.RuneCountInString(text))

	chunks, err := s.chunker.Split(text)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, ErrEmptyChunks
	}

	start = time.Now()
	embeddings, err := s.embedder.EmbedBatch(ctx, chunks)
	s.metrics.ObserveStage("embed", start)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	collection := vectorindex.CollectionFor(doc.TenantID)
	start = time.Now()
	err = s.index.Upsert(ctx, collection, doc.ID, chunks, embeddings)
	s.metrics.ObserveStage("upsert", start)
	if err != nil {
		// drop any points a partial upsert left behind
		if delErr := s.index.DeleteByDocument(context.WithoutCancel(ctx), collection, doc.ID); delErr != nil {
			log.WithError(delErr).Warn("cleanup after failed upsert failed")
		}
		return 0, fmt.Errorf("store vectors: %w", err)
	}
	s.metrics.ChunksIndexed(len(chunks))
	return len(chunks), nil
}

// Reprocess takes the document away from any settled state, clears its
// vectors and runs the pipeline again. A document that is already being
// processed is left alone.
func (s *ProcessorService) Reprocess(ctx context.Context, documentID string) bool {
	log := s.log.WithField("document_id", documentID)

	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		log.WithError(err).Error("load document failed")
		return false
	}
	if doc == nil {
		log.Warn("document not found")
		return false
	}

	claimed, err := s.docs.ClaimForReprocess(ctx, doc.ID)
	if err != nil {
		log.WithError(err).Error("claim document for reprocess failed")
		return false
	}
	if !claimed {
		log.Info("document is being processed, skipping reprocess")
		s.metrics.DocumentProcessed(metrics.DocumentSkipped)
		return false
	}

	if err := s.index.DeleteByDocument(ctx, vectorindex.CollectionFor(doc.TenantID), doc.ID); err != nil {
		s.recordFailure(ctx, doc.ID, fmt.Errorf("delete previous vectors: %w", err), log)
		return false
	}
	return s.runClaimed(ctx, doc.ID, log) == outcomeReady
}

// ProcessAllQueued processes every queued document sequentially. Concurrent
// runs are safe: each document is claimed before it is processed.
func (s *ProcessorService) ProcessAllQueued(ctx context.Context) (BatchResult, error) {
	ids, err := s.docs.ListIDsByStatus(ctx, model.DocumentQueued)
	if err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		switch s.process(ctx, id) {
		case outcomeReady:
			res.Processed++
		case outcomeFailed:
			res.Failed++
		case outcomeSkipped:
			res.Skipped++
		}
	}
	res.Total = res.Processed + res.Failed
	s.log.WithFields(logrus.Fields{
		"processed": res.Processed,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
	}).Info("queued documents processed")
	return res, nil
}

func truncate(msg string, max int) string {
	if msg == "" {
		msg = "processing failed"
	}
	if utf8.RuneCountInString(msg) <= max {
		return msg
	}
	return string([]rune(msg)[:max])
}
