package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"docuquery/internal/extract"
	"docuquery/internal/model"
	"docuquery/internal/repository"
	"docuquery/internal/storage"
	"docuquery/internal/vectorindex"
)

const bytesPerMB = 1024 * 1024

type JobPublisher interface {
	Publish(ctx context.Context, job model.DocumentJob) error
}

type DocumentConfig struct {
	MaxUploadMB    int
	StorageLimitMB int
}

type UploadInput struct {
	TenantID string
	Filename string
	Size     int64
	Body     io.Reader
}

type DocumentService struct {
	docs      *repository.DocumentRepository
	orgs      *repository.OrganizationRepository
	store     storage.FileStore
	index     vectorindex.Index
	publisher JobPublisher
	cfg       DocumentConfig
	log       logrus.FieldLogger
}

func NewDocumentService(
	docs *repository.DocumentRepository,
	orgs *repository.OrganizationRepository,
	store storage.FileStore,
	index vectorindex.Index,
	publisher JobPublisher,
	cfg DocumentConfig,
	log logrus.FieldLogger,
) *DocumentService {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 10
	}
	if cfg.StorageLimitMB <= 0 {
		cfg.StorageLimitMB = 100
	}
	return &DocumentService{
		docs:      docs,
		orgs:      orgs,
		store:     store,
		index:     index,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

func (s *DocumentService) MaxUploadMB() int { return s.cfg.MaxUploadMB }

// Upload stores the file, records it as queued and publishes a processing
// job. A failed publish leaves the document queued for batch recovery.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if in.TenantID == "" || in.Filename == "" || in.Body == nil {
		return nil, ErrInvalidInput
	}
	ext := extract.FileType(in.Filename)
	if !extract.IsSupported(ext) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	maxBytes := int64(s.cfg.MaxUploadMB) * bytesPerMB
	if in.Size > maxBytes {
		return nil, ErrFileTooLarge
	}

	org, err := s.orgs.GetByID(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrgNotFound
	}
	if in.Size > 0 && org.StorageUsedMB+sizeMB(in.Size) > s.cfg.StorageLimitMB {
		return nil, ErrStorageLimit
	}

	docID := uuid.NewString()
	key := storage.ObjectKey(in.TenantID, docID, ext)
	log := s.log.WithFields(logrus.Fields{"tenant_id": in.TenantID, "document_id": docID})

	written, err := s.store.Save(ctx, key, io.LimitReader(in.Body, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if written > maxBytes {
		s.discardFile(ctx, key, log)
		return nil, ErrFileTooLarge
	}

	doc := &model.Document{
		ID:            docID,
		TenantID:      in.TenantID,
		Title:         in.Filename,
		FilePath:      key,
		FileSizeBytes: written,
		Status:        model.DocumentQueued,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.discardFile(ctx, key, log)
		return nil, err
	}
	if err := s.orgs.AddStorageMB(ctx, in.TenantID, sizeMB(written)); err != nil {
		log.WithError(err).Warn("update storage usage failed")
	}

	if err := s.publish(ctx, doc.ID, model.JobProcess); err != nil {
		log.WithError(err).Warn("publish processing job failed, document stays queued")
	} else {
		log.Info("document uploaded and queued")
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, tenantID string) ([]model.Document, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByTenant(ctx, tenantID)
}

func (s *DocumentService) Get(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	if tenantID == "" || documentID == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.FindByIDAndTenant(ctx, documentID, tenantID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes vectors, then the stored file, then the record.
func (s *DocumentService) Delete(ctx context.Context, tenantID, documentID string) error {
	doc, err := s.Get(ctx, tenantID, documentID)
	if err != nil {
		return err
	}
	log := s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "document_id": documentID})

	if err := s.index.DeleteByDocument(ctx, vectorindex.CollectionFor(tenantID), doc.ID); err != nil {
		return fmt.Errorf("delete document vectors failed: %w", err)
	}
	if err := s.store.Delete(ctx, doc.FilePath); err != nil {
		return fmt.Errorf("delete document file failed: %w", err)
	}
	if err := s.docs.Delete(ctx, doc.ID, tenantID); err != nil {
		return err
	}
	if err := s.orgs.AddStorageMB(ctx, tenantID, -sizeMB(doc.FileSizeBytes)); err != nil {
		log.WithError(err).Warn("update storage usage failed")
	}
	log.Info("document deleted")
	return nil
}

// Reprocess schedules the document to be cleared and processed again.
func (s *DocumentService) Reprocess(ctx context.Context, tenantID, documentID string) (*model.Document, error) {
	doc, err := s.Get(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.publish(ctx, doc.ID, model.JobReprocess); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) publish(ctx context.Context, documentID string, action model.JobAction) error {
	if s.publisher == nil {
		return errors.New("job publisher not configured")
	}
	return s.publisher.Publish(ctx, model.DocumentJob{DocumentID: documentID, Action: action})
}

func (s *DocumentService) discardFile(ctx context.Context, key string, log logrus.FieldLogger) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.WithError(err).Warn("remove stored file failed")
	}
}

// sizeMB rounds up so that any non-empty file counts at least 1 MB.
func sizeMB(n int64) int {
	if n <= 0 {
		return 0
	}
	return int((n + bytesPerMB - 1) / bytesPerMB)
}
