package app

import (
	"context"

	"docuquery/internal/ratelimit"
	"docuquery/internal/repository"
)

type RateLimitStatus interface {
	Status(ctx context.Context, tenantID string) (ratelimit.Status, error)
}

type Usage struct {
	StorageUsedMB       int              `json:"storage_used_mb"`
	StorageLimitMB      int              `json:"storage_limit_mb"`
	QueriesThisMonth    int              `json:"queries_this_month"`
	TotalDocuments      int64            `json:"total_documents"`
	DocumentsReady      int64            `json:"documents_ready"`
	DocumentsProcessing int64            `json:"documents_processing"`
	DocumentsQueued     int64            `json:"documents_queued"`
	DocumentsFailed     int64            `json:"documents_failed"`
	RateLimit           ratelimit.Status `json:"rate_limit"`
}

type UsageService struct {
	orgs           *repository.OrganizationRepository
	docs           *repository.DocumentRepository
	limiter        RateLimitStatus
	storageLimitMB int
}

func NewUsageService(
	orgs *repository.OrganizationRepository,
	docs *repository.DocumentRepository,
	limiter RateLimitStatus,
	storageLimitMB int,
) *UsageService {
	if storageLimitMB <= 0 {
		storageLimitMB = 100
	}
	return &UsageService{orgs: orgs, docs: docs, limiter: limiter, storageLimitMB: storageLimitMB}
}

func (s *UsageService) Get(ctx context.Context, tenantID string) (*Usage, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}
	org, err := s.orgs.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrgNotFound
	}
	counts, err := s.docs.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rl, err := s.limiter.Status(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &Usage{
		StorageUsedMB:       org.StorageUsedMB,
		StorageLimitMB:      s.storageLimitMB,
		QueriesThisMonth:    org.QueriesThisMonth,
		TotalDocuments:      counts.Total,
		DocumentsReady:      counts.Ready,
		DocumentsProcessing: counts.Processing,
		DocumentsQueued:     counts.Queued,
		DocumentsFailed:     counts.Failed,
		RateLimit:           rl,
	}, nil
}

// RecordQuery counts an answered query against the organization.
func (s *UsageService) RecordQuery(ctx context.Context, tenantID string) error {
	return s.orgs.IncrementQueries(ctx, tenantID)
}
