package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"docuquery/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// StatusUpdate carries the lifecycle columns written together. Nil pointers
// are stored as NULL.
type StatusUpdate struct {
	Status       model.DocumentStatus
	ChunksCount  int
	ErrorMessage *string
	ProcessedAt  *time.Time
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) FindByIDAndTenant(ctx context.Context, id, tenantID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByTenant(ctx context.Context, tenantID string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// ListIDsByStatus returns ids oldest first.
func (r *DocumentRepository) ListIDsByStatus(ctx context.Context, status model.DocumentStatus) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("status = ?", status).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list document ids by status failed: %w", err)
	}
	return ids, nil
}

func (r *DocumentRepository) UpdateStatusFields(ctx context.Context, id string, u StatusUpdate) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]any{
		"status":        u.Status,
		"chunks_count":  u.ChunksCount,
		"error_message": u.ErrorMessage,
		"processed_at":  u.ProcessedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update document status failed: %w", res.Error)
	}
	return nil
}

// ClaimForProcessing moves a queued document to processing. It reports false
// when the document is missing or not queued, so only one caller wins.
func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentQueued).
		Update("status", model.DocumentProcessing)
	if res.Error != nil {
		return false, fmt.Errorf("claim document failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ClaimForReprocess moves a document in any state but processing back to
// processing and clears its previous outcome. It reports false when the
// document is missing or another run holds it.
func (r *DocumentRepository) ClaimForReprocess(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status <> ?", id, model.DocumentProcessing).
		Updates(map[string]any{
			"status":        model.DocumentProcessing,
			"chunks_count":  0,
			"error_message": nil,
			"processed_at":  nil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim document for reprocess failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *DocumentRepository) CountByStatus(ctx context.Context, tenantID string) (model.StatusCounts, error) {
	var rows []struct {
		Status model.DocumentStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&model.Document{}).
		Select("status, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return model.StatusCounts{}, fmt.Errorf("count documents by status failed: %w", err)
	}

	var counts model.StatusCounts
	for _, row := range rows {
		counts.Total += row.Count
		switch row.Status {
		case model.DocumentQueued:
			counts.Queued = row.Count
		case model.DocumentProcessing:
			counts.Processing = row.Count
		case model.DocumentReady:
			counts.Ready = row.Count
		case model.DocumentFailed:
			counts.Failed = row.Count
		}
	}
	return counts, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id, tenantID string) error {
	if err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
