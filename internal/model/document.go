package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	DocumentQueued     DocumentStatus = "queued"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

type Document struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	TenantID      string         `gorm:"size:36;not null;index:idx_document_tenant,priority:1" json:"tenant_id"`
	Title         string         `gorm:"size:255" json:"title"`
	FilePath      string         `gorm:"size:1024;not null" json:"-"`
	FileSizeBytes int64          `gorm:"not null" json:"file_size_bytes"`
	Status        DocumentStatus `gorm:"size:32;not null;default:queued;index" json:"status"`
	ChunksCount   int            `gorm:"not null;default:0" json:"chunks_count"`
	ErrorMessage  *string        `gorm:"size:1024" json:"error_message"`
	ProcessedAt   *time.Time     `json:"processed_at"`
	CreatedAt     time.Time      `gorm:"index:idx_document_tenant,priority:2" json:"created_at"`
}

func (d *Document) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DocumentQueued
	}
	return nil
}

// StatusCounts tallies a tenant's documents by status.
type StatusCounts struct {
	Total      int64 `json:"total_documents"`
	Queued     int64 `json:"documents_queued"`
	Ready      int64 `json:"documents_ready"`
	Processing int64 `json:"documents_processing"`
	Failed     int64 `json:"documents_failed"`
}
