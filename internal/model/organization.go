package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Organization is the tenant: the unit of data isolation.
type Organization struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Name             string    `gorm:"size:255;not null;uniqueIndex" json:"name"`
	APIKeyHash       string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	StorageUsedMB    int       `gorm:"not null;default:0" json:"storage_used_mb"`
	QueriesThisMonth int       `gorm:"not null;default:0" json:"queries_this_month"`
	CreatedAt        time.Time `json:"created_at"`
}

func (o *Organization) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
