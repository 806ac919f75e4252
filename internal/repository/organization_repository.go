package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docuquery/internal/model"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// CreateWithOwner inserts the organization and its first user atomically.
func (r *OrganizationRepository) CreateWithOwner(ctx context.Context, org *model.Organization, user *model.User) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return err
		}
		user.OrganizationID = org.ID
		return tx.Create(user).Error
	})
	if err != nil {
		return fmt.Errorf("create organization failed: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *OrganizationRepository) GetByName(ctx context.Context, name string) (*model.Organization, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *OrganizationRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*model.Organization, error) {
	return r.first(ctx, "api_key_hash = ?", hash)
}

func (r *OrganizationRepository) first(ctx context.Context, query string, arg any) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.WithContext(ctx).Where(query, arg).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query organization failed: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) UpdateAPIKeyHash(ctx context.Context, id, hash string) error {
	if err := r.db.WithContext(ctx).Model(&model.Organization{}).Where("id = ?", id).
		Update("api_key_hash", hash).Error; err != nil {
		return fmt.Errorf("update api key failed: %w", err)
	}
	return nil
}

// AddStorageMB adjusts storage usage by delta, never going below zero.
func (r *OrganizationRepository) AddStorageMB(ctx context.Context, id string, delta int) error {
	expr := gorm.Expr("CASE WHEN storage_used_mb + ? < 0 THEN 0 ELSE storage_used_mb + ? END", delta, delta)
	if err := r.db.WithContext(ctx).Model(&model.Organization{}).Where("id = ?", id).
		Update("storage_used_mb", expr).Error; err != nil {
		return fmt.Errorf("update storage usage failed: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) IncrementQueries(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Model(&model.Organization{}).Where("id = ?", id).
		Update("queries_this_month", gorm.Expr("queries_this_month + 1")).Error; err != nil {
		return fmt.Errorf("increment query count failed: %w", err)
	}
	return nil
}
