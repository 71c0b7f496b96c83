// Package catalog exposes read access to car parts and their promotions.
// Catalog CRUD is owned by external tooling; the order pipeline only reads.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
)

// Repository is the read surface the order pipeline uses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPartByID(ctx context.Context, id uuid.UUID) (*models.CarPart, error)
	FindPartsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CarPart, error)
	ListActiveParts(ctx context.Context, limit, offset int) ([]models.CarPart, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindPartByID(ctx context.Context, id uuid.UUID) (*models.CarPart, error) {
	var part models.CarPart
	err := r.db.WithContext(ctx).
		Preload("Promotion").
		Where("id = ?", id).
		First(&part).Error
	if err != nil {
		return nil, err
	}
	return &part, nil
}

func (r *repository) FindPartsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.CarPart, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var parts []models.CarPart
	err := r.db.WithContext(ctx).
		Preload("Promotion").
		Where("id IN ?", ids).
		Find(&parts).Error
	if err != nil {
		return nil, err
	}
	return parts, nil
}

func (r *repository) ListActiveParts(ctx context.Context, limit, offset int) ([]models.CarPart, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var parts []models.CarPart
	err := r.db.WithContext(ctx).
		Preload("Promotion").
		Where("is_active = ?", true).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&parts).Error
	if err != nil {
		return nil, err
	}
	return parts, nil
}
