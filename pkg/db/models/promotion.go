package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/pkg/enums"
)

// Promotion is a time-bounded discount a part may reference. Promotions are
// managed by catalog tooling; the core only evaluates them.
type Promotion struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string              `gorm:"column:name;not null"`
	Kind      enums.PromotionKind `gorm:"column:kind;type:text;not null"`
	Value     decimal.Decimal     `gorm:"column:value;type:numeric(12,2);not null"`
	StartsAt  time.Time           `gorm:"column:starts_at;not null"`
	EndsAt    time.Time           `gorm:"column:ends_at;not null"`
	IsActive  bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

// IsActiveAt reports whether the promotion applies at the given instant.
func (p *Promotion) IsActiveAt(t time.Time) bool {
	if p == nil {
		return false
	}
	if !p.IsActive || p.DeletedAt.Valid {
		return false
	}
	return !t.Before(p.StartsAt) && !t.After(p.EndsAt)
}
