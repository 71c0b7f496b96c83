package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CarPart is the catalog listing the storefront sells. Catalog CRUD lives
// outside this service; the order pipeline only reads these rows and adjusts
// stock_qty.
type CarPart struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartNumber      string          `gorm:"column:part_number;not null;unique"`
	Name            string          `gorm:"column:name;not null"`
	Description     *string         `gorm:"column:description"`
	Brand           string          `gorm:"column:brand;not null"`
	ImageURLs       pq.StringArray  `gorm:"column:image_urls;type:text[]"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DiscountPercent int             `gorm:"column:discount_percent;not null;default:0"`
	PromotionID     *uuid.UUID      `gorm:"column:promotion_id;type:uuid"`
	Promotion       *Promotion      `gorm:"foreignKey:PromotionID"`
	StockQty        int             `gorm:"column:stock_qty;not null;default:0"`
	IsActive        bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

// Validate enforces the catalog invariants the pricing pipeline relies on.
func (p *CarPart) Validate() error {
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		return fmt.Errorf("discount percent %d outside [0,100]", p.DiscountPercent)
	}
	if p.StockQty < 0 {
		return fmt.Errorf("stock quantity %d cannot be negative", p.StockQty)
	}
	if p.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price cannot be negative")
	}
	return nil
}

// Sellable reports whether the part can appear on a new order.
func (p *CarPart) Sellable() bool {
	return p.IsActive && !p.DeletedAt.Valid
}
