package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partsdepot/partsdepot-backend/pkg/enums"
)

// OrderItem is a point-in-time snapshot of a car part on an order. Catalog
// edits after the order never change these rows.
type OrderItem struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	PartID          uuid.UUID            `gorm:"column:part_id;type:uuid;not null"`
	PartNumber      string               `gorm:"column:part_number;not null"`
	PartName        string               `gorm:"column:part_name;not null"`
	PartImageURL    *string              `gorm:"column:part_image_url"`
	UnitPrice       decimal.Decimal      `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DiscountPercent int                  `gorm:"column:discount_percent;not null;default:0"`
	Quantity        int                  `gorm:"column:quantity;not null"`
	PromotionID     *uuid.UUID           `gorm:"column:promotion_id;type:uuid"`
	PromotionName   *string              `gorm:"column:promotion_name"`
	PromotionKind   *enums.PromotionKind `gorm:"column:promotion_kind;type:text"`
	PromotionValue  *decimal.Decimal     `gorm:"column:promotion_value;type:numeric(12,2)"`
	FinalPrice      decimal.Decimal      `gorm:"column:final_price;type:numeric(12,2);not null"`
	Subtotal        decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount  decimal.Decimal      `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	Total           decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// TotalsConsistent reports whether the line satisfies
// subtotal = unit price x quantity and total = subtotal - discount.
func (i *OrderItem) TotalsConsistent() bool {
	expectedSubtotal := i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	if !i.Subtotal.Equal(expectedSubtotal) {
		return false
	}
	return i.Total.Equal(i.Subtotal.Sub(i.DiscountAmount))
}
