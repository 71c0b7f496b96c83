package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/pkg/enums"
)

// Order is the immutable monetary record produced from a cart or an explicit
// item list. Line items are never edited after creation; only the status and
// its timestamps move.
type Order struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber          string              `gorm:"column:order_number;not null;unique"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	AddressID            uuid.UUID           `gorm:"column:address_id;type:uuid;not null"`
	Status               enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency             enums.Currency      `gorm:"column:currency;type:text;not null;default:'SAR'"`
	Subtotal             decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountTotal        decimal.Decimal     `gorm:"column:discount_total;type:numeric(12,2);not null;default:0"`
	Total                decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentTransactionID *uuid.UUID          `gorm:"column:payment_transaction_id;type:uuid"`
	PaymentTransaction   *PaymentTransaction `gorm:"foreignKey:PaymentTransactionID"`
	Items                []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt               *time.Time          `gorm:"column:paid_at"`
	ShippedAt            *time.Time          `gorm:"column:shipped_at"`
	DeliveredAt          *time.Time          `gorm:"column:delivered_at"`
	CancelledAt          *time.Time          `gorm:"column:cancelled_at"`
	RefundedAt           *time.Time          `gorm:"column:refunded_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt            gorm.DeletedAt      `gorm:"column:deleted_at;index"`
}

// TotalsConsistent reports whether the header satisfies
// total = subtotal - discount and the discount does not exceed the subtotal.
func (o *Order) TotalsConsistent() bool {
	if o.DiscountTotal.GreaterThan(o.Subtotal) {
		return false
	}
	return o.Total.Equal(o.Subtotal.Sub(o.DiscountTotal))
}
