package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partsdepot/partsdepot-backend/pkg/enums"
)

// PaymentTransaction records one payment attempt against an order. A failed
// attempt stays in place; a new attempt gets a new row.
type PaymentTransaction struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	ChargeID       *string             `gorm:"column:charge_id;unique"`
	Reference      string              `gorm:"column:reference;not null;unique"`
	Method         enums.PaymentMethod `gorm:"column:method;type:text;not null;default:'card'"`
	Status         enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'initiated'"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       enums.Currency      `gorm:"column:currency;type:text;not null;default:'SAR'"`
	CardLast4      *string             `gorm:"column:card_last4"`
	CardBrand      *string             `gorm:"column:card_brand"`
	RefundedAmount decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	ErrorCode      *string             `gorm:"column:error_code"`
	ErrorMessage   *string             `gorm:"column:error_message"`
	InitiatedAt    time.Time           `gorm:"column:initiated_at;not null"`
	CompletedAt    *time.Time          `gorm:"column:completed_at"`
	FailedAt       *time.Time          `gorm:"column:failed_at"`
	RefundedAt     *time.Time          `gorm:"column:refunded_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// RefundableRemainder returns how much of the charge can still be refunded.
func (t *PaymentTransaction) RefundableRemainder() decimal.Decimal {
	return t.Amount.Sub(t.RefundedAmount)
}
