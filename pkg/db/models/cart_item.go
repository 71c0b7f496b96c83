package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one part line inside a cart. Quantities change here, pre-order;
// pricing is resolved fresh at both cart-display and order time.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;not null;index"`
	PartID    uuid.UUID `gorm:"column:part_id;type:uuid;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
