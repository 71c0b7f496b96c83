package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Address is a user's shipping address. Address management is an external
// collaborator; the core only validates ownership before attaching one to an
// order.
type Address struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID     uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index"`
	Recipient  string         `gorm:"column:recipient;not null"`
	Phone      string         `gorm:"column:phone;not null"`
	Line1      string         `gorm:"column:line1;not null"`
	Line2      *string        `gorm:"column:line2"`
	City       string         `gorm:"column:city;not null"`
	District   string         `gorm:"column:district;not null"`
	PostalCode string         `gorm:"column:postal_code;not null"`
	Country    string         `gorm:"column:country;not null;default:'SA'"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
