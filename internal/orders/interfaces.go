package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/pagination"
)

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository is the persistence surface for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// FindByIDForUpdate locks the order row for the rest of the transaction
	// so concurrent lifecycle transitions serialize instead of racing.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, number string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)

	// SumItems returns the authoritative subtotal and discount sums over the
	// order's persisted line items.
	SumItems(ctx context.Context, orderID uuid.UUID) (subtotal, discount decimal.Decimal, err error)
	UpdateTotals(ctx context.Context, orderID uuid.UUID, subtotal, discount, total decimal.Decimal) error
	SaveStatus(ctx context.Context, order *models.Order) error
	SetPaymentTransaction(ctx context.Context, orderID, transactionID uuid.UUID) error
}
