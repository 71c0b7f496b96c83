package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/internal/addresses"
	"github.com/partsdepot/partsdepot-backend/internal/cart"
	"github.com/partsdepot/partsdepot-backend/internal/catalog"
	"github.com/partsdepot/partsdepot-backend/internal/stock"
	"github.com/partsdepot/partsdepot-backend/pkg/clock"
	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
)

var testNow = time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS promotions (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  kind TEXT NOT NULL,
  value NUMERIC NOT NULL,
  starts_at DATETIME NOT NULL,
  ends_at DATETIME NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS car_parts (
  id TEXT PRIMARY KEY,
  part_number TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  brand TEXT NOT NULL,
  image_urls TEXT,
  unit_price NUMERIC NOT NULL,
  discount_percent INTEGER NOT NULL DEFAULT 0,
  promotion_id TEXT,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS addresses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  recipient TEXT NOT NULL,
  phone TEXT NOT NULL,
  line1 TEXT NOT NULL,
  line2 TEXT,
  city TEXT NOT NULL,
  district TEXT NOT NULL,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL DEFAULT 'SA',
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  converted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  part_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  address_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  currency TEXT NOT NULL DEFAULT 'SAR',
  subtotal NUMERIC NOT NULL,
  discount_total NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL,
  payment_transaction_id TEXT,
  paid_at DATETIME,
  shipped_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  part_id TEXT NOT NULL,
  part_number TEXT NOT NULL,
  part_name TEXT NOT NULL,
  part_image_url TEXT,
  unit_price NUMERIC NOT NULL,
  discount_percent INTEGER NOT NULL DEFAULT 0,
  quantity INTEGER NOT NULL,
  promotion_id TEXT,
  promotion_name TEXT,
  promotion_kind TEXT,
  promotion_value NUMERIC,
  final_price NUMERIC NOT NULL,
  subtotal NUMERIC NOT NULL,
  discount_amount NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  charge_id TEXT UNIQUE,
  reference TEXT NOT NULL UNIQUE,
  method TEXT NOT NULL DEFAULT 'card',
  status TEXT NOT NULL DEFAULT 'initiated',
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'SAR',
  card_last4 TEXT,
  card_brand TEXT,
  refunded_amount NUMERIC NOT NULL DEFAULT 0,
  error_code TEXT,
  error_message TEXT,
  initiated_at DATETIME NOT NULL,
  completed_at DATETIME,
  failed_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	logg := logger.New(logger.Options{Level: zerolog.ErrorLevel})
	validator, err := stock.NewValidator(logg)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		TxRunner:  testTxRunner{db: db},
		Repo:      NewRepository(db),
		Catalog:   catalog.NewRepository(db),
		Carts:     cart.NewRepository(db),
		Addresses: addresses.NewRepository(db),
		Stock:     validator,
		Clock:     clock.Fixed{Instant: testNow},
		Currency:  enums.CurrencySAR,
		Logger:    logg,
	})
	require.NoError(t, err)
	return svc
}

func seedAddress(t *testing.T, db *gorm.DB, userID uuid.UUID) models.Address {
	t.Helper()
	address := models.Address{
		ID:         uuid.New(),
		UserID:     userID,
		Recipient:  "Faisal",
		Phone:      "+966500000001",
		Line1:      "12 King Fahd Rd",
		City:       "Riyadh",
		District:   "Olaya",
		PostalCode: "11564",
		Country:    "SA",
	}
	require.NoError(t, db.Create(&address).Error)
	return address
}

func seedCatalogPart(t *testing.T, db *gorm.DB, price string, discountPercent, qty int) models.CarPart {
	t.Helper()
	part := models.CarPart{
		ID:              uuid.New(),
		PartNumber:      "PN-" + uuid.NewString()[:8],
		Name:            "Oil Filter",
		Brand:           "Mann",
		UnitPrice:       decimal.RequireFromString(price),
		DiscountPercent: discountPercent,
		StockQty:        qty,
		IsActive:        true,
	}
	require.NoError(t, db.Create(&part).Error)
	return part
}
