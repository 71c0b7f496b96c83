package orders

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/pagination"
)

func TestCreateDirect(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "100.00", 10, 5)

	order, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{
		{PartID: part.ID, Quantity: 2},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.OrderNumber, "ORD-20260520-"))
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	require.Len(t, order.Items, 1)

	item := order.Items[0]
	assert.True(t, item.FinalPrice.Equal(decimal.RequireFromString("90")))
	assert.True(t, item.Subtotal.Equal(decimal.RequireFromString("200")))
	assert.True(t, item.DiscountAmount.Equal(decimal.RequireFromString("20")))
	assert.True(t, item.Total.Equal(decimal.RequireFromString("180")))
	assert.True(t, item.TotalsConsistent())

	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("200")))
	assert.True(t, order.DiscountTotal.Equal(decimal.RequireFromString("20")))
	assert.True(t, order.Total.Equal(decimal.RequireFromString("180")))
	assert.True(t, order.TotalsConsistent())

	// Stock is only validated at assembly; the decrement waits for payment.
	var got models.CarPart
	require.NoError(t, db.First(&got, "id = ?", part.ID).Error)
	assert.Equal(t, 5, got.StockQty)
}

func TestCreateDirectMergesDuplicateLines(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "50.00", 0, 10)

	order, err := svc.CreateDirect(context.Background(), userID, address.ID, []LineRequest{
		{PartID: part.ID, Quantity: 2},
		{PartID: part.ID, Quantity: 3},
	})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.Equal(t, 5, order.Items[0].Quantity)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("250")))
}

func TestCreateDirectEmptyItems(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	userID := uuid.New()
	address := seedAddress(t, db, userID)

	_, err := svc.CreateDirect(context.Background(), userID, address.ID, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeBusinessRule))
}

func TestCreateDirectUnknownPart(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	userID := uuid.New()
	address := seedAddress(t, db, userID)

	_, err := svc.CreateDirect(context.Background(), userID, address.ID, []LineRequest{
		{PartID: uuid.New(), Quantity: 1},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestCreateDirectForeignAddress(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	owner := uuid.New()
	address := seedAddress(t, db, owner)
	part := seedCatalogPart(t, db, "100.00", 0, 5)

	_, err := svc.CreateDirect(context.Background(), uuid.New(), address.ID, []LineRequest{
		{PartID: part.ID, Quantity: 1},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestCreateDirectStockViolationRollsBack(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "100.00", 0, 1)

	_, err := svc.CreateDirect(context.Background(), userID, address.ID, []LineRequest{
		{PartID: part.ID, Quantity: 3},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeBusinessRule))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateFromCart(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "40.00", 0, 10)

	record := models.CartRecord{
		ID:     uuid.New(),
		UserID: userID,
		Status: enums.CartStatusActive,
		Items: []models.CartItem{
			{ID: uuid.New(), PartID: part.ID, Quantity: 3},
		},
	}
	require.NoError(t, db.Create(&record).Error)

	order, err := svc.CreateFromCart(ctx, userID, address.ID)
	require.NoError(t, err)

	assert.True(t, order.Total.Equal(decimal.RequireFromString("120")))
	require.Len(t, order.Items, 1)

	var got models.CartRecord
	require.NoError(t, db.First(&got, "id = ?", record.ID).Error)
	assert.Equal(t, enums.CartStatusConverted, got.Status)
	require.NotNil(t, got.ConvertedAt)
}

func TestCreateFromCartEmpty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	record := models.CartRecord{ID: uuid.New(), UserID: userID, Status: enums.CartStatusActive}
	require.NoError(t, db.Create(&record).Error)

	_, err := svc.CreateFromCart(context.Background(), userID, address.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeBusinessRule))
}

func TestCancelPendingDoesNotRestoreStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "100.00", 0, 5)

	order, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{{PartID: part.ID, Quantity: 2}})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var got models.CarPart
	require.NoError(t, db.First(&got, "id = ?", part.ID).Error)
	assert.Equal(t, 5, got.StockQty)
}

func TestCancelPaidRestoresStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "100.00", 0, 5)

	order, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{{PartID: part.ID, Quantity: 2}})
	require.NoError(t, err)

	// Walk the order to paid; confirmation performs the decrement.
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := svc.ApplyEvent(ctx, tx, order, EventRequestPayment); err != nil {
			return err
		}
		return svc.ApplyEvent(ctx, tx, order, EventConfirmPayment)
	})
	require.NoError(t, err)

	var got models.CarPart
	require.NoError(t, db.First(&got, "id = ?", part.ID).Error)
	require.Equal(t, 3, got.StockQty)

	_, err = svc.Cancel(ctx, userID, order.ID)
	require.NoError(t, err)

	require.NoError(t, db.First(&got, "id = ?", part.ID).Error)
	assert.Equal(t, 5, got.StockQty)
}

func TestCancelDeliveredRejected(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "10.00", 0, 5)

	order, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{{PartID: part.ID, Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", enums.OrderStatusDelivered).Error)

	_, err = svc.Cancel(ctx, userID, order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestGetByIDOwnership(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "10.00", 0, 5)

	order, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{{PartID: part.ID, Quantity: 1}})
	require.NoError(t, err)

	loaded, err := svc.GetByID(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, loaded.ID)

	_, err = svc.GetByID(ctx, uuid.New(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	_, err = svc.GetByID(ctx, userID, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestListByUserPaginates(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "10.00", 0, 100)

	for i := 0; i < 3; i++ {
		_, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{{PartID: part.ID, Quantity: 1}})
		require.NoError(t, err)
	}

	page, next, err := svc.ListByUser(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	require.NotEmpty(t, next)

	rest, last, err := svc.ListByUser(ctx, userID, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Empty(t, last)
}

func TestReconcileTotalsOverwritesDriftedHeader(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "100.00", 10, 5)

	order, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{{PartID: part.ID, Quantity: 2}})
	require.NoError(t, err)

	// Drift the header, then let the reconciler repair it from the items.
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]any{"subtotal": 1, "discount_total": 0, "total": 1}).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.ReconcileTotals(ctx, tx, order.ID)
	}))

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.True(t, got.Subtotal.Equal(decimal.RequireFromString("200")))
	assert.True(t, got.DiscountTotal.Equal(decimal.RequireFromString("20")))
	assert.True(t, got.Total.Equal(decimal.RequireFromString("180")))
}

func TestFindByIDForUpdateLoadsItems(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	userID := uuid.New()
	address := seedAddress(t, db, userID)
	part := seedCatalogPart(t, db, "100.00", 0, 5)

	order, err := svc.CreateDirect(ctx, userID, address.ID, []LineRequest{{PartID: part.ID, Quantity: 2}})
	require.NoError(t, err)

	// The SQLite dialect carries no row locks; the locking load must still
	// behave as a plain read there.
	repo := NewRepository(db)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		got, err := repo.WithTx(tx).FindByIDForUpdate(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		require.Len(t, got.Items, 1)
		assert.Equal(t, part.ID, got.Items[0].PartID)
		return nil
	}))

	_, err = repo.FindByIDForUpdate(ctx, uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
