package payments

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
	"github.com/partsdepot/partsdepot-backend/pkg/tap"
)

func TestCanonicalFromGateway(t *testing.T) {
	t.Parallel()

	cases := map[string]enums.PaymentStatus{
		"CAPTURED":           enums.PaymentStatusPaid,
		"captured":           enums.PaymentStatusPaid,
		"AUTHORIZED":         enums.PaymentStatusAuthorized,
		"DECLINED":           enums.PaymentStatusDeclined,
		"RESTRICTED":         enums.PaymentStatusDeclined,
		"TIMEDOUT":           enums.PaymentStatusAbandoned,
		"REFUNDED":           enums.PaymentStatusRefunded,
		"PARTIALLY_REFUNDED": enums.PaymentStatusPartiallyRefunded,
		"  initiated  ":      enums.PaymentStatusInitiated,
		"SOMETHING_NEW":      enums.PaymentStatusPending,
		"":                   enums.PaymentStatusPending,
	}
	for raw, want := range cases {
		assert.Equal(t, want, CanonicalFromGateway(raw), "raw %q", raw)
	}
}

func TestInitiate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, _ := env.seedOrder(t, userID, "100.00", 2, 5)

	env.gateway.charge = testCharge("chg_001", "INITIATED")

	result, err := env.payments.Initiate(ctx, InitiateParams{
		UserID:      userID,
		OrderID:     order.ID,
		Method:      enums.PaymentMethodCard,
		SourceToken: "tok_visa",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://gateway.example/authorize/chg_001", result.RedirectURL)
	assert.True(t, strings.HasPrefix(result.Transaction.Reference, "TXN-20260521-"))
	require.NotNil(t, result.Transaction.ChargeID)
	assert.Equal(t, "chg_001", *result.Transaction.ChargeID)
	assert.True(t, result.Transaction.Amount.Equal(decimal.RequireFromString("200")))

	// The gateway saw the exact two-decimal amount.
	assert.Equal(t, "200.00", env.gateway.lastCreate.Amount)
	assert.Equal(t, "SAR", env.gateway.lastCreate.Currency)

	var got models.Order
	require.NoError(t, env.db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaymentPending, got.Status)
	require.NotNil(t, got.PaymentTransactionID)
	assert.Equal(t, result.Transaction.ID, *got.PaymentTransactionID)
}

func TestInitiateRejectsForeignOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	owner := uuid.New()
	order, _ := env.seedOrder(t, owner, "50.00", 1, 5)

	_, err := env.payments.Initiate(context.Background(), InitiateParams{
		UserID:      uuid.New(),
		OrderID:     order.ID,
		SourceToken: "tok_visa",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	assert.Zero(t, env.gateway.createCalls)
}

func TestInitiateGatewayFailureMarksOrderFailed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, _ := env.seedOrder(t, userID, "75.00", 1, 5)

	env.gateway.chargeErr = pkgerrors.New(pkgerrors.CodeDependency, "tap: connection refused")

	_, err := env.payments.Initiate(ctx, InitiateParams{
		UserID:      userID,
		OrderID:     order.ID,
		SourceToken: "tok_visa",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	var gotOrder models.Order
	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusFailed, gotOrder.Status)

	var txn models.PaymentTransaction
	require.NoError(t, env.db.First(&txn, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusFailed, txn.Status)
	require.NotNil(t, txn.FailedAt)
	require.NotNil(t, txn.ErrorMessage)
}

func TestApplyGatewayStatusPaidDecrementsStockOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, part := env.seedOrder(t, userID, "100.00", 2, 5)

	env.gateway.charge = testCharge("chg_002", "INITIATED")
	_, err := env.payments.Initiate(ctx, InitiateParams{
		UserID: userID, OrderID: order.ID, SourceToken: "tok_visa",
	})
	require.NoError(t, err)

	err = env.db.Transaction(func(tx *gorm.DB) error {
		applied, err := env.payments.ApplyGatewayStatus(ctx, tx, "chg_002", "CAPTURED", nil)
		require.True(t, applied)
		return err
	})
	require.NoError(t, err)

	var gotOrder models.Order
	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, gotOrder.Status)
	require.NotNil(t, gotOrder.PaidAt)

	var gotPart models.CarPart
	require.NoError(t, env.db.First(&gotPart, "id = ?", part.ID).Error)
	assert.Equal(t, 3, gotPart.StockQty)

	// Replaying the same status is a no-op and must not touch stock again.
	err = env.db.Transaction(func(tx *gorm.DB) error {
		applied, err := env.payments.ApplyGatewayStatus(ctx, tx, "chg_002", "CAPTURED", nil)
		require.False(t, applied)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, env.db.First(&gotPart, "id = ?", part.ID).Error)
	assert.Equal(t, 3, gotPart.StockQty)
}

func TestApplyGatewayStatusUnknownCharge(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	err := env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.payments.ApplyGatewayStatus(context.Background(), tx, "chg_missing", "CAPTURED", nil)
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestApplyGatewayStatusDeclinedFailsPendingOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, _ := env.seedOrder(t, userID, "60.00", 1, 5)

	env.gateway.charge = testCharge("chg_003", "INITIATED")
	_, err := env.payments.Initiate(ctx, InitiateParams{
		UserID: userID, OrderID: order.ID, SourceToken: "tok_visa",
	})
	require.NoError(t, err)

	err = env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.payments.ApplyGatewayStatus(ctx, tx, "chg_003", "DECLINED", nil)
		return err
	})
	require.NoError(t, err)

	var gotOrder models.Order
	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusFailed, gotOrder.Status)
}

func TestInitiateRetryAfterDecline(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, part := env.seedOrder(t, userID, "100.00", 2, 5)

	env.gateway.charge = testCharge("chg_020", "INITIATED")
	_, err := env.payments.Initiate(ctx, InitiateParams{
		UserID: userID, OrderID: order.ID, SourceToken: "tok_visa",
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.payments.ApplyGatewayStatus(ctx, tx, "chg_020", "DECLINED", nil)
		return err
	}))

	var gotOrder models.Order
	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusFailed, gotOrder.Status)

	// A declined attempt must not strand the order; a second attempt opens a
	// fresh transaction against a new charge.
	env.gateway.charge = testCharge("chg_021", "INITIATED")
	result, err := env.payments.Initiate(ctx, InitiateParams{
		UserID: userID, OrderID: order.ID, SourceToken: "tok_visa",
	})
	require.NoError(t, err)
	require.Equal(t, "chg_021", *result.Transaction.ChargeID)

	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaymentPending, gotOrder.Status)

	var count int64
	require.NoError(t, env.db.Model(&models.PaymentTransaction{}).
		Where("order_id = ?", order.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	// The retry can still settle normally.
	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.payments.ApplyGatewayStatus(ctx, tx, "chg_021", "CAPTURED", nil)
		return err
	}))

	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, gotOrder.Status)

	var gotPart models.CarPart
	require.NoError(t, env.db.First(&gotPart, "id = ?", part.ID).Error)
	assert.Equal(t, 3, gotPart.StockQty)
}

func payOrder(t *testing.T, env *testEnv, userID uuid.UUID, orderID uuid.UUID, chargeID string) {
	t.Helper()
	ctx := context.Background()

	env.gateway.charge = testCharge(chargeID, "INITIATED")
	_, err := env.payments.Initiate(ctx, InitiateParams{
		UserID: userID, OrderID: orderID, SourceToken: "tok_visa",
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
		_, err := env.payments.ApplyGatewayStatus(ctx, tx, chargeID, "CAPTURED", nil)
		return err
	}))
}

func TestRefundExceedingRemainderRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, _ := env.seedOrder(t, userID, "100.00", 2, 5)
	payOrder(t, env, userID, order.ID, "chg_010")

	_, err := env.payments.Refund(ctx, RefundParams{
		UserID:  userID,
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("250.00"),
		Reason:  "requested by buyer",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeBusinessRule))
	assert.Zero(t, env.gateway.refundCalls)

	// Transaction state is untouched.
	var txn models.PaymentTransaction
	require.NoError(t, env.db.First(&txn, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, txn.Status)
	assert.True(t, txn.RefundedAmount.IsZero())
}

func TestRefundPartialThenFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, part := env.seedOrder(t, userID, "100.00", 2, 5)
	payOrder(t, env, userID, order.ID, "chg_011")

	env.gateway.refund = &tap.Refund{ID: "re_001", ChargeID: "chg_011", Status: "REFUNDED"}

	txn, err := env.payments.Refund(ctx, RefundParams{
		UserID:  userID,
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("50.00"),
		Reason:  "damaged item",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, txn.Status)
	assert.True(t, txn.RefundedAmount.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, "50.00", env.gateway.lastRefund.Amount)

	// Partial refunds leave the order and its stock alone.
	var gotOrder models.Order
	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, gotOrder.Status)

	var gotPart models.CarPart
	require.NoError(t, env.db.First(&gotPart, "id = ?", part.ID).Error)
	require.Equal(t, 3, gotPart.StockQty)

	txn, err = env.payments.Refund(ctx, RefundParams{
		UserID:  userID,
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("150.00"),
		Reason:  "order cancelled",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, txn.Status)
	assert.True(t, txn.RefundedAmount.Equal(decimal.RequireFromString("200")))

	// A full refund drives the order to refunded and restores the stock.
	require.NoError(t, env.db.First(&gotOrder, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusRefunded, gotOrder.Status)
	require.NotNil(t, gotOrder.RefundedAt)

	require.NoError(t, env.db.First(&gotPart, "id = ?", part.ID).Error)
	assert.Equal(t, 5, gotPart.StockQty)
}

func TestRefundRevalidatesRemainderAfterGatewayCall(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, _ := env.seedOrder(t, userID, "100.00", 2, 5)
	payOrder(t, env, userID, order.ID, "chg_013")

	// A webhook-driven full refund lands while our gateway call is in
	// flight. The pre-check saw a full remainder; the accumulation must
	// re-check against the live row and refuse.
	env.gateway.refund = &tap.Refund{ID: "re_002", ChargeID: "chg_013", Status: "REFUNDED"}
	env.gateway.onRefund = func() {
		require.NoError(t, env.db.Model(&models.PaymentTransaction{}).
			Where("order_id = ?", order.ID).
			Updates(map[string]any{
				"refunded_amount": "200",
				"status":          enums.PaymentStatusRefunded,
			}).Error)
	}

	_, err := env.payments.Refund(ctx, RefundParams{
		UserID:  userID,
		OrderID: order.ID,
		Amount:  decimal.RequireFromString("50.00"),
		Reason:  "requested by buyer",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeBusinessRule))

	// The concurrent writer's total stands; nothing was added on top.
	var txn models.PaymentTransaction
	require.NoError(t, env.db.First(&txn, "order_id = ?", order.ID).Error)
	assert.True(t, txn.RefundedAmount.Equal(decimal.RequireFromString("200")))
}

func TestAccumulateRefundGuard(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, _ := env.seedOrder(t, userID, "100.00", 2, 5)
	payOrder(t, env, userID, order.ID, "chg_014")

	var txn models.PaymentTransaction
	require.NoError(t, env.db.First(&txn, "order_id = ?", order.ID).Error)

	repo := NewRepository(env.db)
	applied, err := repo.AccumulateRefund(ctx, txn.ID, decimal.RequireFromString("150.00"))
	require.NoError(t, err)
	require.True(t, applied)

	// 150 of 200 is taken; another 100 would breach the charged amount and
	// must leave the row untouched.
	applied, err = repo.AccumulateRefund(ctx, txn.ID, decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, env.db.First(&txn, "id = ?", txn.ID).Error)
	assert.True(t, txn.RefundedAmount.Equal(decimal.RequireFromString("150")))

	applied, err = repo.AccumulateRefund(ctx, txn.ID, decimal.RequireFromString("50.00"))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestListByOrderOwnership(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	order, _ := env.seedOrder(t, userID, "40.00", 1, 5)
	payOrder(t, env, userID, order.ID, "chg_012")

	txns, err := env.payments.ListByOrder(ctx, userID, order.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)

	_, err = env.payments.ListByOrder(ctx, uuid.New(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}
