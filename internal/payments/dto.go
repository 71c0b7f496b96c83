package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
)

// Response is the wire shape controllers return for a payment transaction.
type Response struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        uuid.UUID  `json:"order_id"`
	Reference      string     `json:"reference"`
	ChargeID       *string    `json:"charge_id,omitempty"`
	Method         string     `json:"method"`
	Status         string     `json:"status"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	RefundedAmount string     `json:"refunded_amount"`
	CardBrand      *string    `json:"card_brand,omitempty"`
	CardLast4      *string    `json:"card_last4,omitempty"`
	ErrorCode      *string    `json:"error_code,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	InitiatedAt    time.Time  `json:"initiated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
}

func ToResponse(txn *models.PaymentTransaction) Response {
	return Response{
		ID:             txn.ID,
		OrderID:        txn.OrderID,
		Reference:      txn.Reference,
		ChargeID:       txn.ChargeID,
		Method:         txn.Method.String(),
		Status:         txn.Status.String(),
		Amount:         txn.Amount.StringFixed(2),
		Currency:       txn.Currency.String(),
		RefundedAmount: txn.RefundedAmount.StringFixed(2),
		CardBrand:      txn.CardBrand,
		CardLast4:      txn.CardLast4,
		ErrorCode:      txn.ErrorCode,
		ErrorMessage:   txn.ErrorMessage,
		InitiatedAt:    txn.InitiatedAt,
		CompletedAt:    txn.CompletedAt,
		FailedAt:       txn.FailedAt,
		RefundedAt:     txn.RefundedAt,
	}
}
