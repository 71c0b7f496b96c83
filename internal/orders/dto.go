package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
)

// Response is the wire shape controllers return for an order.
type Response struct {
	ID            uuid.UUID      `json:"id"`
	OrderNumber   string         `json:"order_number"`
	Status        string         `json:"status"`
	Currency      string         `json:"currency"`
	Subtotal      string         `json:"subtotal"`
	DiscountTotal string         `json:"discount_total"`
	Total         string         `json:"total"`
	AddressID     uuid.UUID      `json:"address_id"`
	Items         []ItemResponse `json:"items"`
	PaidAt        *time.Time     `json:"paid_at,omitempty"`
	ShippedAt     *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	CancelledAt   *time.Time     `json:"cancelled_at,omitempty"`
	RefundedAt    *time.Time     `json:"refunded_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type ItemResponse struct {
	ID             uuid.UUID `json:"id"`
	PartID         uuid.UUID `json:"part_id"`
	PartNumber     string    `json:"part_number"`
	PartName       string    `json:"part_name"`
	PartImageURL   *string   `json:"part_image_url,omitempty"`
	UnitPrice      string    `json:"unit_price"`
	FinalPrice     string    `json:"final_price"`
	Quantity       int       `json:"quantity"`
	Subtotal       string    `json:"subtotal"`
	DiscountAmount string    `json:"discount_amount"`
	Total          string    `json:"total"`
	PromotionName  *string   `json:"promotion_name,omitempty"`
}

// ToResponse flattens an order model into its wire shape, rendering every
// monetary field with two decimal places.
func ToResponse(order *models.Order) Response {
	items := make([]ItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemResponse{
			ID:             item.ID,
			PartID:         item.PartID,
			PartNumber:     item.PartNumber,
			PartName:       item.PartName,
			PartImageURL:   item.PartImageURL,
			UnitPrice:      item.UnitPrice.StringFixed(2),
			FinalPrice:     item.FinalPrice.StringFixed(2),
			Quantity:       item.Quantity,
			Subtotal:       item.Subtotal.StringFixed(2),
			DiscountAmount: item.DiscountAmount.StringFixed(2),
			Total:          item.Total.StringFixed(2),
			PromotionName:  item.PromotionName,
		})
	}

	return Response{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status.String(),
		Currency:      order.Currency.String(),
		Subtotal:      order.Subtotal.StringFixed(2),
		DiscountTotal: order.DiscountTotal.StringFixed(2),
		Total:         order.Total.StringFixed(2),
		AddressID:     order.AddressID,
		Items:         items,
		PaidAt:        order.PaidAt,
		ShippedAt:     order.ShippedAt,
		DeliveredAt:   order.DeliveredAt,
		CancelledAt:   order.CancelledAt,
		RefundedAt:    order.RefundedAt,
		CreatedAt:     order.CreatedAt,
	}
}
