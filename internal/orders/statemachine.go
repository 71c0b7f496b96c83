package orders

import (
	"fmt"
	"time"

	"github.com/partsdepot/partsdepot-backend/pkg/clock"
	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
)

// Event is something that happens to an order.
type Event string

const (
	EventRequestPayment  Event = "request_payment"
	EventConfirmPayment  Event = "confirm_payment"
	EventStartProcessing Event = "start_processing"
	EventShip            Event = "ship"
	EventDeliver         Event = "deliver"
	EventCancel          Event = "cancel"
	EventRefund          Event = "refund"
	EventFail            Event = "fail"
)

// transitions enumerates every legal (status, event) pair. Anything not in
// the table is a state conflict.
var transitions = map[enums.OrderStatus]map[Event]enums.OrderStatus{
	enums.OrderStatusPending: {
		EventRequestPayment: enums.OrderStatusPaymentPending,
		EventCancel:         enums.OrderStatusCancelled,
		EventFail:           enums.OrderStatusFailed,
	},
	enums.OrderStatusPaymentPending: {
		EventConfirmPayment: enums.OrderStatusPaid,
		EventCancel:         enums.OrderStatusCancelled,
		EventFail:           enums.OrderStatusFailed,
	},
	enums.OrderStatusPaid: {
		EventStartProcessing: enums.OrderStatusProcessing,
		EventCancel:          enums.OrderStatusCancelled,
		EventRefund:          enums.OrderStatusRefunded,
	},
	enums.OrderStatusProcessing: {
		EventShip:   enums.OrderStatusShipped,
		EventCancel: enums.OrderStatusCancelled,
		EventRefund: enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		EventDeliver: enums.OrderStatusDelivered,
		EventCancel:  enums.OrderStatusCancelled,
		EventRefund:  enums.OrderStatusRefunded,
	},
	enums.OrderStatusFailed: {
		// A declined or failed attempt is not the end of the road; the buyer
		// can retry with a fresh transaction.
		EventRequestPayment: enums.OrderStatusPaymentPending,
		EventCancel:         enums.OrderStatusCancelled,
	},
}

// NextStatus resolves the transition table for one event.
func NextStatus(current enums.OrderStatus, event Event) (enums.OrderStatus, error) {
	if next, ok := transitions[current][event]; ok {
		return next, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeStateConflict,
		fmt.Sprintf("order in status %q cannot accept event %q", current, event))
}

// RestoresStockOnCancel reports whether cancelling from the given status adds
// inventory back. Only statuses reached after the payment decrement qualify;
// once the order shipped the units are physically gone.
func RestoresStockOnCancel(from enums.OrderStatus) bool {
	return from == enums.OrderStatusPaid || from == enums.OrderStatusProcessing
}

// StateMachine mutates order status through the transition table, stamping
// the matching timestamp from an injected clock.
type StateMachine struct {
	clock clock.Clock
}

func NewStateMachine(clk clock.Clock) *StateMachine {
	if clk == nil {
		clk = clock.System()
	}
	return &StateMachine{clock: clk}
}

// Apply moves the order to the event's target status and stamps the
// transition time. The model is only mutated when the transition is legal.
func (m *StateMachine) Apply(order *models.Order, event Event) error {
	next, err := NextStatus(order.Status, event)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	order.Status = next
	switch next {
	case enums.OrderStatusPaid:
		order.PaidAt = timePtr(now)
	case enums.OrderStatusShipped:
		order.ShippedAt = timePtr(now)
	case enums.OrderStatusDelivered:
		order.DeliveredAt = timePtr(now)
	case enums.OrderStatusCancelled:
		order.CancelledAt = timePtr(now)
	case enums.OrderStatusRefunded:
		order.RefundedAt = timePtr(now)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
