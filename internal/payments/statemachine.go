package payments

import (
	"strings"
	"time"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
)

// gatewayStatusMap translates every status string the gateway is known to
// emit into the canonical set. Lookups are case-insensitive and anything
// unrecognized falls back to pending, so a new gateway status can never crash
// the webhook path.
var gatewayStatusMap = map[string]enums.PaymentStatus{
	"INITIATED":          enums.PaymentStatusInitiated,
	"IN_PROGRESS":        enums.PaymentStatusPending,
	"PENDING":            enums.PaymentStatusPending,
	"AUTHORIZED":         enums.PaymentStatusAuthorized,
	"CAPTURED":           enums.PaymentStatusPaid,
	"PAID":               enums.PaymentStatusPaid,
	"FAILED":             enums.PaymentStatusFailed,
	"DECLINED":           enums.PaymentStatusDeclined,
	"RESTRICTED":         enums.PaymentStatusDeclined,
	"VOID":               enums.PaymentStatusVoided,
	"VOIDED":             enums.PaymentStatusVoided,
	"ABANDONED":          enums.PaymentStatusAbandoned,
	"TIMEDOUT":           enums.PaymentStatusAbandoned,
	"CANCELLED":          enums.PaymentStatusCancelled,
	"REFUNDED":           enums.PaymentStatusRefunded,
	"PARTIALLY_REFUNDED": enums.PaymentStatusPartiallyRefunded,
}

// CanonicalFromGateway maps a gateway-reported status string into the
// canonical set. Unknown input maps to pending; this function never errors.
func CanonicalFromGateway(raw string) enums.PaymentStatus {
	if status, ok := gatewayStatusMap[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return status
	}
	return enums.PaymentStatusPending
}

// applyStatus moves a transaction to the canonical status and stamps the
// matching lifecycle timestamp. It reports false when the transaction already
// carries that status, which is how webhook replays become no-ops.
func applyStatus(txn *models.PaymentTransaction, status enums.PaymentStatus, now time.Time) bool {
	if txn.Status == status {
		return false
	}

	txn.Status = status
	switch status {
	case enums.PaymentStatusPaid:
		txn.CompletedAt = &now
	case enums.PaymentStatusFailed,
		enums.PaymentStatusDeclined,
		enums.PaymentStatusVoided,
		enums.PaymentStatusAbandoned,
		enums.PaymentStatusCancelled:
		txn.FailedAt = &now
	case enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded:
		txn.RefundedAt = &now
	}
	return true
}
