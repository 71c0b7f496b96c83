package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/partsdepot/partsdepot-backend/api/responses"
	"github.com/partsdepot/partsdepot-backend/api/validators"
	internalpayments "github.com/partsdepot/partsdepot-backend/internal/payments"
	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
)

// PaymentsService is the slice of the payments service the controllers call.
type PaymentsService interface {
	Initiate(ctx context.Context, p internalpayments.InitiateParams) (*internalpayments.InitiateResult, error)
	Refund(ctx context.Context, p internalpayments.RefundParams) (*models.PaymentTransaction, error)
	ListByOrder(ctx context.Context, userID, orderID uuid.UUID) ([]models.PaymentTransaction, error)
}

type initiatePaymentRequest struct {
	SourceToken   string `json:"source_token" validate:"required"`
	Method        string `json:"method,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty" validate:"omitempty,email"`
}

type initiatePaymentResponse struct {
	Transaction internalpayments.Response `json:"transaction"`
	RedirectURL string                    `json:"redirect_url,omitempty"`
}

type refundRequest struct {
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// InitiatePayment starts a payment attempt for one of the caller's orders
// and returns the gateway redirect URL.
func InitiatePayment(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := parseUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalpayments.InitiateParams{
			UserID:        userID,
			OrderID:       orderID,
			SourceToken:   payload.SourceToken,
			CustomerName:  strings.TrimSpace(payload.CustomerName),
			CustomerEmail: strings.TrimSpace(payload.CustomerEmail),
		}
		if payload.Method != "" {
			method, err := enums.ParsePaymentMethod(payload.Method)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
				return
			}
			params.Method = method
		}

		result, err := svc.Initiate(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, initiatePaymentResponse{
			Transaction: internalpayments.ToResponse(result.Transaction),
			RedirectURL: result.RedirectURL,
		})
	}
}

// ListOrderPayments returns every payment attempt recorded for an order.
func ListOrderPayments(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := parseUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByOrder(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]internalpayments.Response, 0, len(list))
		for i := range list {
			out = append(out, internalpayments.ToResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// RefundOrder refunds part or all of an order's captured payment.
func RefundOrder(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := parseUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund amount"))
			return
		}

		txn, err := svc.Refund(r.Context(), internalpayments.RefundParams{
			UserID:  userID,
			OrderID: orderID,
			Amount:  amount,
			Reason:  strings.TrimSpace(payload.Reason),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalpayments.ToResponse(txn))
	}
}
