package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/partsdepot/partsdepot-backend/api/responses"
	webhooktap "github.com/partsdepot/partsdepot-backend/internal/webhooks/tap"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
	"github.com/partsdepot/partsdepot-backend/pkg/tap"
)

const tapSignatureHeader = "hashstring"

// TapWebhookService verifies and applies gateway charge events.
type TapWebhookService interface {
	VerifySignature(event webhooktap.Event) error
	HandleEvent(ctx context.Context, event webhooktap.Event) error
}

type tapWebhookPayload struct {
	ID        string      `json:"id"`
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	Status    string      `json:"status"`
	Reference struct {
		Gateway string `json:"gateway"`
		Payment string `json:"payment"`
	} `json:"reference"`
	Transaction struct {
		Created string `json:"created"`
	} `json:"transaction"`
	Card *tap.Card `json:"card"`
}

// TapWebhook handles Tap charge lifecycle events. Once the signature checks
// out the gateway always gets a 200, even when processing fails; anything
// else makes Tap hammer the endpoint with retries that can never succeed.
func TapWebhook(svc TapWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var payload tapWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(tapSignatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook signature missing"))
			return
		}

		event := webhooktap.Event{
			ChargeID:         payload.ID,
			Amount:           payload.Amount.String(),
			Currency:         payload.Currency,
			GatewayReference: payload.Reference.Gateway,
			PaymentReference: payload.Reference.Payment,
			Status:           payload.Status,
			Created:          payload.Transaction.Created,
			Signature:        signature,
			Card:             payload.Card,
		}

		if err := svc.VerifySignature(event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "webhook signature mismatch"))
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if logg != nil {
				ctx = logg.WithChargeID(ctx, event.ChargeID)
				logg.Error(ctx, "tap webhook processing failed", err)
			}
			responses.WriteSuccess(w, nil)
			return
		}

		responses.WriteSuccess(w, nil)
	}
}
