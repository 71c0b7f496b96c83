package tap

// ChargeCreateParams carries everything needed to open a charge.
type ChargeCreateParams struct {
	Amount         string // exact two-decimal rendering, locale invariant
	Currency       string
	Description    string
	OrderReference string // internal transaction reference (TXN-...)
	CustomerName   string
	CustomerEmail  string
	SourceToken    string // tokenized payment source from the client
	RedirectURL    string
	WebhookURL     string
	Metadata       map[string]string
}

func (p ChargeCreateParams) body() map[string]any {
	body := map[string]any{
		"amount":      p.Amount,
		"currency":    p.Currency,
		"description": p.Description,
		"reference": map[string]string{
			"transaction": p.OrderReference,
		},
		"customer": map[string]any{
			"first_name": p.CustomerName,
			"email":      p.CustomerEmail,
		},
		"source": map[string]string{"id": p.SourceToken},
		"redirect": map[string]string{
			"url": p.RedirectURL,
		},
		"post": map[string]string{
			"url": p.WebhookURL,
		},
	}
	if len(p.Metadata) > 0 {
		body["metadata"] = p.Metadata
	}
	return body
}

// RefundParams carries a refund request.
type RefundParams struct {
	ChargeID string
	Amount   string
	Currency string
	Reason   string
}

func (p RefundParams) body() map[string]any {
	return map[string]any{
		"charge_id": p.ChargeID,
		"amount":    p.Amount,
		"currency":  p.Currency,
		"reason":    p.Reason,
	}
}

// Card is the gateway's card metadata echo.
type Card struct {
	Brand string `json:"brand"`
	Last4 string `json:"last_four"`
}

// Reference mirrors the gateway/payment reference pair included in charge
// responses and webhook payloads.
type Reference struct {
	Transaction string `json:"transaction"`
	Gateway     string `json:"gateway"`
	Payment     string `json:"payment"`
}

// Transaction carries the redirect URL the buyer is sent to.
type Transaction struct {
	URL string `json:"url"`
}

// Response captures the gateway's error surface on a charge.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Charge is the gateway's record of a payment attempt.
type Charge struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Card        *Card             `json:"card,omitempty"`
	Reference   Reference         `json:"reference"`
	Transaction *Transaction      `json:"transaction,omitempty"`
	Response    *Response         `json:"response,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Refund is the gateway's record of a refund operation.
type Refund struct {
	ID       string `json:"id"`
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type errorEnvelope struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}
