// Package tap authenticates and processes payment webhooks from the gateway.
package tap

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
)

// Fields are the webhook payload values covered by the signature, in the
// exact order the gateway concatenates them. Amount must already be rendered
// with exactly two decimal places; any other rendering produces a different
// digest than the gateway's.
type Fields struct {
	ID               string
	Amount           string
	Currency         string
	GatewayReference string
	PaymentReference string
	Status           string
	Created          string
}

// Signature computes the hex HMAC-SHA256 the gateway sends alongside a
// webhook: each field is prefixed with its label and concatenated in fixed
// order before hashing.
func Signature(secret string, f Fields) string {
	var b strings.Builder
	b.WriteString("x_id")
	b.WriteString(f.ID)
	b.WriteString("x_amount")
	b.WriteString(f.Amount)
	b.WriteString("x_currency")
	b.WriteString(f.Currency)
	b.WriteString("x_gateway_reference")
	b.WriteString(f.GatewayReference)
	b.WriteString("x_payment_reference")
	b.WriteString(f.PaymentReference)
	b.WriteString("x_status")
	b.WriteString(f.Status)
	b.WriteString("x_created")
	b.WriteString(f.Created)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the supplied signature against the computed one. The compare
// is case-insensitive over the hex encoding and constant time.
func Verify(secret string, f Fields, provided string) error {
	if strings.TrimSpace(provided) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}

	expected := Signature(secret, f)
	if !hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}
