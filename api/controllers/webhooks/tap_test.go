package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	webhooktap "github.com/partsdepot/partsdepot-backend/internal/webhooks/tap"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
)

type stubWebhookService struct {
	verifyErr  error
	handleErr  error
	handled    int
	lastEvent  webhooktap.Event
	lastVerify webhooktap.Event
}

func (s *stubWebhookService) VerifySignature(event webhooktap.Event) error {
	s.lastVerify = event
	return s.verifyErr
}

func (s *stubWebhookService) HandleEvent(_ context.Context, event webhooktap.Event) error {
	s.handled++
	s.lastEvent = event
	return s.handleErr
}

const tapPayload = `{
	"id": "chg_TS020000001",
	"amount": 180.00,
	"currency": "SAR",
	"status": "CAPTURED",
	"reference": {"gateway": "gw_123", "payment": "py_456"},
	"transaction": {"created": "1767945600000"},
	"card": {"brand": "VISA", "last_four": "4242"}
}`

func postWebhook(handler http.HandlerFunc, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/tap", strings.NewReader(payload))
	if signature != "" {
		req.Header.Set("hashstring", signature)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestTapWebhookBuildsEventFromPayload(t *testing.T) {
	svc := &stubWebhookService{}
	resp := postWebhook(TapWebhook(svc, nil), tapPayload, "deadbeef")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.handled != 1 {
		t.Fatalf("expected one handled event got %d", svc.handled)
	}

	event := svc.lastEvent
	if event.ChargeID != "chg_TS020000001" {
		t.Fatalf("unexpected charge id: %s", event.ChargeID)
	}
	if event.Amount != "180.00" {
		t.Fatalf("unexpected amount: %s", event.Amount)
	}
	if event.GatewayReference != "gw_123" || event.PaymentReference != "py_456" {
		t.Fatalf("references not forwarded: %+v", event)
	}
	if event.Created != "1767945600000" {
		t.Fatalf("created not forwarded: %s", event.Created)
	}
	if event.Signature != "deadbeef" {
		t.Fatalf("signature not forwarded: %s", event.Signature)
	}
	if event.Card == nil || event.Card.Last4 != "4242" {
		t.Fatalf("card not forwarded: %+v", event.Card)
	}
}

func TestTapWebhookMissingSignatureHeader(t *testing.T) {
	svc := &stubWebhookService{}
	resp := postWebhook(TapWebhook(svc, nil), tapPayload, "")

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.handled != 0 {
		t.Fatalf("event must not be handled without a signature")
	}
}

func TestTapWebhookInvalidSignatureIsRejected(t *testing.T) {
	svc := &stubWebhookService{verifyErr: pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")}
	resp := postWebhook(TapWebhook(svc, nil), tapPayload, "deadbeef")

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.handled != 0 {
		t.Fatalf("event must not be handled with a bad signature")
	}
}

func TestTapWebhookAcknowledgesProcessingFailure(t *testing.T) {
	// A verified event that fails internally still gets a 200; the gateway
	// retries on anything else and the failure is already logged.
	svc := &stubWebhookService{handleErr: errors.New("database down")}
	resp := postWebhook(TapWebhook(svc, nil), tapPayload, "deadbeef")

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.handled != 1 {
		t.Fatalf("expected handler to run once, got %d", svc.handled)
	}
}

func TestTapWebhookMalformedBody(t *testing.T) {
	svc := &stubWebhookService{}
	resp := postWebhook(TapWebhook(svc, nil), "{not json", "deadbeef")

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
