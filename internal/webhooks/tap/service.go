package tap

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/internal/orders"
	"github.com/partsdepot/partsdepot-backend/internal/payments"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
	"github.com/partsdepot/partsdepot-backend/pkg/metrics"
	"github.com/partsdepot/partsdepot-backend/pkg/redis"
	"github.com/partsdepot/partsdepot-backend/pkg/tap"
)

// Event is one gateway notification after JSON decoding.
type Event struct {
	ChargeID         string
	Amount           string
	Currency         string
	GatewayReference string
	PaymentReference string
	Status           string
	Created          string
	Signature        string
	Card             *tap.Card
}

// Service verifies and applies gateway webhooks. Delivery is at least once,
// so every event passes a redis idempotency gate keyed on charge id plus
// canonical status before it can touch the database.
type Service struct {
	txRunner orders.TxRunner
	payments *payments.Service
	store    redis.IdempotencyStore
	secret   string
	dedupTTL time.Duration
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

type ServiceParams struct {
	TxRunner orders.TxRunner
	Payments *payments.Service
	Store    redis.IdempotencyStore
	Secret   string
	DedupTTL time.Duration
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case p.Payments == nil:
		return nil, fmt.Errorf("payments service is required")
	case p.Store == nil:
		return nil, fmt.Errorf("idempotency store is required")
	case p.Secret == "":
		return nil, fmt.Errorf("webhook secret is required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if p.DedupTTL <= 0 {
		p.DedupTTL = 30 * 24 * time.Hour
	}

	return &Service{
		txRunner: p.TxRunner,
		payments: p.Payments,
		store:    p.Store,
		secret:   p.Secret,
		dedupTTL: p.DedupTTL,
		metrics:  p.Metrics,
		logg:     p.Logger,
	}, nil
}

// VerifySignature authenticates the event before any state is read or
// written. The amount is re-rendered with two decimal places to match the
// gateway's signing input.
func (s *Service) VerifySignature(event Event) error {
	amount, err := decimal.NewFromString(event.Amount)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid webhook amount %q", event.Amount))
	}

	return Verify(s.secret, Fields{
		ID:               event.ChargeID,
		Amount:           amount.StringFixed(2),
		Currency:         event.Currency,
		GatewayReference: event.GatewayReference,
		PaymentReference: event.PaymentReference,
		Status:           event.Status,
		Created:          event.Created,
	}, event.Signature)
}

// HandleEvent applies a verified event exactly once. The idempotency mark is
// claimed before processing and released again if processing fails, so the
// gateway's retry can succeed later.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	if event.ChargeID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook charge id missing")
	}
	if err := s.VerifySignature(event); err != nil {
		s.metrics.IncWebhookRejected("bad_signature")
		return err
	}

	ctx = s.logg.WithChargeID(ctx, event.ChargeID)

	canonical := payments.CanonicalFromGateway(event.Status)
	key := s.store.IdempotencyKey("tap", fmt.Sprintf("%s:%s", event.ChargeID, canonical))
	claimed, err := s.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.dedupTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claiming webhook idempotency mark")
	}
	if !claimed {
		s.logg.Info(ctx, "duplicate webhook skipped")
		s.metrics.IncWebhookProcessed("duplicate")
		return nil
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.payments.ApplyGatewayStatus(ctx, tx, event.ChargeID, event.Status, event.Card)
		if err != nil {
			return err
		}
		if !applied {
			s.logg.Info(ctx, "webhook status already applied")
		}
		return nil
	})
	if err != nil {
		// Release the mark so the gateway's retry is not swallowed.
		if delErr := s.store.Del(ctx, key); delErr != nil {
			s.logg.Error(ctx, "releasing webhook idempotency mark", delErr)
		}
		return err
	}

	s.metrics.IncWebhookProcessed(string(canonical))
	s.logg.Info(ctx, "webhook processed")
	return nil
}
