// Package payments creates gateway charges for orders, folds gateway status
// reports into the canonical payment state machine, and handles refunds.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/internal/orders"
	"github.com/partsdepot/partsdepot-backend/pkg/clock"
	"github.com/partsdepot/partsdepot-backend/pkg/db"
	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
	"github.com/partsdepot/partsdepot-backend/pkg/metrics"
	"github.com/partsdepot/partsdepot-backend/pkg/money"
	"github.com/partsdepot/partsdepot-backend/pkg/refs"
	"github.com/partsdepot/partsdepot-backend/pkg/tap"
)

// Gateway is the slice of the payment gateway client this service uses.
type Gateway interface {
	CreateCharge(ctx context.Context, params tap.ChargeCreateParams) (*tap.Charge, error)
	RefundCharge(ctx context.Context, params tap.RefundParams) (*tap.Refund, error)
}

// OrderEngine drives order lifecycle transitions inside a transaction.
type OrderEngine interface {
	ApplyEvent(ctx context.Context, tx *gorm.DB, order *models.Order, event orders.Event) error
}

type Service struct {
	txRunner    orders.TxRunner
	repo        Repository
	ordersRepo  orders.Repository
	engine      OrderEngine
	gateway     Gateway
	refs        refs.Generator
	clock       clock.Clock
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	redirectURL string
	webhookURL  string
}

type ServiceParams struct {
	TxRunner    orders.TxRunner
	Repo        Repository
	OrdersRepo  orders.Repository
	Engine      OrderEngine
	Gateway     Gateway
	Clock       clock.Clock
	Metrics     *metrics.PaymentMetrics
	Logger      *logger.Logger
	RedirectURL string
	WebhookURL  string
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case p.Repo == nil:
		return nil, fmt.Errorf("repository is required")
	case p.OrdersRepo == nil:
		return nil, fmt.Errorf("orders repository is required")
	case p.Engine == nil:
		return nil, fmt.Errorf("order engine is required")
	case p.Gateway == nil:
		return nil, fmt.Errorf("gateway is required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if p.Clock == nil {
		p.Clock = clock.System()
	}

	return &Service{
		txRunner:    p.TxRunner,
		repo:        p.Repo,
		ordersRepo:  p.OrdersRepo,
		engine:      p.Engine,
		gateway:     p.Gateway,
		refs:        refs.NewGenerator(),
		clock:       p.Clock,
		metrics:     p.Metrics,
		logg:        p.Logger,
		redirectURL: p.RedirectURL,
		webhookURL:  p.WebhookURL,
	}, nil
}

// InitiateParams starts a payment attempt for an order.
type InitiateParams struct {
	UserID        uuid.UUID
	OrderID       uuid.UUID
	Method        enums.PaymentMethod
	SourceToken   string
	CustomerName  string
	CustomerEmail string
}

// InitiateResult carries the created transaction and where to send the buyer.
type InitiateResult struct {
	Transaction *models.PaymentTransaction
	RedirectURL string
}

// Initiate creates a payment transaction for the order and opens a charge at
// the gateway. Local records are written before the gateway call; a gateway
// failure marks the transaction and the order failed rather than leaving them
// dangling.
func (s *Service) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	if p.SourceToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source token is required")
	}
	if !p.Method.IsValid() {
		p.Method = enums.PaymentMethodCard
	}

	var txn *models.PaymentTransaction
	var order *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.loadOwnedOrder(ctx, tx, p.UserID, p.OrderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case enums.OrderStatusPending, enums.OrderStatusFailed:
			if err := s.engine.ApplyEvent(ctx, tx, order, orders.EventRequestPayment); err != nil {
				return err
			}
		case enums.OrderStatusPaymentPending:
			// a prior attempt is still open; this is the retry path
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order in status %q cannot start a payment", order.Status))
		}

		txn = &models.PaymentTransaction{
			OrderID:     order.ID,
			UserID:      p.UserID,
			Method:      p.Method,
			Status:      enums.PaymentStatusInitiated,
			Amount:      order.Total,
			Currency:    order.Currency,
			InitiatedAt: s.clock.Now(),
		}
		return s.createWithUniqueReference(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	amount, err := money.New(order.Total, order.Currency)
	if err != nil {
		return nil, err
	}

	charge, gwErr := s.gateway.CreateCharge(ctx, tap.ChargeCreateParams{
		Amount:         amount.GatewayString(),
		Currency:       order.Currency.String(),
		Description:    fmt.Sprintf("Order %s", order.OrderNumber),
		OrderReference: txn.Reference,
		CustomerName:   p.CustomerName,
		CustomerEmail:  p.CustomerEmail,
		SourceToken:    p.SourceToken,
		RedirectURL:    s.redirectURL,
		WebhookURL:     s.webhookURL,
		Metadata: map[string]string{
			"order_id":       order.ID.String(),
			"transaction_id": txn.ID.String(),
		},
	})
	if gwErr != nil {
		if failErr := s.markInitiateFailed(ctx, txn, order, gwErr); failErr != nil {
			s.logg.Error(ctx, "recording failed charge creation", failErr)
		}
		return nil, gwErr
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		chargeID := charge.ID
		txn.ChargeID = &chargeID
		if charge.Card != nil {
			txn.CardBrand = &charge.Card.Brand
			txn.CardLast4 = &charge.Card.Last4
		}
		applyStatus(txn, CanonicalFromGateway(charge.Status), s.clock.Now())

		if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving payment transaction")
		}
		return s.ordersRepo.WithTx(tx).SetPaymentTransaction(ctx, order.ID, txn.ID)
	})
	if err != nil {
		return nil, err
	}

	redirect := ""
	if charge.Transaction != nil {
		redirect = charge.Transaction.URL
	}

	ctx = s.logg.WithChargeID(s.logg.WithOrderID(ctx, order.ID.String()), charge.ID)
	s.logg.Info(ctx, "payment initiated")
	return &InitiateResult{Transaction: txn, RedirectURL: redirect}, nil
}

// ApplyGatewayStatus folds one gateway-reported status into the transaction
// and, when that status means money moved, into the order. It returns false
// when the status was already applied, which makes webhook replays harmless.
func (s *Service) ApplyGatewayStatus(ctx context.Context, tx *gorm.DB, chargeID, gatewayStatus string, card *tap.Card) (bool, error) {
	txn, err := s.repo.WithTx(tx).FindByChargeID(ctx, chargeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no transaction for charge %s", chargeID))
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading transaction by charge")
	}

	canonical := CanonicalFromGateway(gatewayStatus)
	if !applyStatus(txn, canonical, s.clock.Now()) {
		return false, nil
	}
	if card != nil {
		txn.CardBrand = &card.Brand
		txn.CardLast4 = &card.Last4
	}

	order, err := s.ordersRepo.WithTx(tx).FindByIDForUpdate(ctx, txn.OrderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order for charge")
	}

	switch canonical {
	case enums.PaymentStatusPaid:
		if err := s.engine.ApplyEvent(ctx, tx, order, orders.EventConfirmPayment); err != nil {
			return false, err
		}

	case enums.PaymentStatusRefunded:
		txn.RefundedAmount = txn.Amount
		if order.Status != enums.OrderStatusRefunded {
			if err := s.engine.ApplyEvent(ctx, tx, order, orders.EventRefund); err != nil {
				return false, err
			}
		}

	case enums.PaymentStatusFailed,
		enums.PaymentStatusDeclined,
		enums.PaymentStatusVoided,
		enums.PaymentStatusAbandoned,
		enums.PaymentStatusCancelled:
		// Only fail the order while it is still waiting on this payment; a
		// newer attempt may already have moved it on.
		if order.Status == enums.OrderStatusPaymentPending {
			if err := s.engine.ApplyEvent(ctx, tx, order, orders.EventFail); err != nil {
				return false, err
			}
		}
	}

	if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving payment transaction")
	}
	return true, nil
}

// RefundParams asks for a partial or full refund against an order's payment.
type RefundParams struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	Amount  decimal.Decimal
	Reason  string
}

// Refund validates the amount against the refundable remainder, performs the
// gateway refund, and accumulates it on the transaction. A full refund drives
// the order to refunded and restores its stock; a partial refund leaves the
// order where it is.
func (s *Service) Refund(ctx context.Context, p RefundParams) (*models.PaymentTransaction, error) {
	if !p.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var txn *models.PaymentTransaction
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadOwnedOrder(ctx, tx, p.UserID, p.OrderID)
		if err != nil {
			return err
		}
		txn, err = s.refundableTransaction(ctx, tx, order)
		if err != nil {
			return err
		}
		if p.Amount.GreaterThan(txn.RefundableRemainder()) {
			return pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("refund %s exceeds refundable remainder %s",
					p.Amount.StringFixed(2), txn.RefundableRemainder().StringFixed(2)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	amount, err := money.New(p.Amount, txn.Currency)
	if err != nil {
		return nil, err
	}
	if txn.ChargeID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction has no gateway charge")
	}

	if _, err := s.gateway.RefundCharge(ctx, tap.RefundParams{
		ChargeID: *txn.ChargeID,
		Amount:   amount.GatewayString(),
		Currency: txn.Currency.String(),
		Reason:   p.Reason,
	}); err != nil {
		s.metrics.IncRefund("gateway_error")
		return nil, err
	}

	outcome := "partial"
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// The remainder was checked before the gateway call, but a concurrent
		// refund or a gateway webhook may have landed since. The guarded
		// update re-checks against the live row; a miss means the remainder
		// is gone and the accumulation must not happen.
		applied, err := repo.AccumulateRefund(ctx, txn.ID, p.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "accumulating refund")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeBusinessRule,
				fmt.Sprintf("refund %s no longer fits the refundable remainder", p.Amount.StringFixed(2)))
		}

		fresh, err := repo.FindByID(ctx, txn.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading transaction")
		}
		txn = fresh
		now := s.clock.Now()

		if txn.RefundedAmount.GreaterThanOrEqual(txn.Amount) {
			applyStatus(txn, enums.PaymentStatusRefunded, now)
			outcome = "full"

			order, err := s.ordersRepo.WithTx(tx).FindByIDForUpdate(ctx, txn.OrderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order for refund")
			}
			if order.Status != enums.OrderStatusRefunded {
				if err := s.engine.ApplyEvent(ctx, tx, order, orders.EventRefund); err != nil {
					return err
				}
			}
		} else {
			applyStatus(txn, enums.PaymentStatusPartiallyRefunded, now)
		}

		if err := repo.Save(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving refund")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRefund(outcome)
	s.logg.Info(s.logg.WithOrderID(ctx, p.OrderID.String()), "refund applied")
	return txn, nil
}

// ListByOrder returns the order's payment attempts, newest first, after an
// ownership check.
func (s *Service) ListByOrder(ctx context.Context, userID, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.loadOwnedOrder(ctx, tx, userID, orderID); err != nil {
			return err
		}
		var err error
		txns, err = s.repo.WithTx(tx).FindByOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing transactions")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Service) loadOwnedOrder(ctx context.Context, tx *gorm.DB, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.ordersRepo.WithTx(tx).FindByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

// refundableTransaction picks the order's settled payment attempt.
func (s *Service) refundableTransaction(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.PaymentTransaction, error) {
	txns, err := s.repo.WithTx(tx).FindByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing transactions")
	}
	for i := range txns {
		switch txns[i].Status {
		case enums.PaymentStatusPaid, enums.PaymentStatusPartiallyRefunded:
			return &txns[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "order has no refundable payment")
}

func (s *Service) createWithUniqueReference(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction) error {
	repo := s.repo.WithTx(tx)
	now := s.clock.Now()

	var lastErr error
	for attempt := 0; attempt < refs.MaxAttempts; attempt++ {
		reference, err := s.refs.TransactionRef(now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating transaction reference")
		}
		txn.Reference = reference

		lastErr = repo.Create(ctx, txn)
		if lastErr == nil {
			return nil
		}
		if !db.IsUniqueViolation(lastErr, "reference") {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "creating payment transaction")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a unique transaction reference")
}

// markInitiateFailed records a charge-creation failure on both the
// transaction and the order.
func (s *Service) markInitiateFailed(ctx context.Context, txn *models.PaymentTransaction, order *models.Order, cause error) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		applyStatus(txn, enums.PaymentStatusFailed, s.clock.Now())
		if typed := pkgerrors.As(cause); typed != nil {
			code := string(typed.Code())
			message := typed.Message()
			txn.ErrorCode = &code
			txn.ErrorMessage = &message
		}
		if err := s.repo.WithTx(tx).Save(ctx, txn); err != nil {
			return err
		}
		return s.engine.ApplyEvent(ctx, tx, order, orders.EventFail)
	})
}
