// Package orders assembles orders from carts or explicit item lists,
// reconciles their totals, and drives the order lifecycle state machine.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/internal/addresses"
	"github.com/partsdepot/partsdepot-backend/internal/cart"
	"github.com/partsdepot/partsdepot-backend/internal/catalog"
	"github.com/partsdepot/partsdepot-backend/internal/stock"
	"github.com/partsdepot/partsdepot-backend/pkg/clock"
	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
	"github.com/partsdepot/partsdepot-backend/pkg/metrics"
	"github.com/partsdepot/partsdepot-backend/pkg/pagination"
	"github.com/partsdepot/partsdepot-backend/pkg/refs"
)

type Service struct {
	txRunner  TxRunner
	repo      Repository
	catalog   catalog.Repository
	carts     cart.Repository
	addresses addresses.Repository
	stock     *stock.Validator
	refs      refs.Generator
	clock     clock.Clock
	machine   *StateMachine
	currency  enums.Currency
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
}

type ServiceParams struct {
	TxRunner  TxRunner
	Repo      Repository
	Catalog   catalog.Repository
	Carts     cart.Repository
	Addresses addresses.Repository
	Stock     *stock.Validator
	Clock     clock.Clock
	Currency  enums.Currency
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.TxRunner == nil:
		return nil, fmt.Errorf("tx runner is required")
	case p.Repo == nil:
		return nil, fmt.Errorf("repository is required")
	case p.Catalog == nil:
		return nil, fmt.Errorf("catalog repository is required")
	case p.Carts == nil:
		return nil, fmt.Errorf("cart repository is required")
	case p.Addresses == nil:
		return nil, fmt.Errorf("address repository is required")
	case p.Stock == nil:
		return nil, fmt.Errorf("stock validator is required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	if p.Clock == nil {
		p.Clock = clock.System()
	}
	if !p.Currency.IsValid() {
		p.Currency = enums.CurrencySAR
	}

	return &Service{
		txRunner:  p.TxRunner,
		repo:      p.Repo,
		catalog:   p.Catalog,
		carts:     p.Carts,
		addresses: p.Addresses,
		stock:     p.Stock,
		refs:      refs.NewGenerator(),
		clock:     p.Clock,
		machine:   NewStateMachine(p.Clock),
		currency:  p.Currency,
		metrics:   p.Metrics,
		logg:      p.Logger,
	}, nil
}

// GetByID loads an order the caller owns.
func (s *Service) GetByID(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
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

// ListByUser returns the caller's orders, newest first, with a cursor for the
// next page.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}
	return rows, next, nil
}

// Cancel drives the caller's order to cancelled. Cancelling after the payment
// decrement puts the units back on the shelf.
func (s *Service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.findForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if loaded.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if err := s.ApplyEvent(ctx, tx, loaded, EventCancel); err != nil {
			return err
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "order cancelled")
	return order, nil
}

// MarkShipped moves a processing order to shipped. Fulfilment tooling calls
// this; there is no ownership check.
func (s *Service) MarkShipped(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.transition(ctx, orderID, EventShip)
}

// MarkDelivered closes out a shipped order.
func (s *Service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.transition(ctx, orderID, EventDeliver)
}

// StartProcessing moves a paid order into fulfilment.
func (s *Service) StartProcessing(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.transition(ctx, orderID, EventStartProcessing)
}

func (s *Service) transition(ctx context.Context, orderID uuid.UUID, event Event) (*models.Order, error) {
	var order *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.findForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := s.ApplyEvent(ctx, tx, loaded, event); err != nil {
			return err
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ApplyEvent runs one state-machine transition and its inventory side
// effects inside the caller's transaction. Confirming payment performs the
// authoritative guarded stock decrement; cancel-after-payment and refund put
// the decremented units back.
func (s *Service) ApplyEvent(ctx context.Context, tx *gorm.DB, order *models.Order, event Event) error {
	from := order.Status
	if err := s.machine.Apply(order, event); err != nil {
		return err
	}

	switch {
	case event == EventConfirmPayment:
		for _, item := range order.Items {
			if err := stock.Decrement(ctx, tx, item.PartID, item.Quantity); err != nil {
				return err
			}
		}

	case event == EventCancel && RestoresStockOnCancel(from):
		for _, item := range order.Items {
			if err := stock.Restore(ctx, tx, item.PartID, item.Quantity); err != nil {
				return err
			}
		}

	case event == EventRefund:
		for _, item := range order.Items {
			if err := stock.Restore(ctx, tx, item.PartID, item.Quantity); err != nil {
				return err
			}
		}
	}

	if err := s.repo.WithTx(tx).SaveStatus(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving order status")
	}
	return nil
}

func (s *Service) findForUpdate(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}
