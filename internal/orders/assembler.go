package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/internal/pricing"
	"github.com/partsdepot/partsdepot-backend/internal/stock"
	"github.com/partsdepot/partsdepot-backend/pkg/db"
	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/money"
	"github.com/partsdepot/partsdepot-backend/pkg/refs"
)

// LineRequest asks for a quantity of one part on a new order.
type LineRequest struct {
	PartID   uuid.UUID
	Quantity int
}

const (
	sourceDirect = "direct"
	sourceCart   = "cart"
)

// CreateDirect assembles an order from an explicit item list. The whole
// assembly, including the final totals reconciliation, runs in one
// transaction.
func (s *Service) CreateDirect(ctx context.Context, userID, addressID uuid.UUID, lines []LineRequest) (*models.Order, error) {
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		order, err = s.assemble(ctx, tx, userID, addressID, merged, sourceDirect)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOrderCreated(sourceDirect)
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")
	return order, nil
}

// CreateFromCart assembles an order from the user's active cart and marks the
// cart converted in the same transaction.
func (s *Service) CreateFromCart(ctx context.Context, userID, addressID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := s.carts.WithTx(tx).FindActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "cart is empty")
		}

		lines := make([]LineRequest, 0, len(record.Items))
		for _, item := range record.Items {
			lines = append(lines, LineRequest{PartID: item.PartID, Quantity: item.Quantity})
		}
		merged, err := mergeLines(lines)
		if err != nil {
			return err
		}

		order, err = s.assemble(ctx, tx, userID, addressID, merged, sourceCart)
		if err != nil {
			return err
		}
		return s.carts.WithTx(tx).MarkConverted(ctx, record.ID, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncOrderCreated(sourceCart)
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created from cart")
	return order, nil
}

func (s *Service) assemble(ctx context.Context, tx *gorm.DB, userID, addressID uuid.UUID, lines []LineRequest, source string) (*models.Order, error) {
	if _, err := s.addresses.WithTx(tx).FindByIDForUser(ctx, addressID, userID); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(lines))
	requests := make([]stock.Request, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.PartID)
		requests = append(requests, stock.Request{PartID: line.PartID, Quantity: line.Quantity})
	}

	parts, err := s.catalog.WithTx(tx).FindPartsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading parts")
	}
	partsByID := make(map[uuid.UUID]*models.CarPart, len(parts))
	for i := range parts {
		partsByID[parts[i].ID] = &parts[i]
	}
	if source == sourceDirect {
		for _, line := range lines {
			if _, ok := partsByID[line.PartID]; !ok {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("part %s not found", line.PartID))
			}
		}
	}

	if err := s.stock.Validate(ctx, tx, requests); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	items := make([]models.OrderItem, 0, len(lines))
	subtotal := money.Zero(s.currency)
	discountTotal := money.Zero(s.currency)

	for _, line := range lines {
		part := partsByID[line.PartID]
		item, lineSubtotal, lineDiscount, err := s.snapshotLine(part, line.Quantity, now)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)

		if subtotal, err = subtotal.Add(lineSubtotal); err != nil {
			return nil, err
		}
		if discountTotal, err = discountTotal.Add(lineDiscount); err != nil {
			return nil, err
		}
	}

	total, err := subtotal.Sub(discountTotal)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID:        userID,
		AddressID:     addressID,
		Status:        enums.OrderStatusPending,
		Currency:      s.currency,
		Subtotal:      subtotal.Decimal(),
		DiscountTotal: discountTotal.Decimal(),
		Total:         total.Decimal(),
		Items:         items,
	}
	if err := s.createWithUniqueNumber(ctx, tx, order, now); err != nil {
		return nil, err
	}

	if err := s.ReconcileTotals(ctx, tx, order.ID); err != nil {
		return nil, err
	}
	return s.reload(ctx, tx, order.ID)
}

// snapshotLine freezes one part into an order item using the shared pricing
// resolver, so order snapshots can never drift from cart quotes.
func (s *Service) snapshotLine(part *models.CarPart, quantity int, now time.Time) (*models.OrderItem, money.Amount, money.Amount, error) {
	zero := money.Zero(s.currency)

	unitPrice, err := money.New(part.UnitPrice, s.currency)
	if err != nil {
		return nil, zero, zero, err
	}
	quote, err := pricing.Resolve(unitPrice, part.DiscountPercent, part.Promotion, now)
	if err != nil {
		return nil, zero, zero, err
	}

	lineSubtotal, err := unitPrice.MulInt(quantity)
	if err != nil {
		return nil, zero, zero, err
	}
	lineDiscount, err := quote.DiscountPerUnit.MulInt(quantity)
	if err != nil {
		return nil, zero, zero, err
	}
	lineTotal, err := lineSubtotal.Sub(lineDiscount)
	if err != nil {
		return nil, zero, zero, err
	}

	item := &models.OrderItem{
		PartID:          part.ID,
		PartNumber:      part.PartNumber,
		PartName:        part.Name,
		UnitPrice:       part.UnitPrice,
		DiscountPercent: part.DiscountPercent,
		Quantity:        quantity,
		FinalPrice:      quote.FinalUnitPrice.Decimal(),
		Subtotal:        lineSubtotal.Decimal(),
		DiscountAmount:  lineDiscount.Decimal(),
		Total:           lineTotal.Decimal(),
	}
	if len(part.ImageURLs) > 0 {
		image := part.ImageURLs[0]
		item.PartImageURL = &image
	}
	if quote.Promotion != nil {
		promoID := quote.Promotion.ID
		promoName := quote.Promotion.Name
		promoKind := quote.Promotion.Kind
		promoValue := quote.Promotion.Value
		item.PromotionID = &promoID
		item.PromotionName = &promoName
		item.PromotionKind = &promoKind
		item.PromotionValue = &promoValue
	}
	return item, lineSubtotal, lineDiscount, nil
}

// createWithUniqueNumber inserts the order, regenerating the order number on
// a uniqueness conflict.
func (s *Service) createWithUniqueNumber(ctx context.Context, tx *gorm.DB, order *models.Order, now time.Time) error {
	repo := s.repo.WithTx(tx)

	var lastErr error
	for attempt := 0; attempt < refs.MaxAttempts; attempt++ {
		number, err := s.refs.OrderNumber(now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating order number")
		}
		order.OrderNumber = number

		lastErr = repo.Create(ctx, order)
		if lastErr == nil {
			return nil
		}
		if !db.IsUniqueViolation(lastErr, "order_number") {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, lastErr, "creating order")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, lastErr, "could not allocate a unique order number")
}

// ReconcileTotals re-sums the persisted line items and overwrites the order
// header. This pass is authoritative and runs on every assembly regardless of
// how the items were produced.
func (s *Service) ReconcileTotals(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)

	subtotal, discount, err := repo.SumItems(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing order items")
	}
	if discount.GreaterThan(subtotal) {
		return pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("order %s discount %s exceeds subtotal %s", orderID, discount, subtotal))
	}

	total := subtotal.Sub(discount)
	if err := repo.UpdateTotals(ctx, orderID, subtotal, discount, total); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order totals")
	}
	return nil
}

func (s *Service) reload(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order")
	}
	return order, nil
}

func mergeLines(lines []LineRequest) ([]LineRequest, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "order must contain at least one item")
	}

	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]LineRequest, 0, len(lines))
	for _, line := range lines {
		if line.PartID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "part id is required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("quantity %d for part %s must be positive", line.Quantity, line.PartID))
		}
		if at, ok := index[line.PartID]; ok {
			merged[at].Quantity += line.Quantity
			continue
		}
		index[line.PartID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}
