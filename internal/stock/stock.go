// Package stock validates and adjusts catalog inventory. Validation is a
// point-in-time gate used at order assembly; the authoritative decrement
// happens on payment confirmation through a guarded conditional update, so a
// stale validation can never drive stock negative.
package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/logger"
)

// Request asks for a quantity of one part.
type Request struct {
	PartID   uuid.UUID
	Quantity int
}

// Violation reports why a single request cannot be satisfied.
type Violation struct {
	PartID    uuid.UUID `json:"part_id"`
	Reason    string    `json:"reason"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

const (
	ReasonNotFound     = "part_not_found"
	ReasonUnavailable  = "part_unavailable"
	ReasonInsufficient = "insufficient_stock"
)

type Validator struct {
	logg *logger.Logger
}

func NewValidator(logg *logger.Logger) (*Validator, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Validator{logg: logg}, nil
}

// Validate checks every request against live inventory and reports all
// violations together rather than failing on the first. No locks are taken.
func (v *Validator) Validate(ctx context.Context, tx *gorm.DB, requests []Request) error {
	if len(requests) == 0 {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "no items to validate")
	}
	for _, req := range requests {
		if req.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("quantity %d for part %s must be positive", req.Quantity, req.PartID))
		}
	}

	ids := make([]uuid.UUID, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.PartID)
	}

	var parts []models.CarPart
	if err := tx.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&parts).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading parts for stock validation")
	}

	byID := make(map[uuid.UUID]*models.CarPart, len(parts))
	for i := range parts {
		byID[parts[i].ID] = &parts[i]
	}

	var violations []Violation
	var agg error
	for _, req := range requests {
		part, ok := byID[req.PartID]
		switch {
		case !ok:
			violations = append(violations, Violation{PartID: req.PartID, Reason: ReasonNotFound, Requested: req.Quantity})
			agg = multierr.Append(agg, fmt.Errorf("part %s not found", req.PartID))

		case !part.Sellable():
			violations = append(violations, Violation{PartID: req.PartID, Reason: ReasonUnavailable, Requested: req.Quantity})
			agg = multierr.Append(agg, fmt.Errorf("part %s not sellable", req.PartID))

		case part.StockQty < req.Quantity:
			violations = append(violations, Violation{
				PartID:    req.PartID,
				Reason:    ReasonInsufficient,
				Requested: req.Quantity,
				Available: part.StockQty,
			})
			agg = multierr.Append(agg, fmt.Errorf("part %s has %d of %d requested", req.PartID, part.StockQty, req.Quantity))
		}
	}

	if len(violations) == 0 {
		return nil
	}

	v.logg.Warn(v.logg.WithField(ctx, "violations", len(violations)), "stock validation failed")
	return pkgerrors.Wrap(pkgerrors.CodeBusinessRule, agg, "stock validation failed").
		WithDetails(map[string]any{"violations": violations})
}

// Decrement subtracts qty from a part's stock with a stock_qty >= qty guard.
// A missed guard means a concurrent confirmation consumed the remaining units
// after this order was validated.
func Decrement(ctx context.Context, tx *gorm.DB, partID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "decrement quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.CarPart{}).
		Where("id = ? AND stock_qty >= ?", partID, qty).
		UpdateColumn("stock_qty", gorm.Expr("stock_qty - ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "decrementing stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("part %s no longer has %d units available", partID, qty))
	}
	return nil
}

// Restore adds qty back to a part's stock. Delisted parts still get their
// units back so a later relisting starts from a correct count.
func Restore(ctx context.Context, tx *gorm.DB, partID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "restore quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.CarPart{}).
		Unscoped().
		Where("id = ?", partID).
		UpdateColumn("stock_qty", gorm.Expr("stock_qty + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "restoring stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("part %s not found", partID))
	}
	return nil
}
