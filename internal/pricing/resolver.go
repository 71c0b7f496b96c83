// Package pricing computes the effective unit price for a catalog part. Cart
// quoting and order snapshotting both call Resolve, so every pricing rule
// lives here and nowhere else.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partsdepot/partsdepot-backend/pkg/db/models"
	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/partsdepot/partsdepot-backend/pkg/money"
)

var oneHundred = decimal.NewFromInt(100)

// Quote is the resolved price for one unit of a part.
type Quote struct {
	FinalUnitPrice  money.Amount
	DiscountPerUnit money.Amount

	// Promotion is set only when the promotion produced the discount. A
	// direct part discount leaves it nil even if the part references an
	// active promotion.
	Promotion *models.Promotion
}

// Resolve applies the discount rules to a single unit price. A direct part
// discount always wins; an active promotion only applies when the part
// carries no direct discount. Fixed promotions never push the price below
// zero.
func Resolve(unitPrice money.Amount, discountPercent int, promo *models.Promotion, now time.Time) (Quote, error) {
	if discountPercent < 0 || discountPercent > 100 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("discount percent %d outside [0,100]", discountPercent))
	}

	if discountPercent > 0 {
		discount, err := percentOf(unitPrice, decimal.NewFromInt(int64(discountPercent)))
		if err != nil {
			return Quote{}, err
		}
		final, err := unitPrice.Sub(discount)
		if err != nil {
			return Quote{}, err
		}
		return Quote{FinalUnitPrice: final, DiscountPerUnit: discount}, nil
	}

	if !promo.IsActiveAt(now) {
		return Quote{
			FinalUnitPrice:  unitPrice,
			DiscountPerUnit: money.Zero(unitPrice.Currency()),
		}, nil
	}

	switch promo.Kind {
	case enums.PromotionKindPercent:
		if promo.Value.IsNegative() || promo.Value.GreaterThan(oneHundred) {
			return Quote{}, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("promotion %s percent value %s outside [0,100]", promo.ID, promo.Value))
		}
		discount, err := percentOf(unitPrice, promo.Value)
		if err != nil {
			return Quote{}, err
		}
		final, err := unitPrice.Sub(discount)
		if err != nil {
			return Quote{}, err
		}
		return Quote{FinalUnitPrice: final, DiscountPerUnit: discount, Promotion: promo}, nil

	case enums.PromotionKindFixed:
		if promo.Value.IsNegative() {
			return Quote{}, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("promotion %s fixed value cannot be negative", promo.ID))
		}
		// Floor at zero: a fixed discount larger than the price caps at
		// the price itself.
		value := promo.Value
		if value.GreaterThan(unitPrice.Decimal()) {
			value = unitPrice.Decimal()
		}
		discount, err := money.New(value, unitPrice.Currency())
		if err != nil {
			return Quote{}, err
		}
		final, err := unitPrice.Sub(discount)
		if err != nil {
			return Quote{}, err
		}
		return Quote{FinalUnitPrice: final, DiscountPerUnit: discount, Promotion: promo}, nil

	default:
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unknown promotion kind %q", promo.Kind))
	}
}

func percentOf(amount money.Amount, percent decimal.Decimal) (money.Amount, error) {
	value := amount.Decimal().Mul(percent).Div(oneHundred).Round(2)
	return money.New(value, amount.Currency())
}
