package money

import (
	"fmt"

	"github.com/partsdepot/partsdepot-backend/pkg/enums"
	pkgerrors "github.com/partsdepot/partsdepot-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Amount is a currency-tagged, non-negative monetary value. Every derived
// total in the order pipeline flows through this type so the arithmetic stays
// fixed-point end to end.
type Amount struct {
	value    decimal.Decimal
	currency enums.Currency
}

// Zero returns a zero amount in the given currency.
func Zero(currency enums.Currency) Amount {
	return Amount{value: decimal.Zero, currency: currency}
}

// New builds an Amount from a decimal value, rejecting negatives and unknown
// currencies.
func New(value decimal.Decimal, currency enums.Currency) (Amount, error) {
	if !currency.IsValid() {
		return Amount{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", currency))
	}
	if value.IsNegative() {
		return Amount{}, pkgerrors.New(pkgerrors.CodeValidation, "monetary amount cannot be negative")
	}
	return Amount{value: value, currency: currency}, nil
}

// NewFromString parses a decimal string into an Amount.
func NewFromString(value string, currency enums.Currency) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid monetary amount")
	}
	return New(d, currency)
}

// MustNew is a test/fixture helper that panics on invalid input.
func MustNew(value string, currency enums.Currency) Amount {
	a, err := NewFromString(value, currency)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

func (a Amount) Currency() enums.Currency {
	return a.currency
}

func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// Add returns a + b, requiring matching currencies.
func (a Amount) Add(b Amount) (Amount, error) {
	if err := a.sameCurrency(b); err != nil {
		return Amount{}, err
	}
	return Amount{value: a.value.Add(b.value), currency: a.currency}, nil
}

// Sub returns a - b. A negative result is rejected: discounts can never
// exceed what they discount.
func (a Amount) Sub(b Amount) (Amount, error) {
	if err := a.sameCurrency(b); err != nil {
		return Amount{}, err
	}
	result := a.value.Sub(b.value)
	if result.IsNegative() {
		return Amount{}, pkgerrors.New(pkgerrors.CodeBusinessRule, "amount subtraction would go negative")
	}
	return Amount{value: result, currency: a.currency}, nil
}

// MulInt returns a multiplied by a non-negative integer quantity.
func (a Amount) MulInt(qty int) (Amount, error) {
	if qty < 0 {
		return Amount{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	return Amount{value: a.value.Mul(decimal.NewFromInt(int64(qty))), currency: a.currency}, nil
}

// Cmp compares two amounts; currencies must match or the comparison is
// meaningless, so mismatches error.
func (a Amount) Cmp(b Amount) (int, error) {
	if err := a.sameCurrency(b); err != nil {
		return 0, err
	}
	return a.value.Cmp(b.value), nil
}

func (a Amount) Equal(b Amount) bool {
	return a.currency == b.currency && a.value.Equal(b.value)
}

// GatewayString renders the amount with exactly two decimal places in a
// locale-invariant form. The webhook signature concatenates this rendering,
// so it must match the gateway byte for byte.
func (a Amount) GatewayString() string {
	return a.value.StringFixed(2)
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.value.String(), a.currency)
}

func (a Amount) sameCurrency(b Amount) error {
	if a.currency != b.currency {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("currency mismatch: %s vs %s", a.currency, b.currency))
	}
	return nil
}
