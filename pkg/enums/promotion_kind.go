package enums

import "fmt"

// PromotionKind distinguishes percent-off from fixed-amount promotions.
type PromotionKind string

const (
	PromotionKindPercent PromotionKind = "percent"
	PromotionKindFixed   PromotionKind = "fixed"
)

var validPromotionKinds = []PromotionKind{
	PromotionKindPercent,
	PromotionKindFixed,
}

// String implements fmt.Stringer.
func (p PromotionKind) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PromotionKind.
func (p PromotionKind) IsValid() bool {
	for _, candidate := range validPromotionKinds {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePromotionKind converts raw input into a PromotionKind.
func ParsePromotionKind(value string) (PromotionKind, error) {
	for _, candidate := range validPromotionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid promotion kind %q", value)
}
