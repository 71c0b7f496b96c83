package refs

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	orderPrefix       = "ORD"
	transactionPrefix = "TXN"
	suffixModulus     = 100000
)

// Generator produces human-readable order and transaction references of the
// form PREFIX-YYYYMMDD-NNNNN. The 5-digit suffix is drawn from crypto/rand;
// uniqueness is still enforced by a database constraint, and callers retry on
// conflict (see MaxAttempts).
type Generator struct{}

// MaxAttempts bounds the retry loop callers run when a generated reference
// collides with an existing row.
const MaxAttempts = 5

func NewGenerator() Generator {
	return Generator{}
}

// OrderNumber returns a new ORD-YYYYMMDD-NNNNN reference for the given day.
func (g Generator) OrderNumber(now time.Time) (string, error) {
	return g.build(orderPrefix, now)
}

// TransactionRef returns a new TXN-YYYYMMDD-NNNNN reference for the given day.
func (g Generator) TransactionRef(now time.Time) (string, error) {
	return g.build(transactionPrefix, now)
}

func (g Generator) build(prefix string, now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(suffixModulus))
	if err != nil {
		return "", fmt.Errorf("generating reference suffix: %w", err)
	}
	return fmt.Sprintf("%s-%s-%05d", prefix, now.UTC().Format("20060102"), n.Int64()), nil
}
