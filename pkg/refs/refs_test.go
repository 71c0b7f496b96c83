package refs

import (
	"regexp"
	"testing"
	"time"
)

func TestReferenceFormats(t *testing.T) {
	t.Parallel()

	gen := NewGenerator()
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	order, err := gen.OrderNumber(at)
	if err != nil {
		t.Fatalf("order number: %v", err)
	}
	if !regexp.MustCompile(`^ORD-20260314-\d{5}$`).MatchString(order) {
		t.Fatalf("unexpected order number %q", order)
	}

	txn, err := gen.TransactionRef(at)
	if err != nil {
		t.Fatalf("transaction ref: %v", err)
	}
	if !regexp.MustCompile(`^TXN-20260314-\d{5}$`).MatchString(txn) {
		t.Fatalf("unexpected transaction ref %q", txn)
	}
}

func TestDatePartUsesUTC(t *testing.T) {
	t.Parallel()

	gen := NewGenerator()
	// 23:30 in UTC+3 is already the next day in local time but not in UTC.
	loc := time.FixedZone("AST", 3*60*60)
	at := time.Date(2026, 3, 15, 1, 30, 0, 0, loc)

	order, err := gen.OrderNumber(at)
	if err != nil {
		t.Fatalf("order number: %v", err)
	}
	if order[4:12] != "20260314" {
		t.Fatalf("expected UTC date part 20260314, got %q", order)
	}
}
