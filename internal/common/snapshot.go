package common

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BookEntry is one resting order as seen by an external observer.
type BookEntry struct {
	ID       uint64
	Price    decimal.Decimal
	Quantity uint64
}

// Snapshot is a point-in-time copy of both book sides. Asks are ordered
// ascending by price then arrival, bids descending by price then arrival,
// so index 0 on each side is the best price.
type Snapshot struct {
	Bids []BookEntry
	Asks []BookEntry
}

func (s Snapshot) String() string {
	var sb strings.Builder
	sb.WriteString("--- ASKS ---\n")
	for _, e := range s.Asks {
		fmt.Fprintf(&sb, "ID: %d\tPrice: %s\tQty: %d\n", e.ID, e.Price.String(), e.Quantity)
	}
	sb.WriteString("--- BIDS ---\n")
	for _, e := range s.Bids {
		fmt.Fprintf(&sb, "ID: %d\tPrice: %s\tQty: %d\n", e.ID, e.Price.String(), e.Quantity)
	}
	return sb.String()
}
