package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one execution between an incoming (taker) order and a resting
// (maker) order. Price is always the maker's price.
type Trade struct {
	Price     decimal.Decimal
	Quantity  uint64
	TakerID   uint64
	MakerID   uint64
	Timestamp time.Time
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"%d @ %s (taker: %d, maker: %d)",
		t.Quantity,
		t.Price.String(),
		t.TakerID,
		t.MakerID,
	)
}
