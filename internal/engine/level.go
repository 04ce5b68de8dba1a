package engine

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// priceLevel holds all resting orders at one price, sorted by time added as
// they are appended on arrival. The head of the slice is the oldest order and
// always matches first.
type priceLevel struct {
	price  decimal.Decimal
	orders []*Order
}

type priceLevels = btree.BTreeG[*priceLevel]

// Sorted greatest first, so Min() is the best bid.
func newBidLevels() *priceLevels {
	return btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price.GreaterThan(b.price)
	})
}

// Sorted least first, so Min() is the best ask.
func newAskLevels() *priceLevels {
	return btree.NewBTreeG(func(a, b *priceLevel) bool {
		return a.price.LessThan(b.price)
	})
}
