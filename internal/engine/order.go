package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
)

var ErrInvalidOrder = errors.New("invalid order")

// Order is one trading intent. Identity, price and side are fixed at
// construction; only the remaining quantity changes, and only through the
// matching loop.
type Order struct {
	id       uint64
	price    decimal.Decimal
	quantity uint64
	side     common.Side
}

// NewOrder validates and constructs an order intent. Price and quantity must
// both be strictly positive; anything else is rejected before it can touch
// book state.
func NewOrder(id uint64, price decimal.Decimal, quantity uint64, side common.Side) (*Order, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price %s must be positive", ErrInvalidOrder, price.String())
	}
	if quantity == 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	return &Order{
		id:       id,
		price:    price,
		quantity: quantity,
		side:     side,
	}, nil
}

func (o *Order) ID() uint64             { return o.id }
func (o *Order) Price() decimal.Decimal { return o.price }
func (o *Order) Quantity() uint64       { return o.quantity }
func (o *Order) Side() common.Side      { return o.side }

// reduce decreases the remaining quantity by amount. A reduction of zero or
// past zero means the matching loop computed a bad fill size, which is an
// algorithm defect rather than bad input.
func (o *Order) reduce(amount uint64) {
	invariant(amount > 0 && amount <= o.quantity,
		"order %d: reduce %d with %d remaining", o.id, amount, o.quantity)
	o.quantity -= amount
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %d @ %s (id %d)", o.side, o.quantity, o.price.String(), o.id)
}
