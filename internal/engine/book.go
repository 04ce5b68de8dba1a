package engine

import (
	"time"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
)

// OrderBook owns the resting interest of a single instrument. Both sides are
// price-level trees with FIFO queues per level, giving O(log n) rest
// insertion and O(1) access to the best level.
//
// The book is not safe for concurrent use; Engine serializes access to it.
type OrderBook struct {
	bids *priceLevels
	asks *priceLevels

	// Identity index across both sides. An id may rest at most once.
	resident map[uint64]common.Side

	// Some book keeping
	nBids       uint64 // Number of resting bids.
	nAsks       uint64 // Number of resting asks.
	bidQuantity uint64 // Bid-side liquidity.
	askQuantity uint64 // Ask-side liquidity.
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:     newBidLevels(),
		asks:     newAskLevels(),
		resident: make(map[uint64]common.Side),
	}
}

// Submit runs the matching algorithm for one incoming order and returns the
// resulting trades in execution order. The order sweeps the opposite side
// best price first while it crosses; any unfilled remainder rests on its own
// side behind earlier orders at the same price. Exactly one of the following
// holds when Submit returns: the order traded away completely, or its
// remainder is resting, or it rested untouched.
func (book *OrderBook) Submit(order *Order) []common.Trade {
	trades := book.match(order)
	if order.quantity > 0 {
		book.rest(order)
	}
	book.assertUncrossed()
	return trades
}

// match consumes opposite-side orders while the incoming order still has
// quantity and the best opposite price crosses it. Resting orders within a
// level are consumed oldest first; a level emptied by the sweep is removed
// before the next one is considered.
//
// Every trade executes at the resting order's price. The incoming order
// never improves or worsens a maker's price, it only decides how much of it
// is taken.
func (book *OrderBook) match(taker *Order) []common.Trade {
	opposite := book.asks
	if taker.side == common.Sell {
		opposite = book.bids
	}

	var trades []common.Trade
	for taker.quantity > 0 {
		level, ok := opposite.MinMut()
		if !ok || !book.crosses(taker, level) {
			break
		}

		for len(level.orders) > 0 && taker.quantity > 0 {
			maker := level.orders[0]

			matchQty := min(taker.quantity, maker.quantity)
			taker.reduce(matchQty)
			maker.reduce(matchQty)

			trades = append(trades, common.Trade{
				Price:     maker.price,
				Quantity:  matchQty,
				TakerID:   taker.id,
				MakerID:   maker.id,
				Timestamp: time.Now(),
			})
			book.recordFill(maker.side, matchQty)

			if maker.quantity == 0 {
				// Fully filled makers leave the book immediately.
				level.orders[0] = nil
				level.orders = level.orders[1:]
				delete(book.resident, maker.id)
				book.recordRemoval(maker.side)
			}
		}

		if len(level.orders) == 0 {
			opposite.Delete(level)
		}
	}
	return trades
}

// crosses reports whether the incoming order is willing to trade against the
// given opposite-side level. Equality trades: a buy at exactly the best ask
// executes rather than resting side by side with it.
func (book *OrderBook) crosses(taker *Order, opposite *priceLevel) bool {
	if taker.side == common.Buy {
		return opposite.price.LessThanOrEqual(taker.price)
	}
	return opposite.price.GreaterThanOrEqual(taker.price)
}

// rest inserts the order remainder on its own side, after all existing
// orders at the same price.
func (book *OrderBook) rest(order *Order) {
	_, taken := book.resident[order.id]
	invariant(!taken, "order id %d already resting in the book", order.id)

	levels := book.bids
	if order.side == common.Sell {
		levels = book.asks
	}

	// The comparator only looks at price, so a bare level works as the
	// search key.
	level, ok := levels.GetMut(&priceLevel{price: order.price})
	if ok {
		level.orders = append(level.orders, order)
	} else {
		levels.Set(&priceLevel{
			price:  order.price,
			orders: []*Order{order},
		})
	}

	book.resident[order.id] = order.side
	book.recordRest(order.side, order.quantity)
}

// Snapshot copies both sides for external reporting, best price first on
// each side and arrival order within a price. The book is not mutated.
func (book *OrderBook) Snapshot() common.Snapshot {
	flatten := func(levels *priceLevels, n uint64) []common.BookEntry {
		entries := make([]common.BookEntry, 0, n)
		levels.Scan(func(level *priceLevel) bool {
			for _, o := range level.orders {
				entries = append(entries, common.BookEntry{
					ID:       o.id,
					Price:    o.price,
					Quantity: o.quantity,
				})
			}
			return true
		})
		return entries
	}

	return common.Snapshot{
		Bids: flatten(book.bids, book.nBids),
		Asks: flatten(book.asks, book.nAsks),
	}
}

// Depth returns the number of resting orders and the total liquidity on each
// side.
func (book *OrderBook) Depth() (nBids, nAsks, bidQuantity, askQuantity uint64) {
	return book.nBids, book.nAsks, book.bidQuantity, book.askQuantity
}

func (book *OrderBook) recordRest(side common.Side, quantity uint64) {
	if side == common.Buy {
		book.nBids++
		book.bidQuantity += quantity
	} else {
		book.nAsks++
		book.askQuantity += quantity
	}
}

func (book *OrderBook) recordFill(makerSide common.Side, quantity uint64) {
	if makerSide == common.Buy {
		book.bidQuantity -= quantity
	} else {
		book.askQuantity -= quantity
	}
}

func (book *OrderBook) recordRemoval(makerSide common.Side) {
	if makerSide == common.Buy {
		book.nBids--
	} else {
		book.nAsks--
	}
}

// assertUncrossed checks the post-condition of every submission: whenever
// both sides are non-empty, the best bid is strictly below the best ask. A
// crossed book means the matching loop let an order rest that should have
// traded.
func (book *OrderBook) assertUncrossed() {
	bestBid, bidOk := book.bids.Min()
	bestAsk, askOk := book.asks.Min()
	if !bidOk || !askOk {
		return
	}
	invariant(bestBid.price.LessThan(bestAsk.price),
		"book crossed: best bid %s >= best ask %s",
		bestBid.price.String(), bestAsk.price.String())
}
