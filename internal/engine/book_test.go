package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
	"github.com/dim-str/TheLimitOrderBook/internal/engine"
)

// --- Setup & Helpers --------------------------------------------------------

func submit(t *testing.T, book *engine.OrderBook, id uint64, price string, qty uint64, side common.Side) []common.Trade {
	t.Helper()
	order, err := engine.NewOrder(id, decimal.RequireFromString(price), qty, side)
	require.NoError(t, err)
	return book.Submit(order)
}

func entry(id uint64, price string, qty uint64) common.BookEntry {
	return common.BookEntry{
		ID:       id,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	}
}

func assertEntries(t *testing.T, expected, actual []common.BookEntry) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.Equal(t, expected[i].ID, actual[i].ID, "entry %d id", i)
		assert.True(t, expected[i].Price.Equal(actual[i].Price),
			"entry %d price: want %s, got %s", i, expected[i].Price, actual[i].Price)
		assert.Equal(t, expected[i].Quantity, actual[i].Quantity, "entry %d quantity", i)
	}
}

func assertTrade(t *testing.T, trade common.Trade, price string, qty, takerID, makerID uint64) {
	t.Helper()
	assert.True(t, trade.Price.Equal(decimal.RequireFromString(price)),
		"trade price: want %s, got %s", price, trade.Price)
	assert.Equal(t, qty, trade.Quantity, "trade quantity")
	assert.Equal(t, takerID, trade.TakerID, "taker id")
	assert.Equal(t, makerID, trade.MakerID, "maker id")
}

// buildLadder seeds the book used by the sweep tests: three asks at 100, 101
// and 102, and two bids at 98 and 97. None of them cross.
func buildLadder(t *testing.T) *engine.OrderBook {
	t.Helper()
	book := engine.NewOrderBook()
	assert.Empty(t, submit(t, book, 101, "100", 10, common.Sell))
	assert.Empty(t, submit(t, book, 102, "101", 20, common.Sell))
	assert.Empty(t, submit(t, book, 103, "102", 50, common.Sell))
	assert.Empty(t, submit(t, book, 201, "98", 10, common.Buy))
	assert.Empty(t, submit(t, book, 202, "97", 20, common.Buy))
	return book
}

// --- Tests ------------------------------------------------------------------

func TestSubmit_RestingLadder(t *testing.T) {
	book := buildLadder(t)
	snapshot := book.Snapshot()

	assertEntries(t, []common.BookEntry{
		entry(101, "100", 10),
		entry(102, "101", 20),
		entry(103, "102", 50),
	}, snapshot.Asks)
	assertEntries(t, []common.BookEntry{
		entry(201, "98", 10),
		entry(202, "97", 20),
	}, snapshot.Bids)
}

func TestSubmit_MultiLevelSweep_Buy(t *testing.T) {
	book := buildLadder(t)

	// Buyer 301 lifts the whole 100 and 101 levels and part of 102. Trades
	// come out best level first, each at the maker's price.
	trades := submit(t, book, 301, "102", 35, common.Buy)
	require.Len(t, trades, 3)
	assertTrade(t, trades[0], "100", 10, 301, 101)
	assertTrade(t, trades[1], "101", 20, 301, 102)
	assertTrade(t, trades[2], "102", 5, 301, 103)

	// Fully filled, so order 301 must not rest.
	snapshot := book.Snapshot()
	assertEntries(t, []common.BookEntry{entry(103, "102", 45)}, snapshot.Asks)
	assertEntries(t, []common.BookEntry{
		entry(201, "98", 10),
		entry(202, "97", 20),
	}, snapshot.Bids)
}

func TestSubmit_MultiLevelSweep_Sell(t *testing.T) {
	book := buildLadder(t)
	submit(t, book, 301, "102", 35, common.Buy)

	// Seller 401 dumps below the best bid and walks down the bid ladder.
	trades := submit(t, book, 401, "95", 15, common.Sell)
	require.Len(t, trades, 2)
	assertTrade(t, trades[0], "98", 10, 401, 201)
	assertTrade(t, trades[1], "97", 5, 401, 202)

	snapshot := book.Snapshot()
	assertEntries(t, []common.BookEntry{entry(202, "97", 15)}, snapshot.Bids)
	assertEntries(t, []common.BookEntry{entry(103, "102", 45)}, snapshot.Asks)
}

func TestSubmit_EmptyBookRests(t *testing.T) {
	book := engine.NewOrderBook()

	trades := submit(t, book, 1, "10", 5, common.Buy)
	assert.Empty(t, trades)

	snapshot := book.Snapshot()
	assertEntries(t, []common.BookEntry{entry(1, "10", 5)}, snapshot.Bids)
	assert.Empty(t, snapshot.Asks)
}

func TestSubmit_TimePriorityAtEqualPrice(t *testing.T) {
	book := engine.NewOrderBook()
	submit(t, book, 1, "50", 5, common.Buy)
	submit(t, book, 2, "50", 5, common.Buy)

	// Both bids sit at 50; the earlier one must be consumed first and
	// completely before the later one is touched.
	trades := submit(t, book, 3, "50", 7, common.Sell)
	require.Len(t, trades, 2)
	assertTrade(t, trades[0], "50", 5, 3, 1)
	assertTrade(t, trades[1], "50", 2, 3, 2)

	snapshot := book.Snapshot()
	assertEntries(t, []common.BookEntry{entry(2, "50", 3)}, snapshot.Bids)
	assert.Empty(t, snapshot.Asks)
}

func TestSubmit_EqualPriceCrosses(t *testing.T) {
	book := engine.NewOrderBook()
	submit(t, book, 1, "100", 10, common.Sell)

	// A buy at exactly the best ask trades instead of resting alongside it.
	trades := submit(t, book, 2, "100", 10, common.Buy)
	require.Len(t, trades, 1)
	assertTrade(t, trades[0], "100", 10, 2, 1)

	snapshot := book.Snapshot()
	assert.Empty(t, snapshot.Bids)
	assert.Empty(t, snapshot.Asks)
}

func TestSubmit_MakerPriceRule(t *testing.T) {
	book := engine.NewOrderBook()
	submit(t, book, 1, "100", 10, common.Sell)

	// The buyer was willing to pay 105 but executes at the resting 100. The
	// price improvement goes to the taker.
	trades := submit(t, book, 2, "105", 10, common.Buy)
	require.Len(t, trades, 1)
	assertTrade(t, trades[0], "100", 10, 2, 1)
}

func TestSubmit_PartialFillRests(t *testing.T) {
	book := engine.NewOrderBook()
	submit(t, book, 1, "100", 10, common.Sell)

	// Buyer wants 25, only 10 is available at or below 101. The remainder
	// rests as a bid at the buyer's own price.
	trades := submit(t, book, 2, "101", 25, common.Buy)
	require.Len(t, trades, 1)
	assertTrade(t, trades[0], "100", 10, 2, 1)

	snapshot := book.Snapshot()
	assertEntries(t, []common.BookEntry{entry(2, "101", 15)}, snapshot.Bids)
	assert.Empty(t, snapshot.Asks)
}

func TestSubmit_NonCrossingRestsUntouched(t *testing.T) {
	book := buildLadder(t)

	// A bid below the best ask neither trades nor changes: same id, price
	// and original quantity in the snapshot.
	trades := submit(t, book, 301, "99", 7, common.Buy)
	assert.Empty(t, trades)

	snapshot := book.Snapshot()
	assertEntries(t, []common.BookEntry{
		entry(301, "99", 7),
		entry(201, "98", 10),
		entry(202, "97", 20),
	}, snapshot.Bids)
}

func TestSubmit_QuantityConservation(t *testing.T) {
	book := buildLadder(t)

	const submitted = uint64(35)
	trades := submit(t, book, 301, "102", submitted, common.Buy)

	var filled uint64
	for _, trade := range trades {
		filled += trade.Quantity
	}
	assert.LessOrEqual(t, filled, submitted)

	// Nothing rested, so the fills must account for the whole order.
	assert.Equal(t, submitted, filled)
}

func TestSubmit_NeverCrossed(t *testing.T) {
	book := engine.NewOrderBook()

	// A mixed sequence of resting, partially matching and sweeping orders.
	// Submit panics if the book is left crossed, so reaching the end with
	// a sane snapshot is the assertion.
	type step struct {
		id    uint64
		price string
		qty   uint64
		side  common.Side
	}
	steps := []step{
		{1, "100", 10, common.Sell},
		{2, "99", 5, common.Buy},
		{3, "100", 5, common.Buy},
		{4, "98", 20, common.Sell},
		{5, "101", 40, common.Buy},
		{6, "97", 3, common.Sell},
		{7, "96.5", 8, common.Buy},
		{8, "96.5", 8, common.Sell},
	}
	for _, s := range steps {
		submit(t, book, s.id, s.price, s.qty, s.side)

		snapshot := book.Snapshot()
		if len(snapshot.Bids) > 0 && len(snapshot.Asks) > 0 {
			bestBid, bestAsk := snapshot.Bids[0].Price, snapshot.Asks[0].Price
			assert.True(t, bestBid.LessThan(bestAsk),
				"after order %d: best bid %s >= best ask %s", s.id, bestBid, bestAsk)
		}
	}
}

func TestSubmit_SelfTradeIsNotPrevented(t *testing.T) {
	book := engine.NewOrderBook()
	submit(t, book, 1, "100", 10, common.Sell)

	// No self-trade prevention: the same id on both sides simply matches.
	trades := submit(t, book, 1, "100", 10, common.Buy)
	require.Len(t, trades, 1)
	assertTrade(t, trades[0], "100", 10, 1, 1)
}

func TestSubmit_DuplicateRestingIDPanics(t *testing.T) {
	book := engine.NewOrderBook()
	submit(t, book, 1, "100", 10, common.Sell)

	assert.Panics(t, func() {
		submit(t, book, 1, "200", 10, common.Sell)
	})
}

func TestSubmit_PriceLevelReusedAfterEmpty(t *testing.T) {
	book := engine.NewOrderBook()
	submit(t, book, 1, "100", 10, common.Sell)
	submit(t, book, 2, "100", 10, common.Buy)

	// The 100 level was fully consumed and deleted; resting there again
	// must start a fresh FIFO queue.
	submit(t, book, 3, "100", 4, common.Sell)
	snapshot := book.Snapshot()
	assertEntries(t, []common.BookEntry{entry(3, "100", 4)}, snapshot.Asks)
}

func TestDepth(t *testing.T) {
	book := buildLadder(t)

	nBids, nAsks, bidQty, askQty := book.Depth()
	assert.Equal(t, uint64(2), nBids)
	assert.Equal(t, uint64(3), nAsks)
	assert.Equal(t, uint64(30), bidQty)
	assert.Equal(t, uint64(80), askQty)

	submit(t, book, 301, "102", 35, common.Buy)
	nBids, nAsks, bidQty, askQty = book.Depth()
	assert.Equal(t, uint64(2), nBids)
	assert.Equal(t, uint64(1), nAsks)
	assert.Equal(t, uint64(30), bidQty)
	assert.Equal(t, uint64(45), askQty)
}
