package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
)

// Reporter receives trades as they execute. The engine does not care how
// they are surfaced; the transport collaborator decides.
type Reporter interface {
	ReportTrade(trade common.Trade)
}

// Engine wraps the order book of one instrument. Each submission runs as a
// single critical section, so matching for this instrument is effectively
// single threaded even with concurrent callers.
type Engine struct {
	mu       sync.Mutex
	book     *OrderBook
	reporter Reporter
}

func New() *Engine {
	return &Engine{
		book: NewOrderBook(),
	}
}

// SetReporter attaches the trade-reporting collaborator. Must be called
// before the first submission.
func (e *Engine) SetReporter(r Reporter) {
	e.reporter = r
}

// Submit validates the intent, matches it against the book and reports every
// resulting trade. An invalid order is rejected without touching book state.
func (e *Engine) Submit(id uint64, price decimal.Decimal, quantity uint64, side common.Side) ([]common.Trade, error) {
	order, err := NewOrder(id, price, quantity, side)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	trades := e.book.Submit(order)
	e.mu.Unlock()

	if e.reporter != nil {
		for _, trade := range trades {
			e.reporter.ReportTrade(trade)
		}
	}
	return trades, nil
}

// Snapshot returns a point-in-time copy of both book sides.
func (e *Engine) Snapshot() common.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot()
}

// Depth returns resting order counts and liquidity per side.
func (e *Engine) Depth() (nBids, nAsks, bidQuantity, askQuantity uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Depth()
}
