package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dim-str/TheLimitOrderBook/internal/common"
	"github.com/dim-str/TheLimitOrderBook/internal/engine"
)

type MockReporter struct {
	trades []common.Trade
}

func (r *MockReporter) ReportTrade(trade common.Trade) {
	r.trades = append(r.trades, trade)
}

func TestEngine_SubmitReportsTrades(t *testing.T) {
	reporter := &MockReporter{}
	eng := engine.New()
	eng.SetReporter(reporter)

	_, err := eng.Submit(1, decimal.NewFromInt(100), 10, common.Sell)
	require.NoError(t, err)
	assert.Empty(t, reporter.trades)

	trades, err := eng.Submit(2, decimal.NewFromInt(102), 4, common.Buy)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	// The reporter sees exactly what the caller gets back.
	assert.Equal(t, trades, reporter.trades)
	assertTrade(t, reporter.trades[0], "100", 4, 2, 1)
}

func TestEngine_InvalidOrderLeavesBookUntouched(t *testing.T) {
	eng := engine.New()

	_, err := eng.Submit(1, decimal.NewFromInt(100), 10, common.Sell)
	require.NoError(t, err)
	before := eng.Snapshot()

	_, err = eng.Submit(2, decimal.Zero, 10, common.Buy)
	assert.ErrorIs(t, err, engine.ErrInvalidOrder)
	_, err = eng.Submit(3, decimal.NewFromInt(100), 0, common.Buy)
	assert.ErrorIs(t, err, engine.ErrInvalidOrder)

	assert.Equal(t, before, eng.Snapshot())
}

func TestEngine_Depth(t *testing.T) {
	eng := engine.New()
	_, err := eng.Submit(1, decimal.NewFromInt(100), 10, common.Sell)
	require.NoError(t, err)

	nBids, nAsks, bidQty, askQty := eng.Depth()
	assert.Equal(t, uint64(0), nBids)
	assert.Equal(t, uint64(1), nAsks)
	assert.Equal(t, uint64(0), bidQty)
	assert.Equal(t, uint64(10), askQty)
}
