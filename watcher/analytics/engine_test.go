package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solwatch/tradewatch/shared/models"
)

func pf(v float64) *float64 { return &v }

func TestComputeEmptyCollection(t *testing.T) {
	s := Compute(nil)

	assert.Equal(t, Stats{}, s, "every aggregate should be zero on an empty collection, never NaN")
}

func TestComputeCountsAndTotals(t *testing.T) {
	trades := []models.TradeRecord{
		{TradeID: "b1", Status: models.StatusConfirmed, TradeType: "buy", UsdAmount: 100, SolAmount: 0.5, Mint: "M"},
		{TradeID: "b2", Status: models.StatusPending, TradeType: "buy", UsdAmount: 999, Mint: "M"},
		{TradeID: "b3", Status: models.StatusFailed, TradeType: "buy", UsdAmount: 999, Mint: "M"},
		{TradeID: "s1", Status: models.StatusConfirmed, TradeType: "sell", UsdAmount: 300, SolAmount: 1.5, Mint: "M", ProfitUsd: pf(50)},
	}

	s := Compute(trades)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 1, s.BuyTrades, "only confirmed buys count")
	assert.Equal(t, 1, s.SellTrades)
	assert.Equal(t, 2, s.SuccessTrades)
	assert.Equal(t, 1, s.FailedTrades)

	// Financial aggregates come from confirmed trades only.
	assert.InDelta(t, 400.0, s.TotalUsdAmount, 1e-9)
	assert.InDelta(t, 2.0, s.TotalSolAmount, 1e-9)
	assert.InDelta(t, 200.0, s.AvgTradeAmount, 1e-9)
	assert.InDelta(t, 300.0, s.MaxTradeAmount, 1e-9)
	assert.InDelta(t, 100.0, s.MinTradeAmount, 1e-9)
}

func TestComputeSuccessRateDenominators(t *testing.T) {
	trades := []models.TradeRecord{
		{TradeID: "b1", Status: models.StatusConfirmed, TradeType: "buy"},
		{TradeID: "b2", Status: models.StatusFailed, TradeType: "buy"},
		{TradeID: "b3", Status: models.StatusPending, TradeType: "buy"},
		{TradeID: "b4", Status: models.StatusConfirmed, TradeType: "BUY"},
		{TradeID: "s1", Status: models.StatusConfirmed, TradeType: "sell"},
		{TradeID: "s2", Status: models.StatusFailed, TradeType: "Sell"},
	}

	s := Compute(trades)

	// Denominator is all trades of that side regardless of status.
	assert.InDelta(t, 50.0, s.BuySuccessRate, 1e-9, "2 confirmed of 4 buys")
	assert.InDelta(t, 50.0, s.SellSuccessRate, 1e-9, "1 confirmed of 2 sells")
	assert.InDelta(t, 50.0, s.OverallSuccessRate, 1e-9, "3 confirmed of 6 trades")
}

func TestComputeProfitAggregates(t *testing.T) {
	trades := []models.TradeRecord{
		{TradeID: "s1", Status: models.StatusConfirmed, TradeType: "sell", ProfitUsd: pf(120)},
		{TradeID: "s2", Status: models.StatusConfirmed, TradeType: "sell", ProfitUsd: pf(-20)},
		{TradeID: "s3", Status: models.StatusConfirmed, TradeType: "sell"}, // missing profit counts as 0
		{TradeID: "s4", Status: models.StatusConfirmed, TradeType: "sell", ProfitUsd: pf(0)},
	}

	s := Compute(trades)

	assert.InDelta(t, 100.0, s.TotalProfit, 1e-9)
	assert.Equal(t, 1, s.ProfitableTrades)
	assert.Equal(t, 1, s.LossTrades)
	assert.InDelta(t, 25.0, s.ProfitRate, 1e-9, "1 profitable of 4 confirmed sells")
}

func TestComputeHoldingsAndUniqueTokens(t *testing.T) {
	trades := []models.TradeRecord{
		// Mint M: bought 100, sold 40, still held.
		{TradeID: "b1", Status: models.StatusConfirmed, TradeType: "buy", Mint: "M", TokenAmount: 100},
		{TradeID: "s1", Status: models.StatusConfirmed, TradeType: "sell", Mint: "M", TokenAmount: 40},
		// Mint N: fully exited.
		{TradeID: "b2", Status: models.StatusConfirmed, TradeType: "buy", Mint: "N", TokenAmount: 10},
		{TradeID: "s2", Status: models.StatusConfirmed, TradeType: "sell", Mint: "N", TokenAmount: 10},
		// Mint P: only ever sold; not a holding but still a distinct token.
		{TradeID: "s3", Status: models.StatusConfirmed, TradeType: "sell", Mint: "P", TokenAmount: 5},
	}

	s := Compute(trades)

	assert.Equal(t, 1, s.CurrentHoldings)
	assert.Equal(t, 3, s.UniqueTokens)
}

func TestComputeIgnoresPendingForHoldings(t *testing.T) {
	trades := []models.TradeRecord{
		{TradeID: "b1", Status: models.StatusPending, TradeType: "buy", Mint: "M", TokenAmount: 100},
	}

	s := Compute(trades)

	assert.Equal(t, 0, s.CurrentHoldings)
	assert.Equal(t, 0, s.UniqueTokens)
}

func TestEngineRecomputesOnSnapshot(t *testing.T) {
	engine := NewEngine(logrus.New())
	snapshots := make(chan []models.TradeRecord, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, snapshots)

	snapshots <- []models.TradeRecord{
		{TradeID: "b1", Status: models.StatusConfirmed, TradeType: "buy", UsdAmount: 100},
	}

	require.Eventually(t, func() bool {
		return engine.Stats().TotalTrades == 1
	}, time.Second, 10*time.Millisecond)
	assert.InDelta(t, 100.0, engine.Stats().TotalUsdAmount, 1e-9)
}
