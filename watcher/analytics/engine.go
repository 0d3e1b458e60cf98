// Package analytics derives aggregate statistics from the trade collection.
// Compute is a pure function of a snapshot; Engine just caches the latest
// result as snapshots arrive.
package analytics

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/solwatch/tradewatch/shared/models"
)

// Stats is the fixed set of aggregates derived from the trade collection.
// Rates are percentages in [0, 100]; 0 is the defined value whenever a
// denominator is empty, never NaN.
type Stats struct {
	TotalTrades   int `json:"total_trades"`
	BuyTrades     int `json:"buy_trades"`
	SellTrades    int `json:"sell_trades"`
	SuccessTrades int `json:"success_trades"`
	FailedTrades  int `json:"failed_trades"`

	TotalUsdAmount float64 `json:"total_usd_amount"`
	TotalSolAmount float64 `json:"total_sol_amount"`
	TotalProfit    float64 `json:"total_profit"`

	ProfitableTrades int `json:"profitable_trades"`
	LossTrades       int `json:"loss_trades"`

	AvgTradeAmount float64 `json:"avg_trade_amount"`
	MaxTradeAmount float64 `json:"max_trade_amount"`
	MinTradeAmount float64 `json:"min_trade_amount"`

	BuySuccessRate     float64 `json:"buy_success_rate"`
	SellSuccessRate    float64 `json:"sell_success_rate"`
	OverallSuccessRate float64 `json:"overall_success_rate"`
	ProfitRate         float64 `json:"profit_rate"`

	CurrentHoldings int `json:"current_holdings"`
	UniqueTokens    int `json:"unique_tokens"`
}

// Compute derives Stats from a snapshot of the trade collection. Confirmed
// buys and sells drive the financial aggregates; success rates compare
// confirmed counts against all trades of the same side regardless of status.
func Compute(trades []models.TradeRecord) Stats {
	var s Stats
	if len(trades) == 0 {
		return s
	}

	s.TotalTrades = len(trades)

	var confirmed, buys, sells []models.TradeRecord
	allBuys, allSells := 0, 0
	for _, t := range trades {
		if t.IsBuy() {
			allBuys++
		} else if t.IsSell() {
			allSells++
		}
		switch t.Status {
		case models.StatusConfirmed:
			confirmed = append(confirmed, t)
			if t.IsBuy() {
				buys = append(buys, t)
			} else if t.IsSell() {
				sells = append(sells, t)
			}
		case models.StatusFailed:
			s.FailedTrades++
		}
	}

	s.SuccessTrades = len(confirmed)
	s.BuyTrades = len(buys)
	s.SellTrades = len(sells)

	for i, t := range confirmed {
		s.TotalUsdAmount += t.UsdAmount
		s.TotalSolAmount += t.SolAmount
		if i == 0 || t.UsdAmount > s.MaxTradeAmount {
			s.MaxTradeAmount = t.UsdAmount
		}
		if i == 0 || t.UsdAmount < s.MinTradeAmount {
			s.MinTradeAmount = t.UsdAmount
		}
	}
	if len(confirmed) > 0 {
		s.AvgTradeAmount = s.TotalUsdAmount / float64(len(confirmed))
	}

	for _, t := range sells {
		profit := 0.0
		if t.ProfitUsd != nil {
			profit = *t.ProfitUsd
		}
		s.TotalProfit += profit
		if profit > 0 {
			s.ProfitableTrades++
		} else if profit < 0 {
			s.LossTrades++
		}
	}

	s.BuySuccessRate = rate(len(buys), allBuys)
	s.SellSuccessRate = rate(len(sells), allSells)
	s.OverallSuccessRate = rate(len(confirmed), len(trades))
	s.ProfitRate = rate(s.ProfitableTrades, len(sells))

	// Holdings: a mint is still held while cumulative bought token amount
	// exceeds cumulative sold.
	bought := make(map[string]float64)
	sold := make(map[string]float64)
	for _, t := range buys {
		bought[t.Mint] += t.TokenAmount
	}
	for _, t := range sells {
		sold[t.Mint] += t.TokenAmount
	}

	tokens := make(map[string]struct{}, len(bought)+len(sold))
	for mint := range bought {
		tokens[mint] = struct{}{}
		if bought[mint] > sold[mint] {
			s.CurrentHoldings++
		}
	}
	for mint := range sold {
		tokens[mint] = struct{}{}
	}
	s.UniqueTokens = len(tokens)

	return s
}

func rate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

// Engine recomputes Stats whenever the reconciler publishes a snapshot and
// serves the latest result to readers. It carries no state of its own beyond
// the memoized result.
type Engine struct {
	mu     sync.RWMutex
	stats  Stats
	logger *logrus.Entry
}

// NewEngine returns an engine with zero-valued stats.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger.WithField("component", "analytics")}
}

// Run consumes snapshot notifications until the channel closes or the context
// is cancelled. Recomputation is synchronous per snapshot, so readers always
// see stats consistent with some recent collection state.
func (e *Engine) Run(ctx context.Context, snapshots <-chan []models.TradeRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			stats := Compute(snap)
			e.mu.Lock()
			e.stats = stats
			e.mu.Unlock()
		}
	}
}

// Stats returns the most recently computed aggregates.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
