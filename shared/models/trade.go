package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TradeStatus is the lifecycle status reported by the execution backend.
type TradeStatus string

const (
	StatusPending   TradeStatus = "Pending"
	StatusConfirmed TradeStatus = "Confirmed"
	StatusFailed    TradeStatus = "Failed"
)

// Trade sides as emitted by the backend. Producer casing is inconsistent
// ("buy" vs "Buy"), so comparisons always go through NormalizeTradeType.
const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// NormalizeTradeType lowers the producer's casing so buy/sell comparisons
// behave the same regardless of which backend layer emitted the record.
func NormalizeTradeType(tradeType string) string {
	return strings.ToLower(strings.TrimSpace(tradeType))
}

// TradeRecord is one observed trade attempt. trade_id is stable across status
// transitions of the same attempt and is the identity key for reconciliation.
// A later record with the same trade_id fully replaces the earlier one.
type TradeRecord struct {
	TradeID        string      `json:"trade_id"`
	Status         TradeStatus `json:"status"`
	TradeType      string      `json:"trade_type"`
	Mint           string      `json:"mint"`
	BlockTime      int64       `json:"block_time"`
	SolAmount      float64     `json:"sol_amount"`
	UsdAmount      float64     `json:"usd_amount"`
	TokenAmount    float64     `json:"token_amount"` // raw integer scaled by 10^6
	SolPriceUsd    float64     `json:"sol_price_usd"`
	UserWallet     string      `json:"user_wallet"`
	FollowedWallet *string     `json:"followed_wallet,omitempty"`
	ProfitUsd      *float64    `json:"profit_usd,omitempty"`
	Signature      *string     `json:"signature,omitempty"`
	FailureReason  *string     `json:"failure_reason,omitempty"`
}

// IsBuy reports whether the record is a buy, case-insensitively.
func (t TradeRecord) IsBuy() bool {
	return NormalizeTradeType(t.TradeType) == TradeTypeBuy
}

// IsSell reports whether the record is a sell, case-insensitively.
func (t TradeRecord) IsSell() bool {
	return NormalizeTradeType(t.TradeType) == TradeTypeSell
}

// tradeRecordWire carries the legacy target_wallet alias some backend layers
// still emit instead of followed_wallet.
type tradeRecordWire struct {
	TradeRecord
	TargetWallet *string `json:"target_wallet,omitempty"`
}

// DecodeTradeRecord parses and validates a single JSON-encoded trade record.
// It either produces a well-formed record or an error naming the rejection
// reason; callers never have to guess at a half-parsed payload.
func DecodeTradeRecord(data []byte) (TradeRecord, error) {
	var wire tradeRecordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return TradeRecord{}, fmt.Errorf("invalid trade payload: %w", err)
	}

	rec := wire.TradeRecord
	if rec.TradeID == "" {
		return TradeRecord{}, fmt.Errorf("trade record missing trade_id")
	}
	if rec.FollowedWallet == nil && wire.TargetWallet != nil {
		rec.FollowedWallet = wire.TargetWallet
	}
	rec.TradeType = NormalizeTradeType(rec.TradeType)

	return rec, nil
}

// WalletConfig is the slice of the backend's strategy configuration that the
// watcher needs for display. The full strategy-parameter schema lives with the
// configuration UI, not here.
type WalletConfig struct {
	WalletAddress string  `json:"wallet_address"`
	IsActive      bool    `json:"is_active"`
	Remark        *string `json:"remark,omitempty"`
}

// TradeHistoryResponse is the backend's answer to a history query.
type TradeHistoryResponse struct {
	Trades  []TradeRecord `json:"trades"`
	Total   int           `json:"total"`
	HasMore bool          `json:"has_more"`
}
