package api

import (
	"math/big"

	"datedVamm/internal/vamm"
)

// Amounts are decimal strings; prices are decimal strings with up to 18
// fractional digits.

type CreatePoolRequest struct {
	MarketID            string              `json:"market_id"`
	Maturity            uint32              `json:"maturity"`
	TickSpacing         int32               `json:"tick_spacing"`
	InitialTick         int32               `json:"initial_tick"`
	InitialSqrtPriceX96 string              `json:"initial_sqrt_price_x96,omitempty"`
	Mutable             *vamm.MutableConfig `json:"mutable,omitempty"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type TakerOrderRequest struct {
	AccountID     string `json:"account_id"`
	BaseAmount    string `json:"base_amount"`
	PriceLimit    string `json:"price_limit,omitempty"`
	MarkPrice     string `json:"mark_price"`
	MarkPriceBand string `json:"mark_price_band,omitempty"`
}

type MakerOrderRequest struct {
	AccountID      string `json:"account_id"`
	TickLower      int32  `json:"tick_lower"`
	TickUpper      int32  `json:"tick_upper"`
	LiquidityDelta string `json:"liquidity_delta,omitempty"`
	BaseAmount     string `json:"base_amount,omitempty"`
}

type SwapStepInfo struct {
	Base        string `json:"base"`
	Quote       string `json:"quote"`
	Price       string `json:"price"`
	Crossed     bool   `json:"crossed"`
	TickCrossed int32  `json:"tick_crossed,omitempty"`
}

type TakerOrderResponse struct {
	ExecutedBase       string         `json:"executed_base"`
	ExecutedQuote      string         `json:"executed_quote"`
	AnnualizedNotional string         `json:"annualized_notional"`
	Remaining          string         `json:"remaining"`
	Tick               int32          `json:"tick"`
	SqrtPriceX96       string         `json:"sqrt_price_x96"`
	Steps              []SwapStepInfo `json:"steps"`
}

type MakerOrderResponse struct {
	PositionID         string `json:"position_id"`
	LiquidityDelta     string `json:"liquidity_delta"`
	Liquidity          string `json:"liquidity"`
	Base               string `json:"base"`
	AnnualizedNotional string `json:"annualized_notional"`
}

type FilledBalancesResponse struct {
	Base            string `json:"base"`
	Quote           string `json:"quote"`
	AccruedInterest string `json:"accrued_interest"`
}

type UnfilledBalancesResponse struct {
	BaseLong      string `json:"base_long"`
	BaseShort     string `json:"base_short"`
	QuoteLong     string `json:"quote_long"`
	QuoteShort    string `json:"quote_short"`
	AvgPriceLong  string `json:"avg_price_long"`
	AvgPriceShort string `json:"avg_price_short"`
}

type TwapResponse struct {
	Price  string `json:"price"`
	Window int64  `json:"window"`
	Size   string `json:"size"`
}

type PositionInfo struct {
	PositionID      string `json:"position_id"`
	TickLower       int32  `json:"tick_lower"`
	TickUpper       int32  `json:"tick_upper"`
	Liquidity       string `json:"liquidity"`
	Base            string `json:"base"`
	Quote           string `json:"quote"`
	AccruedInterest string `json:"accrued_interest"`
	LastMark        int64  `json:"last_mark"`
}

type TickInfo struct {
	Tick           int32  `json:"tick"`
	Price          string `json:"price"`
	LiquidityGross string `json:"liquidity_gross"`
	LiquidityNet   string `json:"liquidity_net"`
}

type PoolInfo struct {
	MarketID     string             `json:"market_id"`
	Maturity     uint32             `json:"maturity"`
	TickSpacing  int32              `json:"tick_spacing"`
	Tick         int32              `json:"tick"`
	SqrtPriceX96 string             `json:"sqrt_price_x96"`
	Liquidity    string             `json:"liquidity"`
	Price        string             `json:"price"`
	Locked       bool               `json:"locked"`
	Mutable      vamm.MutableConfig `json:"mutable"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
}

func str(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
