package model

// Event names written to the journal.
const (
	EventTakerOrder      = "TakerOrder"
	EventLiquidityChange = "LiquidityChange"
	EventPoolConfigured  = "PoolConfigured"
)

// TakerOrderEventData is the decoded TakerOrder event payload. Amounts are
// signed from the taker's side.
type TakerOrderEventData struct {
	AccountID          string `json:"account_id"`
	MarketID           string `json:"market_id"`
	Maturity           uint32 `json:"maturity"`
	ExecutedBase       string `json:"executed_base"`
	ExecutedQuote      string `json:"executed_quote"`
	AnnualizedNotional string `json:"annualized_notional"`
	SqrtPriceX96       string `json:"sqrt_price_x96"`
	Liquidity          string `json:"liquidity"`
	Tick               int32  `json:"tick"`
}

// LiquidityChangeEventData is the decoded LiquidityChange event payload.
type LiquidityChangeEventData struct {
	AccountID      string `json:"account_id"`
	MarketID       string `json:"market_id"`
	Maturity       uint32 `json:"maturity"`
	TickLower      int32  `json:"tick_lower"`
	TickUpper      int32  `json:"tick_upper"`
	LiquidityDelta string `json:"liquidity_delta"`
	Base           string `json:"base"`
}

// PoolConfiguredEventData is the decoded PoolConfigured event payload.
type PoolConfiguredEventData struct {
	MarketID    string `json:"market_id"`
	Maturity    uint32 `json:"maturity"`
	TickSpacing int32  `json:"tick_spacing"`
	MinTick     int32  `json:"min_tick"`
	MaxTick     int32  `json:"max_tick"`
	Paused      bool   `json:"paused"`
}
