package model

// PoolMeta captures immutable instance metadata with optional live fields.
type PoolMeta struct {
	MarketID    string     `json:"market_id"`
	Maturity    uint32     `json:"maturity"`
	TickSpacing int32      `json:"tick_spacing"`
	Liquidity   string     `json:"liquidity,omitempty"`
	Slot0       *PoolSlot0 `json:"slot0,omitempty"`
}

// PoolSlot0 is the price state after an event.
type PoolSlot0 struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}
