package model

// Pool is a market+maturity instance record for storage.
type Pool struct {
	MarketID      string `json:"market_id"`
	Maturity      uint32 `json:"maturity"`
	Address       string `json:"address"`
	TickSpacing   int32  `json:"tick_spacing"`
	FirstSeenTime uint64 `json:"first_seen_ts"`
}
