package model

import "time"

// PoolWindowMetrics stores aggregated metrics for an instance window.
type PoolWindowMetrics struct {
	MarketID         string
	Maturity         uint32
	PoolAddress      string
	WindowSizeSecs   int64
	WindowStart      time.Time
	WindowEnd        time.Time
	TakerCount       uint64
	MakerCount       uint64
	VolumeBase       string
	VolumeQuote      string
	NotionalVolume   string
	LiquidityAdded   string
	LiquidityRemoved string
	OpenTick         *int32
	CloseTick        *int32
	AvgFixedRate     *string
}
