package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"datedVamm/internal/model"
)

// Accumulator holds aggregate values for an instance window.
type Accumulator struct {
	PoolAddress      string
	PoolMeta         model.PoolMeta
	WindowStart      uint64
	WindowEnd        uint64
	TakerCount       uint64
	MakerCount       uint64
	VolumeBase       *big.Int
	VolumeQuote      *big.Int
	NotionalVolume   *big.Int
	LiquidityAdded   *big.Int
	LiquidityRemoved *big.Int
	OpenTick         *int32
	CloseTick        *int32
	FirstTS          uint64
	LastTS           uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress:      record.Address,
		PoolMeta:         record.PoolMeta,
		WindowStart:      windowStart,
		WindowEnd:        windowEnd,
		VolumeBase:       big.NewInt(0),
		VolumeQuote:      big.NewInt(0),
		NotionalVolume:   big.NewInt(0),
		LiquidityAdded:   big.NewInt(0),
		LiquidityRemoved: big.NewInt(0),
		FirstTS:          record.Timestamp,
		LastTS:           record.Timestamp,
	}
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
	}
	if a.FirstTS == 0 || record.Timestamp < a.FirstTS {
		a.FirstTS = record.Timestamp
	}
	if record.PoolMeta.TickSpacing != 0 {
		a.PoolMeta.TickSpacing = record.PoolMeta.TickSpacing
	}

	switch record.EventName {
	case model.EventTakerOrder:
		var order model.TakerOrderEventData
		if err := json.Unmarshal(record.Decoded, &order); err != nil {
			return fmt.Errorf("decode taker order: %w", err)
		}
		return a.applyTakerOrder(order)
	case model.EventLiquidityChange:
		var change model.LiquidityChangeEventData
		if err := json.Unmarshal(record.Decoded, &change); err != nil {
			return fmt.Errorf("decode liquidity change: %w", err)
		}
		return a.applyLiquidityChange(change)
	case model.EventPoolConfigured:
		var cfg model.PoolConfiguredEventData
		if err := json.Unmarshal(record.Decoded, &cfg); err != nil {
			return fmt.Errorf("decode pool configured: %w", err)
		}
		a.PoolMeta.TickSpacing = cfg.TickSpacing
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applyTakerOrder(order model.TakerOrderEventData) error {
	base, err := parseBigInt(order.ExecutedBase)
	if err != nil {
		return err
	}
	quote, err := parseBigInt(order.ExecutedQuote)
	if err != nil {
		return err
	}
	notional, err := parseBigInt(order.AnnualizedNotional)
	if err != nil {
		return err
	}

	absAdd(a.VolumeBase, base)
	absAdd(a.VolumeQuote, quote)
	absAdd(a.NotionalVolume, notional)

	tick := order.Tick
	if a.OpenTick == nil {
		open := tick
		a.OpenTick = &open
	}
	a.CloseTick = &tick
	a.TakerCount++
	return nil
}

func (a *Accumulator) applyLiquidityChange(change model.LiquidityChangeEventData) error {
	delta, err := parseBigInt(change.LiquidityDelta)
	if err != nil {
		return err
	}
	if delta.Sign() >= 0 {
		a.LiquidityAdded.Add(a.LiquidityAdded, delta)
	} else {
		absAdd(a.LiquidityRemoved, delta)
	}
	a.MakerCount++
	return nil
}

// AvgFixedRate is the volume-weighted price, quote per base, in percent.
func (a *Accumulator) AvgFixedRate() *string {
	if rate := ratioString(a.VolumeQuote, a.VolumeBase); rate != "" {
		return &rate
	}
	return nil
}
