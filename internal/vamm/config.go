package vamm

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"

	"datedVamm/internal/model"
	"datedVamm/internal/vammmath"
)

const (
	// DefaultMinTick and DefaultMaxTick bound the tradable range: prices from
	// roughly 0.001% to 1000%.
	DefaultMinTick int32 = -69100
	DefaultMaxTick int32 = 69100
)

// ImmutableConfig is fixed when the pool is created.
type ImmutableConfig struct {
	MarketID            *big.Int     `json:"marketId"`
	Maturity            uint32       `json:"maturity"`
	TickSpacing         int32        `json:"tickSpacing"`
	MaxLiquidityPerTick *uint256.Int `json:"maxLiquidityPerTick,omitempty"`
}

// MutableConfig can be changed by the market operator after creation.
type MutableConfig struct {
	Spread                       sdkmath.LegacyDec `json:"spread"`
	PriceImpactPhi               sdkmath.LegacyDec `json:"priceImpactPhi"`
	PriceImpactBeta              sdkmath.LegacyDec `json:"priceImpactBeta"`
	ObservationCardinalityTarget uint16            `json:"observationCardinalityTarget"`
	MinTick                      int32             `json:"minTick"`
	MaxTick                      int32             `json:"maxTick"`
	InactiveWindowSeconds        int64             `json:"inactiveWindowSeconds"`
	MakerPositionsLimit          int               `json:"makerPositionsLimit"`
	Paused                       bool              `json:"paused"`
}

// DefaultMutableConfig returns the settings used when none are supplied.
func DefaultMutableConfig() MutableConfig {
	return MutableConfig{
		Spread:                       sdkmath.LegacyZeroDec(),
		PriceImpactPhi:               sdkmath.LegacyZeroDec(),
		PriceImpactBeta:              sdkmath.LegacyOneDec(),
		ObservationCardinalityTarget: 16,
		MinTick:                      DefaultMinTick,
		MaxTick:                      DefaultMaxTick,
		InactiveWindowSeconds:        24 * 60 * 60,
		MakerPositionsLimit:          10,
	}
}

// Validate checks the immutable settings.
func (c ImmutableConfig) Validate() error {
	if c.MarketID == nil || c.MarketID.Sign() < 0 {
		return model.ErrInvalidArgument.Wrap("market id is required")
	}
	if c.Maturity == 0 {
		return model.ErrInvalidArgument.Wrap("maturity is required")
	}
	if c.TickSpacing <= 0 {
		return model.ErrInvalidArgument.Wrapf("tick spacing %d", c.TickSpacing)
	}
	return nil
}

// Validate checks the mutable settings against the pool's spacing.
func (c MutableConfig) Validate(spacing int32) error {
	if c.MinTick >= c.MaxTick {
		return model.ErrInvalidTickRange.Wrapf("min tick %d >= max tick %d", c.MinTick, c.MaxTick)
	}
	if c.MinTick < vammmath.MinTick || c.MaxTick > vammmath.MaxTick {
		return model.ErrTickOutOfBounds.Wrapf("bounds [%d, %d]", c.MinTick, c.MaxTick)
	}
	if spacing > 0 && c.MaxTick-c.MinTick < spacing {
		return model.ErrInvalidTickRange.Wrapf("bounds [%d, %d] narrower than spacing %d", c.MinTick, c.MaxTick, spacing)
	}
	if c.ObservationCardinalityTarget == 0 {
		return model.ErrInvalidArgument.Wrap("observation cardinality target must be > 0")
	}
	if c.InactiveWindowSeconds < 0 {
		return model.ErrInvalidArgument.Wrapf("inactive window %d", c.InactiveWindowSeconds)
	}
	if c.MakerPositionsLimit <= 0 {
		return model.ErrInvalidArgument.Wrapf("maker positions limit %d", c.MakerPositionsLimit)
	}
	for name, d := range map[string]sdkmath.LegacyDec{
		"spread":            c.Spread,
		"price impact phi":  c.PriceImpactPhi,
		"price impact beta": c.PriceImpactBeta,
	} {
		if d.IsNil() || d.IsNegative() {
			return model.ErrInvalidArgument.Wrapf("%s must be non-negative", name)
		}
	}
	return nil
}

// Config bundles both halves.
type Config struct {
	Immutable ImmutableConfig `json:"immutable"`
	Mutable   MutableConfig   `json:"mutable"`
}
