package tick

import (
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"datedVamm/internal/model"
	"datedVamm/internal/vammmath"
)

// Info is the bookkeeping stored per initialized tick.
type Info struct {
	LiquidityGross *uint256.Int `json:"liquidityGross"`
	LiquidityNet   *big.Int     `json:"liquidityNet"`
	GrowthOutside  Growth       `json:"growthOutside"`
	Initialized    bool         `json:"initialized"`
}

func (i *Info) clone() *Info {
	return &Info{
		LiquidityGross: i.LiquidityGross.Clone(),
		LiquidityNet:   new(big.Int).Set(i.LiquidityNet),
		GrowthOutside:  i.GrowthOutside.Clone(),
		Initialized:    i.Initialized,
	}
}

func emptyInfo() *Info {
	return &Info{
		LiquidityGross: new(uint256.Int),
		LiquidityNet:   new(big.Int),
		GrowthOutside:  ZeroGrowth(),
	}
}

// MaxLiquidityPerTick spreads the uint128 liquidity range evenly across every
// usable tick for a spacing.
func MaxLiquidityPerTick(spacing int32) *uint256.Int {
	minTick := (vammmath.MinTick / spacing) * spacing
	maxTick := (vammmath.MaxTick / spacing) * spacing
	numTicks := uint64((maxTick-minTick)/spacing) + 1
	maxU128 := new(uint256.Int).Sub(vammmath.Q128, uint256.NewInt(1))
	return maxU128.Div(maxU128, uint256.NewInt(numTicks))
}

// Registry keeps the sparse tick map of one pool together with its bitmap.
type Registry struct {
	spacing             int32
	maxLiquidityPerTick *uint256.Int
	ticks               map[int32]*Info
	bitmap              *Bitmap
}

// NewRegistry creates an empty registry. A nil maxLiquidityPerTick uses the
// spacing-derived default.
func NewRegistry(spacing int32, maxLiquidityPerTick *uint256.Int) (*Registry, error) {
	if spacing <= 0 {
		return nil, model.ErrInvalidArgument.Wrapf("tick spacing %d", spacing)
	}
	if maxLiquidityPerTick == nil || maxLiquidityPerTick.IsZero() {
		maxLiquidityPerTick = MaxLiquidityPerTick(spacing)
	}
	return &Registry{
		spacing:             spacing,
		maxLiquidityPerTick: maxLiquidityPerTick.Clone(),
		ticks:               make(map[int32]*Info),
		bitmap:              NewBitmap(spacing),
	}, nil
}

// Spacing returns the tick spacing.
func (r *Registry) Spacing() int32 { return r.spacing }

// MaxLiquidity returns the per-tick gross liquidity cap.
func (r *Registry) MaxLiquidity() *uint256.Int { return r.maxLiquidityPerTick.Clone() }

// Get returns a copy of the tick record. Uninitialized ticks read as zero.
func (r *Registry) Get(tick int32) Info {
	if info, ok := r.ticks[tick]; ok {
		return *info.clone()
	}
	return *emptyInfo()
}

// Update applies liquidityDelta to a tick bound. On first initialization the
// growth below the current tick is attributed to the outside. When gross
// liquidity returns to zero the tick is cleared and its bit unset, including
// when it is the current tick. It reports whether the initialized state
// flipped.
func (r *Registry) Update(tick, currentTick int32, liquidityDelta *big.Int, global Growth, upper bool) (bool, error) {
	if tick < vammmath.MinTick || tick > vammmath.MaxTick {
		return false, model.ErrTickOutOfBounds.Wrapf("tick %d", tick)
	}
	if tick%r.spacing != 0 {
		return false, model.ErrInvalidTickRange.Wrapf("tick %d not a multiple of spacing %d", tick, r.spacing)
	}

	info, ok := r.ticks[tick]
	if !ok {
		info = emptyInfo()
	}
	grossBefore := info.LiquidityGross
	grossAfter, err := vammmath.AddDelta(grossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if grossAfter.Gt(r.maxLiquidityPerTick) {
		return false, model.ErrMaxLiquidityPerTick.Wrapf("tick %d gross %s", tick, grossAfter.ToBig())
	}

	flipped := grossAfter.IsZero() != grossBefore.IsZero()

	updated := info.clone()
	if grossBefore.IsZero() {
		if tick <= currentTick {
			updated.GrowthOutside = global.Clone()
		} else {
			updated.GrowthOutside = ZeroGrowth()
		}
		updated.Initialized = true
	}
	updated.LiquidityGross = grossAfter
	if upper {
		updated.LiquidityNet.Sub(updated.LiquidityNet, liquidityDelta)
	} else {
		updated.LiquidityNet.Add(updated.LiquidityNet, liquidityDelta)
	}

	if flipped {
		if err := r.bitmap.Flip(tick); err != nil {
			return false, err
		}
	}
	if grossAfter.IsZero() {
		r.Clear(tick)
		return flipped, nil
	}
	r.ticks[tick] = updated
	return flipped, nil
}

// Cross flips the growth outside a tick as price walks through it and returns
// the signed liquidity delta for a left-to-right crossing. Crossing twice with
// the same globals restores the original values.
func (r *Registry) Cross(tick int32, global Growth) *big.Int {
	info, ok := r.ticks[tick]
	if !ok {
		return new(big.Int)
	}
	info.GrowthOutside = global.Sub(info.GrowthOutside)
	return new(big.Int).Set(info.LiquidityNet)
}

// Clear removes a tick record. The bitmap is left to the caller.
func (r *Registry) Clear(tick int32) {
	delete(r.ticks, tick)
}

// GrowthInside returns the growth accumulated strictly within [lower, upper).
// The lower bound counts as inside when current >= lower and the upper bound
// only when current < upper.
func (r *Registry) GrowthInside(lower, upper, current int32, global Growth) Growth {
	lo := r.Get(lower)
	hi := r.Get(upper)

	var below, above Growth
	if current >= lower {
		below = lo.GrowthOutside
	} else {
		below = global.Sub(lo.GrowthOutside)
	}
	if current < upper {
		above = hi.GrowthOutside
	} else {
		above = global.Sub(hi.GrowthOutside)
	}
	return global.Sub(below).Sub(above)
}

// NextInitialized searches the bitmap one word at a time.
func (r *Registry) NextInitialized(tick int32, lte bool) (int32, bool) {
	return r.bitmap.NextInitializedWithinWord(tick, lte)
}

// Ticks returns the initialized tick indices in ascending order.
func (r *Registry) Ticks() []int32 {
	out := make([]int32, 0, len(r.ticks))
	for t := range r.ticks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load installs a persisted tick record and sets its bit.
func (r *Registry) Load(tick int32, info Info) error {
	if info.LiquidityGross == nil || info.LiquidityGross.IsZero() {
		return model.ErrInvalidArgument.Wrapf("tick %d has zero gross liquidity", tick)
	}
	if _, exists := r.ticks[tick]; !exists {
		if err := r.bitmap.Flip(tick); err != nil {
			return err
		}
	}
	loaded := info.clone()
	loaded.Initialized = true
	r.ticks[tick] = loaded
	return nil
}

// CheckInvariants verifies that gross liquidity is zero exactly when a tick is
// uninitialized, that the bitmap mirrors the map and that net liquidity sums
// to zero.
func (r *Registry) CheckInvariants() error {
	sum := new(big.Int)
	for t, info := range r.ticks {
		if info.LiquidityGross.IsZero() == info.Initialized {
			return model.ErrNegativeLiquidity.Wrapf("tick %d: gross %s initialized %t", t, info.LiquidityGross.ToBig(), info.Initialized)
		}
		if !r.bitmap.IsSet(t) {
			return model.ErrInvalidArgument.Wrapf("tick %d initialized but not in bitmap", t)
		}
		sum.Add(sum, info.LiquidityNet)
	}
	for pos, w := range r.bitmap.words {
		for i := 0; i < 256; i++ {
			if w.Clone().Rsh(w, uint(i)).Uint64()&1 == 0 {
				continue
			}
			t := (int32(pos)*256 + int32(i)) * r.spacing
			if _, ok := r.ticks[t]; !ok {
				return model.ErrInvalidArgument.Wrapf("bitmap bit for tick %d without record", t)
			}
		}
	}
	if sum.Sign() != 0 {
		return model.ErrNegativeLiquidity.Wrapf("net liquidity sums to %s", sum)
	}
	return nil
}

// Snapshot captures the listed ticks and their bitmap words so a failed
// multi-step update can be rolled back.
type Snapshot struct {
	ticks  map[int32]*Info
	bitmap *Bitmap
}

// Snapshot records the current state of ticks.
func (r *Registry) Snapshot(ticks ...int32) *Snapshot {
	s := &Snapshot{ticks: make(map[int32]*Info, len(ticks)), bitmap: r.bitmap.clone()}
	for _, t := range ticks {
		if info, ok := r.ticks[t]; ok {
			s.ticks[t] = info.clone()
		} else {
			s.ticks[t] = nil
		}
	}
	return s
}

// Restore rolls the snapshotted ticks and the bitmap back.
func (r *Registry) Restore(s *Snapshot) {
	for t, info := range s.ticks {
		if info == nil {
			delete(r.ticks, t)
			continue
		}
		r.ticks[t] = info.clone()
	}
	r.bitmap = s.bitmap.clone()
}
