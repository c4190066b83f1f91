package vamm

import (
	"math/big"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"datedVamm/internal/model"
	"datedVamm/internal/position"
	"datedVamm/internal/tick"
	"datedVamm/internal/vammmath"
)

var fixedRateDenominator = big.NewInt(100 * position.SecondsPerYear)

// SwapParams describes a taker order from the taker's side: a positive
// BaseAmount buys base (price rises, tick falls), a negative one sells it.
type SwapParams struct {
	BaseAmount *big.Int
	// PriceLimit is a WAD price the walk may not cross. Zero means the
	// configured tick bound in the trade direction.
	PriceLimit *big.Int
	// MarkPrice and MarkPriceBand clamp the limit to mark±band. A zero mark
	// disables the clamp.
	MarkPrice     *big.Int
	MarkPriceBand *big.Int
	Rate          position.RateObservation
	Now           int64
	// BeforeCommit runs under the pool lock once the walk is computed. An
	// error aborts the swap with nothing persisted.
	BeforeCommit func(SwapResult) error
}

// SwapStep is one segment of the walk.
type SwapStep struct {
	SqrtStart   *uint256.Int
	SqrtEnd     *uint256.Int
	Base        *big.Int
	Quote       *big.Int
	Price       *big.Int
	Crossed     bool
	TickCrossed int32
}

// SwapResult reports executed amounts from the taker's side.
type SwapResult struct {
	Base         *big.Int
	Quote        *big.Int
	Tick         int32
	SqrtPriceX96 *uint256.Int
	Steps        []SwapStep
	// Remaining is the unfilled part when the walk stopped at a price limit,
	// signed like the order.
	Remaining *big.Int
}

type crossing struct {
	tick   int32
	growth tick.Growth
}

type swapState struct {
	sqrt      *uint256.Int
	tick      int32
	liquidity *uint256.Int
	growth    tick.Growth
	remaining *uint256.Int
	base      *big.Int
	quote     *big.Int
	steps     []SwapStep
	crossings []crossing
}

// Swap walks the initialized ticks until the order is filled or the price
// limit is reached. Nothing is written unless the whole walk succeeds.
func (p *Pool) Swap(params SwapParams) (SwapResult, error) {
	release, err := p.lock()
	if err != nil {
		return SwapResult{}, err
	}
	defer release()

	if params.BaseAmount == nil || params.BaseAmount.Sign() == 0 {
		return SwapResult{}, model.ErrInvalidArgument.Wrap("base amount must be non-zero")
	}
	if params.Rate.Index == nil {
		return SwapResult{}, model.ErrInvalidArgument.Wrap("missing rate index")
	}
	// hooks must never see an order the oracle would refuse
	if err := p.oracle.CheckWrite(params.Now); err != nil {
		return SwapResult{}, err
	}
	buy := params.BaseAmount.Sign() > 0

	sqrtLimit, atBound, err := p.effectiveLimit(buy, params)
	if err != nil {
		return SwapResult{}, err
	}

	amount, overflow := uint256.FromBig(new(big.Int).Abs(params.BaseAmount))
	if overflow {
		return SwapResult{}, model.ErrMathOverflow.Wrap("base amount")
	}
	st := &swapState{
		sqrt:      p.state.SqrtPriceX96.Clone(),
		tick:      p.state.Tick,
		liquidity: p.state.Liquidity.Clone(),
		growth:    p.state.Growth.Clone(),
		remaining: amount,
		base:      new(big.Int),
		quote:     new(big.Int),
	}

	for !st.remaining.IsZero() && !st.sqrt.Eq(sqrtLimit) {
		if err := p.step(st, buy, sqrtLimit, params.Rate); err != nil {
			return SwapResult{}, err
		}
	}

	if !st.remaining.IsZero() && atBound {
		return SwapResult{}, model.ErrInsufficientLiquidity.Wrapf("%s base unfilled at tick %d", st.remaining.ToBig(), st.tick)
	}

	result := SwapResult{
		Base:         st.base,
		Quote:        st.quote,
		Tick:         st.tick,
		SqrtPriceX96: st.sqrt.Clone(),
		Steps:        st.steps,
		Remaining:    st.remaining.ToBig(),
	}
	// Remaining carries the order's sign: Base+Remaining == BaseAmount.
	if !buy {
		result.Remaining.Neg(result.Remaining)
	}

	if params.BeforeCommit != nil {
		if err := params.BeforeCommit(result); err != nil {
			return SwapResult{}, err
		}
	}
	if err := p.writeObservation(params.Now); err != nil {
		return SwapResult{}, err
	}

	for _, c := range st.crossings {
		p.ticks.Cross(c.tick, c.growth)
	}
	p.state.SqrtPriceX96 = st.sqrt
	p.state.Tick = st.tick
	p.state.Liquidity = st.liquidity
	p.state.Growth = st.growth

	p.logger.Debug("swap",
		zap.String("market", p.cfg.Immutable.MarketID.String()),
		zap.Uint32("maturity", p.cfg.Immutable.Maturity),
		zap.String("base", result.Base.String()),
		zap.String("quote", result.Quote.String()),
		zap.Int32("tick", result.Tick),
		zap.Int("steps", len(result.Steps)),
	)
	return result, nil
}

// effectiveLimit resolves the sqrt price the walk may reach, and whether that
// limit is the configured tick bound.
func (p *Pool) effectiveLimit(buy bool, params SwapParams) (*uint256.Int, bool, error) {
	sqrtMin, err := vammmath.SqrtRatioAtTick(p.cfg.Mutable.MinTick)
	if err != nil {
		return nil, false, err
	}
	sqrtMax, err := vammmath.SqrtRatioAtTick(p.cfg.Mutable.MaxTick)
	if err != nil {
		return nil, false, err
	}
	bound := sqrtMax
	if buy {
		bound = sqrtMin
	}

	limit := bound.Clone()
	if params.PriceLimit != nil && params.PriceLimit.Sign() != 0 {
		explicit, err := vammmath.SqrtRatioAtPrice(params.PriceLimit)
		if err != nil {
			return nil, false, err
		}
		if explicit.Lt(sqrtMin) || explicit.Gt(sqrtMax) {
			return nil, false, model.ErrTickOutOfBounds.Wrapf("price limit %s outside configured ticks", params.PriceLimit)
		}
		limit = explicit
	}

	if params.MarkPrice != nil && params.MarkPrice.Sign() > 0 {
		band := params.MarkPriceBand
		if band == nil {
			band = new(big.Int)
		}
		if buy {
			// price may not rise above mark+band: sqrt may not fall below it
			banded, err := vammmath.SqrtRatioAtPrice(new(big.Int).Add(params.MarkPrice, band))
			if err != nil {
				return nil, false, err
			}
			if banded.Gt(limit) {
				limit = banded
			}
		} else if lower := new(big.Int).Sub(params.MarkPrice, band); lower.Sign() > 0 {
			banded, err := vammmath.SqrtRatioAtPrice(lower)
			if err != nil {
				return nil, false, err
			}
			if banded.Lt(limit) {
				limit = banded
			}
		}
	}

	current := p.state.SqrtPriceX96
	if (buy && limit.Gt(current)) || (!buy && limit.Lt(current)) {
		return nil, false, model.ErrPriceBand.Wrapf("limit sqrt %s on the wrong side of %s", limit.ToBig(), current.ToBig())
	}
	return limit, limit.Eq(bound), nil
}

// step executes one segment: up to the next initialized tick, the limit, or
// until the remaining amount runs out.
func (p *Pool) step(st *swapState, buy bool, sqrtLimit *uint256.Int, rate position.RateObservation) error {
	next, initialized := p.ticks.NextInitialized(st.tick, buy)
	if buy && next < p.cfg.Mutable.MinTick {
		next, initialized = p.cfg.Mutable.MinTick, false
	}
	if !buy && next > p.cfg.Mutable.MaxTick {
		next, initialized = p.cfg.Mutable.MaxTick, false
	}
	sqrtNext, err := vammmath.SqrtRatioAtTick(next)
	if err != nil {
		return err
	}

	target := sqrtNext
	if (buy && sqrtNext.Lt(sqrtLimit)) || (!buy && sqrtNext.Gt(sqrtLimit)) {
		target = sqrtLimit
	}

	start := st.sqrt
	end, filled, err := vammmath.ComputeSwapStep(start, target, st.liquidity, st.remaining)
	if err != nil {
		return err
	}
	st.remaining.Sub(st.remaining, filled)

	base := filled.ToBig()
	if !buy {
		base.Neg(base)
	}
	price := vammmath.AveragePrice(start, end)
	quote := vammmath.QuoteForBase(base, price)
	st.base.Add(st.base, base)
	st.quote.Add(st.quote, quote)

	if !st.liquidity.IsZero() && base.Sign() != 0 {
		// makers take the other side of the taker's trade
		dBase := vammmath.ToX128(new(big.Int).Neg(base), st.liquidity)
		dQuote := vammmath.ToX128(new(big.Int).Neg(quote), st.liquidity)
		dInterest := vammmath.MulDivSigned(dBase, rate.Index, vammmath.WAD)
		dInterest.Add(dInterest, vammmath.MulDivSigned(dQuote, big.NewInt(rate.Timestamp), fixedRateDenominator))
		st.growth = st.growth.Add(tick.Growth{Base: dBase, Quote: dQuote, Interest: dInterest})
	}

	s := SwapStep{SqrtStart: start.Clone(), SqrtEnd: end.Clone(), Base: base, Quote: quote, Price: price}

	switch {
	case end.Eq(sqrtNext):
		if initialized {
			net := p.ticks.Get(next).LiquidityNet
			if buy {
				net = new(big.Int).Neg(net)
			}
			liquidity, err := vammmath.AddDelta(st.liquidity, net)
			if err != nil {
				return err
			}
			st.liquidity = liquidity
			st.crossings = append(st.crossings, crossing{tick: next, growth: st.growth.Clone()})
			s.Crossed, s.TickCrossed = true, next
		}
		if buy {
			st.tick = next - 1
		} else {
			st.tick = next
		}
	case !end.Eq(start):
		t, err := vammmath.TickAtSqrtRatio(end)
		if err != nil {
			return err
		}
		st.tick = t
	}
	st.sqrt = end
	st.steps = append(st.steps, s)
	return nil
}
