package vamm

import (
	"math/big"

	"go.uber.org/zap"

	"datedVamm/internal/model"
	"datedVamm/internal/position"
	"datedVamm/internal/vammmath"
)

// ModifyLiquidityParams adds (positive) or removes (negative) liquidity for a
// range position.
type ModifyLiquidityParams struct {
	Key            position.Key
	LiquidityDelta *big.Int
	Rate           position.RateObservation
	Now            int64
	// BeforeCommit runs under the pool lock with the updated position. An
	// error rolls everything back.
	BeforeCommit func(ModifyLiquidityResult) error
}

// ModifyLiquidityResult carries the committed position and the base the
// delta represents across the range.
type ModifyLiquidityResult struct {
	Position *position.Position
	Base     *big.Int
}

// ValidateRange checks that a range is ordered, aligned to spacing and inside
// the configured bounds.
func (p *Pool) ValidateRange(lower, upper int32) error {
	if lower >= upper {
		return model.ErrInvalidTickRange.Wrapf("lower %d >= upper %d", lower, upper)
	}
	spacing := p.cfg.Immutable.TickSpacing
	if lower%spacing != 0 || upper%spacing != 0 {
		return model.ErrInvalidTickRange.Wrapf("[%d, %d] not aligned to spacing %d", lower, upper, spacing)
	}
	if lower < p.cfg.Mutable.MinTick || upper > p.cfg.Mutable.MaxTick {
		return model.ErrTickOutOfBounds.Wrapf("[%d, %d] outside [%d, %d]", lower, upper, p.cfg.Mutable.MinTick, p.cfg.Mutable.MaxTick)
	}
	return nil
}

// ModifyLiquidity updates both bounding ticks, marks the position to the
// growth inside its range and adjusts active liquidity when the range spans
// the current tick. Any failure leaves ticks, position and oracle untouched.
func (p *Pool) ModifyLiquidity(params ModifyLiquidityParams) (res ModifyLiquidityResult, err error) {
	release, err := p.lock()
	if err != nil {
		return ModifyLiquidityResult{}, err
	}
	defer release()

	lower, upper := params.Key.TickLower, params.Key.TickUpper
	if err := p.ValidateRange(lower, upper); err != nil {
		return ModifyLiquidityResult{}, err
	}
	if params.LiquidityDelta == nil {
		return ModifyLiquidityResult{}, model.ErrInvalidArgument.Wrap("missing liquidity delta")
	}
	if params.Rate.Index == nil {
		return ModifyLiquidityResult{}, model.ErrInvalidArgument.Wrap("missing rate index")
	}
	if err := p.oracle.CheckWrite(params.Now); err != nil {
		return ModifyLiquidityResult{}, err
	}

	pos, err := p.positions.LoadOrCreate(params.Key)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}

	snapshot := p.ticks.Snapshot(lower, upper)
	defer func() {
		if err != nil {
			p.ticks.Restore(snapshot)
		}
	}()

	delta := params.LiquidityDelta
	if delta.Sign() != 0 {
		if _, err = p.ticks.Update(lower, p.state.Tick, delta, p.state.Growth, false); err != nil {
			return ModifyLiquidityResult{}, err
		}
		if _, err = p.ticks.Update(upper, p.state.Tick, delta, p.state.Growth, true); err != nil {
			return ModifyLiquidityResult{}, err
		}
	}

	inside := p.ticks.GrowthInside(lower, upper, p.state.Tick, p.state.Growth)
	if err = pos.UpdateTokenBalances(inside, params.Rate); err != nil {
		return ModifyLiquidityResult{}, err
	}
	if err = pos.UpdateLiquidity(delta); err != nil {
		return ModifyLiquidityResult{}, err
	}

	active := p.state.Liquidity
	if lower <= p.state.Tick && p.state.Tick < upper {
		if active, err = vammmath.AddDelta(active, delta); err != nil {
			return ModifyLiquidityResult{}, err
		}
	}

	sqrtLower, err := vammmath.SqrtRatioAtTick(lower)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}
	sqrtUpper, err := vammmath.SqrtRatioAtTick(upper)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}
	absDelta, overflow := uint256FromAbs(delta)
	if overflow {
		return ModifyLiquidityResult{}, model.ErrMathOverflow.Wrap("liquidity delta")
	}
	base, err := vammmath.BaseBetween(sqrtLower, sqrtUpper, absDelta, delta.Sign() > 0)
	if err != nil {
		return ModifyLiquidityResult{}, err
	}
	res = ModifyLiquidityResult{Position: pos.Clone(), Base: base.ToBig()}
	if delta.Sign() < 0 {
		res.Base.Neg(res.Base)
	}

	if params.BeforeCommit != nil {
		if err = params.BeforeCommit(res); err != nil {
			return ModifyLiquidityResult{}, err
		}
	}
	if err = p.writeObservation(params.Now); err != nil {
		return ModifyLiquidityResult{}, err
	}

	p.positions.Put(pos)
	p.state.Liquidity = active

	p.logger.Debug("liquidity modified",
		zap.String("market", p.cfg.Immutable.MarketID.String()),
		zap.Uint32("maturity", p.cfg.Immutable.Maturity),
		zap.String("position", pos.ID.Hex()),
		zap.Int32("lower", lower),
		zap.Int32("upper", upper),
		zap.String("delta", delta.String()),
	)
	return res, nil
}

// OpenPositions counts the account's positions holding liquidity, counting
// pending in place of its committed version.
func (p *Pool) OpenPositions(accountID *big.Int, pending *position.Position) int {
	return p.positions.OpenCount(accountID.String(), pending)
}
