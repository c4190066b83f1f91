package market

import (
	"context"
	"math/big"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"datedVamm/internal/events"
	"datedVamm/internal/model"
	"datedVamm/internal/position"
	"datedVamm/internal/vamm"
	"datedVamm/internal/vammmath"
)

var secondsPerYear = big.NewInt(position.SecondsPerYear)

// TakerOrderParams is a taker order. A positive BaseAmount buys base.
type TakerOrderParams struct {
	AccountID  *big.Int
	MarketID   *big.Int
	Maturity   uint32
	BaseAmount *big.Int
	// PriceLimit is a WAD price; nil or zero means no explicit limit.
	PriceLimit    *big.Int
	MarkPrice     sdkmath.LegacyDec
	MarkPriceBand sdkmath.LegacyDec
	Caller        string
}

// TakerOrderResult reports the executed amounts from the taker's side.
type TakerOrderResult struct {
	ExecutedBase       *big.Int
	ExecutedQuote      *big.Int
	AnnualizedNotional *big.Int
	Remaining          *big.Int
	Tick               int32
	SqrtPriceX96       *uint256.Int
	Steps              []vamm.SwapStep
}

// ExecuteTakerOrder swaps against an instance.
func (m *Manager) ExecuteTakerOrder(ctx context.Context, params TakerOrderParams) (TakerOrderResult, error) {
	pool, err := m.Pool(params.MarketID, params.Maturity)
	if err != nil {
		return TakerOrderResult{}, err
	}
	res, err := m.executeTaker(ctx, pool, params)
	m.count(m.metrics.TakerOrders, pool, err)
	if err != nil {
		m.reject(pool, err)
		return TakerOrderResult{}, err
	}
	return res, nil
}

func (m *Manager) executeTaker(ctx context.Context, pool *vamm.Pool, params TakerOrderParams) (TakerOrderResult, error) {
	now := m.now()
	if err := m.gate(pool, now); err != nil {
		return TakerOrderResult{}, err
	}
	if params.AccountID == nil {
		return TakerOrderResult{}, model.ErrInvalidArgument.Wrap("account id is required")
	}
	if params.MarkPrice.IsNil() || !params.MarkPrice.IsPositive() {
		return TakerOrderResult{}, model.ErrInvalidArgument.Wrap("mark price must be positive")
	}
	band := new(big.Int)
	if !params.MarkPriceBand.IsNil() {
		if params.MarkPriceBand.IsNegative() {
			return TakerOrderResult{}, model.ErrInvalidArgument.Wrap("mark price band must be non-negative")
		}
		band = params.MarkPriceBand.BigInt()
	}
	if err := m.auth.AuthorizeOrder(ctx, params.AccountID, PermissionTaker, params.Caller); err != nil {
		return TakerOrderResult{}, err
	}
	rate, err := m.rates.RateAt(ctx, params.MarketID, now)
	if err != nil {
		return TakerOrderResult{}, err
	}

	maturity := params.Maturity
	swap, err := pool.Swap(vamm.SwapParams{
		BaseAmount:    params.BaseAmount,
		PriceLimit:    params.PriceLimit,
		MarkPrice:     params.MarkPrice.BigInt(),
		MarkPriceBand: band,
		Rate:          rate,
		Now:           now,
		BeforeCommit: func(r vamm.SwapResult) error {
			return m.propagator.PropagateTakerOrder(ctx, TakerFill{
				AccountID:          params.AccountID,
				MarketID:           params.MarketID,
				Maturity:           maturity,
				Base:               r.Base,
				Quote:              r.Quote,
				AnnualizedNotional: AnnualizedNotional(r.Base, rate.Index, maturity, now),
				Tick:               r.Tick,
			})
		},
	})
	if err != nil {
		return TakerOrderResult{}, err
	}

	res := TakerOrderResult{
		ExecutedBase:       swap.Base,
		ExecutedQuote:      swap.Quote,
		AnnualizedNotional: AnnualizedNotional(swap.Base, rate.Index, maturity, now),
		Remaining:          swap.Remaining,
		Tick:               swap.Tick,
		SqrtPriceX96:       swap.SqrtPriceX96,
		Steps:              swap.Steps,
	}
	m.metrics.SwapSteps.Observe(float64(len(swap.Steps)))

	state := pool.State()
	m.afterCommit(pool, now, func() (model.LogRecord, error) {
		return m.encoder.TakerOrder(now, events.TakerOrder{
			AccountID:          params.AccountID,
			MarketID:           params.MarketID,
			Maturity:           maturity,
			ExecutedBase:       res.ExecutedBase,
			ExecutedQuote:      res.ExecutedQuote,
			AnnualizedNotional: res.AnnualizedNotional,
			SqrtPriceX96:       state.SqrtPriceX96.ToBig(),
			Liquidity:          state.Liquidity.ToBig(),
			Tick:               state.Tick,
		})
	})
	m.logger.Info("taker order executed",
		zap.String("account", params.AccountID.String()),
		zap.String("market", params.MarketID.String()),
		zap.Uint32("maturity", maturity),
		zap.String("base", res.ExecutedBase.String()),
		zap.String("quote", res.ExecutedQuote.String()),
		zap.Int32("tick", res.Tick),
	)
	return res, nil
}

// MakerOrderParams adds or removes range liquidity. Exactly one of
// LiquidityDelta and BaseAmount is set; a signed BaseAmount is converted to
// liquidity over the range.
type MakerOrderParams struct {
	AccountID      *big.Int
	MarketID       *big.Int
	Maturity       uint32
	TickLower      int32
	TickUpper      int32
	LiquidityDelta *big.Int
	BaseAmount     *big.Int
	Caller         string
}

// MakerOrderResult reports the committed change.
type MakerOrderResult struct {
	LiquidityDelta     *big.Int
	Base               *big.Int
	AnnualizedNotional *big.Int
	Position           *position.Position
}

// ExecuteMakerOrder mints or burns range liquidity.
func (m *Manager) ExecuteMakerOrder(ctx context.Context, params MakerOrderParams) (MakerOrderResult, error) {
	pool, err := m.Pool(params.MarketID, params.Maturity)
	if err != nil {
		return MakerOrderResult{}, err
	}
	res, err := m.executeMaker(ctx, pool, params)
	m.count(m.metrics.MakerOrders, pool, err)
	if err != nil {
		m.reject(pool, err)
		return MakerOrderResult{}, err
	}
	return res, nil
}

func (m *Manager) executeMaker(ctx context.Context, pool *vamm.Pool, params MakerOrderParams) (MakerOrderResult, error) {
	now := m.now()
	if err := m.gate(pool, now); err != nil {
		return MakerOrderResult{}, err
	}
	if params.AccountID == nil {
		return MakerOrderResult{}, model.ErrInvalidArgument.Wrap("account id is required")
	}
	if err := pool.ValidateRange(params.TickLower, params.TickUpper); err != nil {
		return MakerOrderResult{}, err
	}
	delta, err := makerLiquidity(params)
	if err != nil {
		return MakerOrderResult{}, err
	}
	if err := m.auth.AuthorizeOrder(ctx, params.AccountID, PermissionMaker, params.Caller); err != nil {
		return MakerOrderResult{}, err
	}
	rate, err := m.rates.RateAt(ctx, params.MarketID, now)
	if err != nil {
		return MakerOrderResult{}, err
	}

	maturity := params.Maturity
	limit := pool.Config().Mutable.MakerPositionsLimit
	key := position.Key{
		AccountID: params.AccountID,
		MarketID:  params.MarketID,
		Maturity:  maturity,
		TickLower: params.TickLower,
		TickUpper: params.TickUpper,
	}
	mod, err := pool.ModifyLiquidity(vamm.ModifyLiquidityParams{
		Key:            key,
		LiquidityDelta: delta,
		Rate:           rate,
		Now:            now,
		BeforeCommit: func(r vamm.ModifyLiquidityResult) error {
			if delta.Sign() > 0 {
				if open := pool.OpenPositions(params.AccountID, r.Position); open > limit {
					return model.ErrPositionLimit.Wrapf("account %s would hold %d open positions, limit %d", params.AccountID, open, limit)
				}
			}
			return m.propagator.PropagateMakerOrder(ctx, MakerFill{
				AccountID:          params.AccountID,
				MarketID:           params.MarketID,
				Maturity:           maturity,
				TickLower:          params.TickLower,
				TickUpper:          params.TickUpper,
				LiquidityDelta:     delta,
				Base:               r.Base,
				AnnualizedNotional: AnnualizedNotional(r.Base, rate.Index, maturity, now),
			})
		},
	})
	if err != nil {
		return MakerOrderResult{}, err
	}

	res := MakerOrderResult{
		LiquidityDelta:     delta,
		Base:               mod.Base,
		AnnualizedNotional: AnnualizedNotional(mod.Base, rate.Index, maturity, now),
		Position:           mod.Position,
	}
	m.afterCommit(pool, now, func() (model.LogRecord, error) {
		return m.encoder.LiquidityChange(now, events.LiquidityChange{
			AccountID:      params.AccountID,
			MarketID:       params.MarketID,
			Maturity:       maturity,
			TickLower:      params.TickLower,
			TickUpper:      params.TickUpper,
			LiquidityDelta: delta,
			Base:           mod.Base,
		})
	})
	m.logger.Info("maker order executed",
		zap.String("account", params.AccountID.String()),
		zap.String("market", params.MarketID.String()),
		zap.Uint32("maturity", maturity),
		zap.Int32("lower", params.TickLower),
		zap.Int32("upper", params.TickUpper),
		zap.String("liquidity_delta", delta.String()),
	)
	return res, nil
}

// makerLiquidity resolves the signed liquidity delta of a maker order.
func makerLiquidity(params MakerOrderParams) (*big.Int, error) {
	hasDelta := params.LiquidityDelta != nil && params.LiquidityDelta.Sign() != 0
	hasBase := params.BaseAmount != nil && params.BaseAmount.Sign() != 0
	switch {
	case hasDelta && hasBase:
		return nil, model.ErrInvalidArgument.Wrap("set either liquidity delta or base amount")
	case hasDelta:
		return new(big.Int).Set(params.LiquidityDelta), nil
	case !hasBase:
		return nil, model.ErrInvalidArgument.Wrap("maker order is empty")
	}

	sqrtLower, err := vammmath.SqrtRatioAtTick(params.TickLower)
	if err != nil {
		return nil, err
	}
	sqrtUpper, err := vammmath.SqrtRatioAtTick(params.TickUpper)
	if err != nil {
		return nil, err
	}
	base, overflow := uint256.FromBig(new(big.Int).Abs(params.BaseAmount))
	if overflow {
		return nil, model.ErrMathOverflow.Wrap("base amount")
	}
	liquidity, err := vammmath.LiquidityForBase(sqrtLower, sqrtUpper, base)
	if err != nil {
		return nil, err
	}
	if liquidity.IsZero() {
		return nil, model.ErrInvalidArgument.Wrapf("base %s rounds to zero liquidity", params.BaseAmount)
	}
	out := liquidity.ToBig()
	if params.BaseAmount.Sign() < 0 {
		out.Neg(out)
	}
	return out, nil
}

// AnnualizedNotional is |base| * index * (maturity - now) / year, zero once
// matured.
func AnnualizedNotional(base, index *big.Int, maturity uint32, now int64) *big.Int {
	remaining := int64(maturity) - now
	if base == nil || index == nil || remaining <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Abs(base)
	out.Mul(out, index)
	out.Mul(out, big.NewInt(remaining))
	return out.Quo(out, new(big.Int).Mul(vammmath.WAD, secondsPerYear))
}

func (m *Manager) count(vec *prometheus.CounterVec, pool *vamm.Pool, err error) {
	status := "ok"
	if err != nil {
		status = "rejected"
		if model.IsInvariantViolation(err) {
			status = "failed"
		}
	}
	imm := pool.Config().Immutable
	vec.WithLabelValues(imm.MarketID.String(), strconv.FormatUint(uint64(imm.Maturity), 10), status).Inc()
}
