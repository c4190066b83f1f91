package market

import (
	"context"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"datedVamm/internal/model"
	"datedVamm/internal/oracle"
	"datedVamm/internal/vamm"
	"datedVamm/internal/vammmath"
)

// AccountFilledBalances marks the account's positions to the current rate.
func (m *Manager) AccountFilledBalances(ctx context.Context, marketID *big.Int, maturity uint32, accountID *big.Int) (vamm.FilledBalances, error) {
	pool, err := m.Pool(marketID, maturity)
	if err != nil {
		return vamm.FilledBalances{}, err
	}
	if accountID == nil {
		return vamm.FilledBalances{}, model.ErrInvalidArgument.Wrap("account id is required")
	}
	rate, err := m.rates.RateAt(ctx, marketID, m.now())
	if err != nil {
		return vamm.FilledBalances{}, err
	}
	return pool.AccountFilledBalances(accountID, rate)
}

// AccountUnfilledBalances reports the account's resting liquidity.
func (m *Manager) AccountUnfilledBalances(marketID *big.Int, maturity uint32, accountID *big.Int) (vamm.UnfilledBalances, error) {
	pool, err := m.Pool(marketID, maturity)
	if err != nil {
		return vamm.UnfilledBalances{}, err
	}
	if accountID == nil {
		return vamm.UnfilledBalances{}, model.ErrInvalidArgument.Wrap("account id is required")
	}
	return pool.AccountUnfilledBalances(accountID)
}

// AdjustedTwap returns the geometric-mean price over the lookback window,
// adjusted for the impact and spread an order of orderSize base would pay. A
// zero window uses the spot price; a nil or zero size skips the adjustment.
func (m *Manager) AdjustedTwap(ctx context.Context, marketID *big.Int, maturity uint32, orderSize *big.Int, window int64) (sdkmath.LegacyDec, error) {
	pool, err := m.Pool(marketID, maturity)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if window < 0 {
		return sdkmath.LegacyDec{}, model.ErrInvalidArgument.Wrapf("window %d", window)
	}
	now := m.now()

	var priceWad *big.Int
	if window == 0 {
		priceWad = vammmath.PriceAtSqrtRatio(pool.State().SqrtPriceX96)
	} else {
		meanTick, err := pool.ArithmeticMeanTick(now, window)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		if priceWad, err = vammmath.PriceAtTick(meanTick); err != nil {
			return sdkmath.LegacyDec{}, err
		}
	}
	price := sdkmath.LegacyNewDecFromBigIntWithPrec(priceWad, sdkmath.LegacyPrecision)
	if orderSize == nil || orderSize.Sign() == 0 {
		return price, nil
	}

	rate, err := m.rates.RateAt(ctx, marketID, now)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	notional := AnnualizedNotional(orderSize, rate.Index, maturity, now)
	cfg := pool.Config().Mutable
	return oracle.AdjustedPrice(price, orderSize.Sign(), sdkmath.LegacyNewDecFromBigInt(notional), oracle.Adjustment{
		PriceImpactPhi:  cfg.PriceImpactPhi,
		PriceImpactBeta: cfg.PriceImpactBeta,
		Spread:          cfg.Spread,
	})
}
