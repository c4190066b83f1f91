package position

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"datedVamm/internal/model"
	"datedVamm/internal/tick"
	"datedVamm/internal/vammmath"
)

// SecondsPerYear is the day-count basis for fixed-rate accrual.
const SecondsPerYear = 365 * 24 * 60 * 60

// fixedRateDenominator converts quote*seconds into interest: quote is quoted
// in percent per year.
var fixedRateDenominator = big.NewInt(100 * SecondsPerYear)

// RateObservation is a variable-rate index sample (WAD) at a timestamp.
type RateObservation struct {
	Index     *big.Int
	Timestamp int64
}

// Position is a range position and its accrued balances.
type Position struct {
	ID        common.Hash  `json:"id"`
	Key       Key          `json:"key"`
	Liquidity *uint256.Int `json:"liquidity"`

	GrowthInsideLast tick.Growth `json:"growthInsideLast"`

	Base            *big.Int `json:"base"`
	Quote           *big.Int `json:"quote"`
	AccruedInterest *big.Int `json:"accruedInterest"`

	LastIndex *big.Int `json:"lastIndex"`
	LastMark  int64    `json:"lastMark"`
}

func newPosition(id common.Hash, key Key) *Position {
	return &Position{
		ID:               id,
		Key:              key,
		Liquidity:        new(uint256.Int),
		GrowthInsideLast: tick.ZeroGrowth(),
		Base:             new(big.Int),
		Quote:            new(big.Int),
		AccruedInterest:  new(big.Int),
		LastIndex:        new(big.Int),
	}
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	return &Position{
		ID: p.ID,
		Key: Key{
			AccountID: new(big.Int).Set(p.Key.AccountID),
			MarketID:  new(big.Int).Set(p.Key.MarketID),
			Maturity:  p.Key.Maturity,
			TickLower: p.Key.TickLower,
			TickUpper: p.Key.TickUpper,
		},
		Liquidity:        p.Liquidity.Clone(),
		GrowthInsideLast: p.GrowthInsideLast.Clone(),
		Base:             new(big.Int).Set(p.Base),
		Quote:            new(big.Int).Set(p.Quote),
		AccruedInterest:  new(big.Int).Set(p.AccruedInterest),
		LastIndex:        new(big.Int).Set(p.LastIndex),
		LastMark:         p.LastMark,
	}
}

// UpdateLiquidity applies a signed liquidity delta.
func (p *Position) UpdateLiquidity(delta *big.Int) error {
	next, err := vammmath.AddDelta(p.Liquidity, delta)
	if err != nil {
		return err
	}
	p.Liquidity = next
	return nil
}

// UpdateTokenBalances accrues the growth inside the range since the last
// snapshot and marks interest to rate. Interest on balances already held runs
// from the last mark; interest on the newly credited growth is recovered from
// the interest tracker, which recorded the index and time of every swap step.
func (p *Position) UpdateTokenBalances(growthInside tick.Growth, rate RateObservation) error {
	if rate.Index == nil {
		return model.ErrInvalidArgument.Wrap("missing rate index")
	}
	if rate.Timestamp < p.LastMark {
		return model.ErrTimestampRegression.Wrapf("mark at %d before %d", rate.Timestamp, p.LastMark)
	}

	held := vammmath.MulDivSigned(p.Base, new(big.Int).Sub(rate.Index, p.LastIndex), vammmath.WAD)
	heldFixed := vammmath.MulDivSigned(p.Quote, big.NewInt(rate.Timestamp-p.LastMark), fixedRateDenominator)
	held.Add(held, heldFixed)

	delta := growthInside.Sub(p.GrowthInsideLast)
	// dB*I/WAD + dQ*t/(100*YEAR) - dH, all per liquidity in X128
	credited := vammmath.MulDivSigned(delta.Base, rate.Index, vammmath.WAD)
	credited.Add(credited, vammmath.MulDivSigned(delta.Quote, big.NewInt(rate.Timestamp), fixedRateDenominator))
	credited.Sub(credited, delta.Interest)

	p.AccruedInterest.Add(p.AccruedInterest, held)
	p.AccruedInterest.Add(p.AccruedInterest, vammmath.FromX128(credited, p.Liquidity))
	p.Base.Add(p.Base, vammmath.FromX128(delta.Base, p.Liquidity))
	p.Quote.Add(p.Quote, vammmath.FromX128(delta.Quote, p.Liquidity))

	p.GrowthInsideLast = growthInside.Clone()
	p.LastIndex = new(big.Int).Set(rate.Index)
	p.LastMark = rate.Timestamp
	return nil
}
