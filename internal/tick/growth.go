package tick

import "math/big"

// Growth holds per-unit-liquidity accumulators in X128: executed base, executed
// quote and the interest tracker.
type Growth struct {
	Base     *big.Int `json:"base"`
	Quote    *big.Int `json:"quote"`
	Interest *big.Int `json:"interest"`
}

// ZeroGrowth returns a Growth with every tracker at zero.
func ZeroGrowth() Growth {
	return Growth{Base: new(big.Int), Quote: new(big.Int), Interest: new(big.Int)}
}

// Clone returns a deep copy; nil trackers become zero.
func (g Growth) Clone() Growth {
	return Growth{Base: cloneInt(g.Base), Quote: cloneInt(g.Quote), Interest: cloneInt(g.Interest)}
}

// Sub returns g - o.
func (g Growth) Sub(o Growth) Growth {
	return Growth{
		Base:     new(big.Int).Sub(cloneInt(g.Base), cloneInt(o.Base)),
		Quote:    new(big.Int).Sub(cloneInt(g.Quote), cloneInt(o.Quote)),
		Interest: new(big.Int).Sub(cloneInt(g.Interest), cloneInt(o.Interest)),
	}
}

// Add returns g + o.
func (g Growth) Add(o Growth) Growth {
	return Growth{
		Base:     new(big.Int).Add(cloneInt(g.Base), cloneInt(o.Base)),
		Quote:    new(big.Int).Add(cloneInt(g.Quote), cloneInt(o.Quote)),
		Interest: new(big.Int).Add(cloneInt(g.Interest), cloneInt(o.Interest)),
	}
}

// Equal reports whether all three trackers match.
func (g Growth) Equal(o Growth) bool {
	return cloneInt(g.Base).Cmp(cloneInt(o.Base)) == 0 &&
		cloneInt(g.Quote).Cmp(cloneInt(o.Quote)) == 0 &&
		cloneInt(g.Interest).Cmp(cloneInt(o.Interest)) == 0
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
