package market

import (
	"context"
	"math/big"
	"sync"
	"time"

	"datedVamm/internal/model"
	"datedVamm/internal/position"
	"datedVamm/internal/vamm"
)

// Permission names what an order is allowed to do on an account.
type Permission string

const (
	PermissionTaker Permission = "taker"
	PermissionMaker Permission = "maker"
)

// Authorizer decides whether caller may place orders for an account. A
// missing authorizer rejects everything.
type Authorizer interface {
	AuthorizeOrder(ctx context.Context, accountID *big.Int, permission Permission, caller string) error
}

// Propagator receives committed-to-be fills while the instance is still
// locked. Returning an error aborts the order.
type Propagator interface {
	PropagateTakerOrder(ctx context.Context, fill TakerFill) error
	PropagateMakerOrder(ctx context.Context, fill MakerFill) error
}

// RateOracle supplies the variable-rate index for a market.
type RateOracle interface {
	RateAt(ctx context.Context, marketID *big.Int, now int64) (position.RateObservation, error)
}

// Persister stores instance snapshots after every commit.
type Persister interface {
	SavePool(e vamm.Export) error
}

// TakerFill is what a taker order is about to commit.
type TakerFill struct {
	AccountID          *big.Int
	MarketID           *big.Int
	Maturity           uint32
	Base               *big.Int
	Quote              *big.Int
	AnnualizedNotional *big.Int
	Tick               int32
}

// MakerFill is what a maker order is about to commit.
type MakerFill struct {
	AccountID          *big.Int
	MarketID           *big.Int
	Maturity           uint32
	TickLower          int32
	TickUpper          int32
	LiquidityDelta     *big.Int
	Base               *big.Int
	AnnualizedNotional *big.Int
}

// AllowAll authorizes every order.
type AllowAll struct{}

func (AllowAll) AuthorizeOrder(context.Context, *big.Int, Permission, string) error { return nil }

// CallerAllowlist authorizes orders from a fixed set of callers.
type CallerAllowlist map[string]bool

func (a CallerAllowlist) AuthorizeOrder(_ context.Context, accountID *big.Int, permission Permission, caller string) error {
	if !a[caller] {
		return model.ErrUnauthorized.Wrapf("caller %q may not place %s orders for account %s", caller, permission, accountID)
	}
	return nil
}

type denyAll struct{}

func (denyAll) AuthorizeOrder(_ context.Context, accountID *big.Int, permission Permission, caller string) error {
	return model.ErrUnauthorized.Wrapf("no authorizer configured for %s order by %q on account %s", permission, caller, accountID)
}

type noopPropagator struct{}

func (noopPropagator) PropagateTakerOrder(context.Context, TakerFill) error { return nil }
func (noopPropagator) PropagateMakerOrder(context.Context, MakerFill) error { return nil }

// StaticRateOracle serves fixed indices, keyed by market id. It is used
// offline and in tests.
type StaticRateOracle struct {
	mu      sync.RWMutex
	indices map[string]*big.Int
	def     *big.Int
}

// NewStaticRateOracle returns an oracle that answers def for unknown markets.
func NewStaticRateOracle(def *big.Int) *StaticRateOracle {
	return &StaticRateOracle{indices: make(map[string]*big.Int), def: def}
}

// Set overrides the index of one market.
func (o *StaticRateOracle) Set(marketID *big.Int, index *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.indices[marketID.String()] = new(big.Int).Set(index)
}

func (o *StaticRateOracle) RateAt(_ context.Context, marketID *big.Int, now int64) (position.RateObservation, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	index, ok := o.indices[marketID.String()]
	if !ok {
		index = o.def
	}
	if index == nil {
		return position.RateObservation{}, model.ErrInvalidArgument.Wrapf("no rate index for market %s", marketID)
	}
	return position.RateObservation{Index: new(big.Int).Set(index), Timestamp: now}, nil
}

// FixedClock always returns the same instant.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Clock is the time source for maturity gates and oracle writes.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
