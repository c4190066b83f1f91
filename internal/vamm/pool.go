package vamm

import (
	"math/big"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"datedVamm/internal/model"
	"datedVamm/internal/oracle"
	"datedVamm/internal/position"
	"datedVamm/internal/tick"
	"datedVamm/internal/vammmath"
)

// GlobalState is the mutable price state of one market+maturity instance.
type GlobalState struct {
	SqrtPriceX96 *uint256.Int `json:"sqrtPriceX96"`
	Tick         int32        `json:"tick"`
	Liquidity    *uint256.Int `json:"liquidity"`
	Growth       tick.Growth  `json:"growth"`
	Locked       bool         `json:"-"`
}

func (g GlobalState) clone() GlobalState {
	return GlobalState{
		SqrtPriceX96: g.SqrtPriceX96.Clone(),
		Tick:         g.Tick,
		Liquidity:    g.Liquidity.Clone(),
		Growth:       g.Growth.Clone(),
		Locked:       g.Locked,
	}
}

// Pool is one market+maturity instance: price state, tick registry, oracle
// ring and positions. A Pool is not safe for concurrent use; callers
// serialize access.
type Pool struct {
	cfg       Config
	state     GlobalState
	ticks     *tick.Registry
	oracle    *oracle.Ring
	positions *position.Store
	logger    *zap.Logger
}

// NewPool creates a pool seeded at initialSqrtPriceX96 with its first oracle
// observation at now.
func NewPool(cfg Config, initialSqrtPriceX96 *uint256.Int, now int64, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Immutable.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Mutable.Validate(cfg.Immutable.TickSpacing); err != nil {
		return nil, err
	}
	if initialSqrtPriceX96 == nil {
		return nil, model.ErrInvalidArgument.Wrap("initial sqrt price is required")
	}
	currentTick, err := vammmath.TickAtSqrtRatio(initialSqrtPriceX96)
	if err != nil {
		return nil, err
	}
	if currentTick < cfg.Mutable.MinTick || currentTick >= cfg.Mutable.MaxTick {
		return nil, model.ErrTickOutOfBounds.Wrapf("initial tick %d outside [%d, %d)", currentTick, cfg.Mutable.MinTick, cfg.Mutable.MaxTick)
	}

	registry, err := tick.NewRegistry(cfg.Immutable.TickSpacing, cfg.Immutable.MaxLiquidityPerTick)
	if err != nil {
		return nil, err
	}
	cfg.Immutable.MaxLiquidityPerTick = registry.MaxLiquidity()

	ring := oracle.NewRing()
	ring.Initialize(now)
	if err := ring.Grow(cfg.Mutable.ObservationCardinalityTarget); err != nil {
		return nil, err
	}

	p := &Pool{
		cfg: cfg,
		state: GlobalState{
			SqrtPriceX96: initialSqrtPriceX96.Clone(),
			Tick:         currentTick,
			Liquidity:    new(uint256.Int),
			Growth:       tick.ZeroGrowth(),
		},
		ticks:     registry,
		oracle:    ring,
		positions: position.NewStore(),
		logger:    logger,
	}
	logger.Info("pool created",
		zap.String("market", cfg.Immutable.MarketID.String()),
		zap.Uint32("maturity", cfg.Immutable.Maturity),
		zap.Int32("tick", currentTick),
	)
	return p, nil
}

// NewPoolAtTick seeds the pool at the sqrt price of a tick.
func NewPoolAtTick(cfg Config, initialTick int32, now int64, logger *zap.Logger) (*Pool, error) {
	sqrt, err := vammmath.SqrtRatioAtTick(initialTick)
	if err != nil {
		return nil, err
	}
	return NewPool(cfg, sqrt, now, logger)
}

// lock acquires the reentrancy guard. The returned release must be deferred.
func (p *Pool) lock() (func(), error) {
	if p.state.Locked {
		return nil, model.ErrLocked.Wrapf("market %s maturity %d", p.cfg.Immutable.MarketID, p.cfg.Immutable.Maturity)
	}
	p.state.Locked = true
	return func() { p.state.Locked = false }, nil
}

// Locked reports whether an operation is in progress.
func (p *Pool) Locked() bool { return p.state.Locked }

// Config returns the pool configuration.
func (p *Pool) Config() Config { return p.cfg }

// State returns a copy of the global state.
func (p *Pool) State() GlobalState { return p.state.clone() }

// Tick returns a copy of a tick record.
func (p *Pool) Tick(t int32) tick.Info { return p.ticks.Get(t) }

// InitializedTicks lists the initialized ticks in ascending order.
func (p *Pool) InitializedTicks() []int32 { return p.ticks.Ticks() }

// CheckInvariants verifies tick registry consistency.
func (p *Pool) CheckInvariants() error { return p.ticks.CheckInvariants() }

// Position returns a copy of a committed position.
func (p *Pool) Position(key position.Key) (*position.Position, bool, error) {
	id, err := position.ID(key)
	if err != nil {
		return nil, false, err
	}
	pos, ok := p.positions.Get(id)
	return pos, ok, nil
}

// AccountPositions returns the account's positions in this pool.
func (p *Pool) AccountPositions(accountID *big.Int) []*position.Position {
	return p.positions.ByAccount(accountID.String())
}

// UpdateMutableConfig replaces the operator-adjustable settings. Growing the
// observation target prepares new ring slots immediately.
func (p *Pool) UpdateMutableConfig(m MutableConfig) error {
	release, err := p.lock()
	if err != nil {
		return err
	}
	defer release()

	if err := m.Validate(p.cfg.Immutable.TickSpacing); err != nil {
		return err
	}
	if err := p.oracle.Grow(m.ObservationCardinalityTarget); err != nil {
		return err
	}
	p.cfg.Mutable = m
	p.logger.Info("pool config updated",
		zap.String("market", p.cfg.Immutable.MarketID.String()),
		zap.Uint32("maturity", p.cfg.Immutable.Maturity),
		zap.Bool("paused", m.Paused),
	)
	return nil
}

// SetPaused toggles the paused flag.
func (p *Pool) SetPaused(paused bool) error {
	m := p.cfg.Mutable
	m.Paused = paused
	return p.UpdateMutableConfig(m)
}

// ArithmeticMeanTick returns the mean tick over the last window seconds.
func (p *Pool) ArithmeticMeanTick(now, window int64) (int32, error) {
	return p.oracle.ArithmeticMeanTick(now, window, p.state.Tick, p.state.Liquidity)
}

// writeObservation records the state in effect until now.
func (p *Pool) writeObservation(now int64) error {
	return p.oracle.Write(now, p.state.Tick, p.state.Liquidity)
}
