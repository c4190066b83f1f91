package market

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"datedVamm/internal/events"
	"datedVamm/internal/model"
	"datedVamm/internal/storage"
	"datedVamm/internal/vamm"
)

// PoolKey identifies one market+maturity instance.
type PoolKey struct {
	MarketID string
	Maturity uint32
}

func (k PoolKey) String() string { return fmt.Sprintf("%s/%d", k.MarketID, k.Maturity) }

func keyOf(marketID *big.Int, maturity uint32) PoolKey {
	return PoolKey{MarketID: marketID.String(), Maturity: maturity}
}

// Options wires the manager's collaborators. Rates is required.
type Options struct {
	Rates      RateOracle
	Authorizer Authorizer
	Propagator Propagator
	Clock      Clock
	// Journal and Encoder are optional; both must be set for events to be
	// recorded.
	Journal   storage.Storage
	Encoder   *events.Encoder
	Persister Persister
	Metrics   *Metrics
	Logger    *zap.Logger
	// DefaultMutable applies to pools created without explicit settings.
	DefaultMutable *vamm.MutableConfig
}

// Manager binds instances into order entry points gated by pause, maturity,
// authorization and position limits. It is not safe for concurrent use;
// callers serialize every call.
type Manager struct {
	pools      map[PoolKey]*vamm.Pool
	rates      RateOracle
	auth       Authorizer
	propagator Propagator
	clock      Clock
	journal    storage.Storage
	encoder    *events.Encoder
	persister  Persister
	metrics    *Metrics
	logger     *zap.Logger
	defaults   vamm.MutableConfig
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Rates == nil {
		return nil, fmt.Errorf("rate oracle is required")
	}
	m := &Manager{
		pools:      make(map[PoolKey]*vamm.Pool),
		rates:      opts.Rates,
		auth:       opts.Authorizer,
		propagator: opts.Propagator,
		clock:      opts.Clock,
		journal:    opts.Journal,
		encoder:    opts.Encoder,
		persister:  opts.Persister,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		defaults:   vamm.DefaultMutableConfig(),
	}
	if m.auth == nil {
		m.auth = denyAll{}
	}
	if m.propagator == nil {
		m.propagator = noopPropagator{}
	}
	if m.clock == nil {
		m.clock = systemClock{}
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if opts.DefaultMutable != nil {
		if err := opts.DefaultMutable.Validate(1); err != nil {
			return nil, fmt.Errorf("default mutable config: %w", err)
		}
		m.defaults = *opts.DefaultMutable
	}
	return m, nil
}

func (m *Manager) now() int64 { return m.clock.Now().Unix() }

// CreatePoolParams describes a new instance. InitialSqrtPriceX96 takes
// precedence over InitialTick when set.
type CreatePoolParams struct {
	MarketID            *big.Int
	Maturity            uint32
	TickSpacing         int32
	MaxLiquidityPerTick *uint256.Int
	InitialTick         int32
	InitialSqrtPriceX96 *uint256.Int
	Mutable             *vamm.MutableConfig
}

// CreatePool registers a new instance.
func (m *Manager) CreatePool(ctx context.Context, params CreatePoolParams) (*vamm.Pool, error) {
	if params.MarketID == nil {
		return nil, model.ErrInvalidArgument.Wrap("market id is required")
	}
	key := keyOf(params.MarketID, params.Maturity)
	if _, ok := m.pools[key]; ok {
		return nil, model.ErrPoolExists.Wrap(key.String())
	}
	now := m.now()
	if int64(params.Maturity) <= now {
		return nil, model.ErrInvalidArgument.Wrapf("maturity %d is not in the future", params.Maturity)
	}

	mutable := m.defaults
	if params.Mutable != nil {
		mutable = *params.Mutable
	}
	cfg := vamm.Config{
		Immutable: vamm.ImmutableConfig{
			MarketID:            new(big.Int).Set(params.MarketID),
			Maturity:            params.Maturity,
			TickSpacing:         params.TickSpacing,
			MaxLiquidityPerTick: params.MaxLiquidityPerTick,
		},
		Mutable: mutable,
	}

	var (
		pool *vamm.Pool
		err  error
	)
	if params.InitialSqrtPriceX96 != nil {
		pool, err = vamm.NewPool(cfg, params.InitialSqrtPriceX96, now, m.logger)
	} else {
		pool, err = vamm.NewPoolAtTick(cfg, params.InitialTick, now, m.logger)
	}
	if err != nil {
		return nil, err
	}
	m.pools[key] = pool
	m.metrics.PoolsTotal.Set(float64(len(m.pools)))
	m.afterCommit(pool, now, m.configuredRecord(pool, now))
	return pool, nil
}

// LoadPools registers previously persisted instances.
func (m *Manager) LoadPools(exports []vamm.Export) error {
	for _, e := range exports {
		pool, err := vamm.Import(e, m.logger)
		if err != nil {
			return fmt.Errorf("import pool %s/%d: %w", e.Config.Immutable.MarketID, e.Config.Immutable.Maturity, err)
		}
		imm := pool.Config().Immutable
		m.pools[keyOf(imm.MarketID, imm.Maturity)] = pool
		m.observe(pool)
	}
	m.metrics.PoolsTotal.Set(float64(len(m.pools)))
	m.logger.Info("pools loaded", zap.Int("count", len(exports)))
	return nil
}

// Pool returns a managed instance.
func (m *Manager) Pool(marketID *big.Int, maturity uint32) (*vamm.Pool, error) {
	if marketID == nil {
		return nil, model.ErrInvalidArgument.Wrap("market id is required")
	}
	pool, ok := m.pools[keyOf(marketID, maturity)]
	if !ok {
		return nil, model.ErrPoolNotFound.Wrapf("market %s maturity %d", marketID, maturity)
	}
	return pool, nil
}

// Pools lists managed instances ordered by market then maturity.
func (m *Manager) Pools() []PoolKey {
	out := make([]PoolKey, 0, len(m.pools))
	for k := range m.pools {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Maturity < out[j].Maturity
	})
	return out
}

// SetPaused pauses or resumes an instance.
func (m *Manager) SetPaused(ctx context.Context, marketID *big.Int, maturity uint32, paused bool) error {
	pool, err := m.Pool(marketID, maturity)
	if err != nil {
		return err
	}
	if err := pool.SetPaused(paused); err != nil {
		return err
	}
	now := m.now()
	m.afterCommit(pool, now, m.configuredRecord(pool, now))
	return nil
}

// UpdateMutableConfig replaces an instance's operator settings.
func (m *Manager) UpdateMutableConfig(ctx context.Context, marketID *big.Int, maturity uint32, cfg vamm.MutableConfig) error {
	pool, err := m.Pool(marketID, maturity)
	if err != nil {
		return err
	}
	if err := pool.UpdateMutableConfig(cfg); err != nil {
		return err
	}
	now := m.now()
	m.afterCommit(pool, now, m.configuredRecord(pool, now))
	return nil
}

// gate applies the checks shared by every order: the instance must be idle,
// unpaused and outside the inactive window before maturity.
func (m *Manager) gate(pool *vamm.Pool, now int64) error {
	cfg := pool.Config()
	if pool.Locked() {
		return model.ErrLocked.Wrapf("market %s maturity %d", cfg.Immutable.MarketID, cfg.Immutable.Maturity)
	}
	if cfg.Mutable.Paused {
		return model.ErrPaused.Wrapf("market %s maturity %d", cfg.Immutable.MarketID, cfg.Immutable.Maturity)
	}
	cutoff := int64(cfg.Immutable.Maturity) - cfg.Mutable.InactiveWindowSeconds
	if now >= cutoff {
		return model.ErrMaturityInactive.Wrapf("now %d, trading closes at %d", now, cutoff)
	}
	return nil
}

func (m *Manager) configuredRecord(pool *vamm.Pool, now int64) func() (model.LogRecord, error) {
	cfg := pool.Config()
	return func() (model.LogRecord, error) {
		return m.encoder.PoolConfigured(now, events.PoolConfigured{
			MarketID:    cfg.Immutable.MarketID,
			Maturity:    cfg.Immutable.Maturity,
			TickSpacing: cfg.Immutable.TickSpacing,
			MinTick:     cfg.Mutable.MinTick,
			MaxTick:     cfg.Mutable.MaxTick,
			Paused:      cfg.Mutable.Paused,
		})
	}
}

// afterCommit journals the event and persists the instance. The order is
// already committed, so failures are logged and counted only.
func (m *Manager) afterCommit(pool *vamm.Pool, now int64, record func() (model.LogRecord, error)) {
	imm := pool.Config().Immutable
	fields := []zap.Field{
		zap.String("market", imm.MarketID.String()),
		zap.Uint32("maturity", imm.Maturity),
		zap.Int64("ts", now),
	}
	if m.journal != nil && m.encoder != nil && record != nil {
		rec, err := record()
		if err == nil {
			err = m.journal.PutLogBatch([]model.LogRecord{rec})
		}
		if err != nil {
			m.metrics.JournalFailures.Inc()
			m.logger.Error("journal write failed", append(fields, zap.Error(err))...)
		}
	}
	if m.persister != nil {
		if err := m.persister.SavePool(pool.Export()); err != nil {
			m.metrics.JournalFailures.Inc()
			m.logger.Error("snapshot write failed", append(fields, zap.Error(err))...)
		}
	}
	m.observe(pool)
}

func (m *Manager) observe(pool *vamm.Pool) {
	imm := pool.Config().Immutable
	market, maturity := imm.MarketID.String(), strconv.FormatUint(uint64(imm.Maturity), 10)
	state := pool.State()
	m.metrics.CurrentTick.WithLabelValues(market, maturity).Set(float64(state.Tick))
	liquidity, _ := new(big.Float).SetInt(state.Liquidity.ToBig()).Float64()
	m.metrics.ActiveLiquidity.WithLabelValues(market, maturity).Set(liquidity)
}

func (m *Manager) reject(pool *vamm.Pool, err error) {
	if !model.IsPolicyRejection(err) && !errorsIsLiquidity(err) {
		return
	}
	imm := pool.Config().Immutable
	m.metrics.Rejections.WithLabelValues(
		imm.MarketID.String(),
		strconv.FormatUint(uint64(imm.Maturity), 10),
		rejectionReason(err),
	).Inc()
}
