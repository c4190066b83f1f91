package vamm

import (
	"go.uber.org/zap"

	"datedVamm/internal/model"
	"datedVamm/internal/oracle"
	"datedVamm/internal/position"
	"datedVamm/internal/tick"
)

// TickRecord pairs a tick index with its record for export.
type TickRecord struct {
	Index int32     `json:"index"`
	Info  tick.Info `json:"info"`
}

// Export is a full copy of a pool, suitable for persistence.
type Export struct {
	Config    Config               `json:"config"`
	State     GlobalState          `json:"state"`
	Ticks     []TickRecord         `json:"ticks"`
	Oracle    *oracle.Ring         `json:"oracle"`
	Positions []*position.Position `json:"positions"`
}

// Export copies the pool state.
func (p *Pool) Export() Export {
	out := Export{
		Config:    p.cfg,
		State:     p.state.clone(),
		Oracle:    p.oracle.Clone(),
		Positions: p.positions.All(),
	}
	out.State.Locked = false
	for _, t := range p.ticks.Ticks() {
		out.Ticks = append(out.Ticks, TickRecord{Index: t, Info: p.ticks.Get(t)})
	}
	return out
}

// Import rebuilds a pool from an export.
func Import(e Export, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := e.Config.Immutable.Validate(); err != nil {
		return nil, err
	}
	if err := e.Config.Mutable.Validate(e.Config.Immutable.TickSpacing); err != nil {
		return nil, err
	}
	if e.State.SqrtPriceX96 == nil || e.State.Liquidity == nil {
		return nil, model.ErrInvalidArgument.Wrap("export is missing global state")
	}
	registry, err := tick.NewRegistry(e.Config.Immutable.TickSpacing, e.Config.Immutable.MaxLiquidityPerTick)
	if err != nil {
		return nil, err
	}
	for _, rec := range e.Ticks {
		if err := registry.Load(rec.Index, rec.Info); err != nil {
			return nil, err
		}
	}
	if err := registry.CheckInvariants(); err != nil {
		return nil, err
	}

	store := position.NewStore()
	for _, pos := range e.Positions {
		store.Put(pos)
	}

	ring := e.Oracle
	if ring == nil {
		ring = oracle.NewRing()
	}
	state := e.State.clone()
	state.Locked = false

	return &Pool{
		cfg:       e.Config,
		state:     state,
		ticks:     registry,
		oracle:    ring.Clone(),
		positions: store,
		logger:    logger,
	}, nil
}
