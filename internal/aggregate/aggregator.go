package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"datedVamm/internal/model"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Sink receives instance records and window metrics. The Postgres store
// implements it.
type Sink interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator aggregates typed events into instance window metrics.
type Aggregator struct {
	cfg          Config
	sink         Sink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
	progress     Checkpoint
}

func NewAggregator(cfg Config, sink Sink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run folds a typed events JSONL file into window metrics. Events at or
// before the stored checkpoint are skipped unless RecomputeFrom is set.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	resume, err := a.loadCheckpoint(ctx)
	if err != nil {
		return err
	}
	a.progress = resume

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	out := &pending{}
	var total, skipped, failed int
	var maxSeq uint64

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}
		if record.Sequence > maxSeq {
			maxSeq = record.Sequence
		}
		if record.Timestamp <= resume.Timestamp {
			skipped++
			continue
		}

		if err := a.fold(record, out); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err),
				zap.Uint64("sequence", record.Sequence),
				zap.String("pool", record.Address),
				zap.String("event", record.EventName),
			)
			continue
		}

		if len(out.metrics) >= a.cfg.BatchSize {
			if err := a.flush(ctx, out); err != nil {
				return err
			}
			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	if a.cfg.RecomputeFrom == 0 && resume.Sequence > 0 && maxSeq < resume.Sequence {
		return fmt.Errorf("journal ends at sequence %d before checkpoint %d: recompute required", maxSeq, resume.Sequence)
	}

	for _, acc := range a.accumulators {
		out.add(a.flushAccumulator(acc))
	}
	a.accumulators = make(map[string]*Accumulator)
	windows := out.windows

	if err := a.flush(ctx, out); err != nil {
		return err
	}
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("windows", windows),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Uint64("checkpoint_ts", a.progress.Timestamp),
		zap.Uint64("checkpoint_sequence", a.progress.Sequence),
	)
	return nil
}

// pending collects rows awaiting an upsert.
type pending struct {
	metrics []model.PoolWindowMetrics
	pools   []model.Pool
	windows int
}

func (p *pending) add(metrics *model.PoolWindowMetrics, pool *model.Pool) {
	if metrics != nil {
		p.metrics = append(p.metrics, *metrics)
		p.windows++
	}
	if pool != nil {
		p.pools = append(p.pools, *pool)
	}
}

// fold adds one event to its instance window, closing the previous window
// when the event starts a new one.
func (a *Aggregator) fold(record model.TypedEventRecord, out *pending) error {
	start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
	key := poolKey(record.Address)

	acc := a.accumulators[key]
	if acc != nil && acc.WindowStart != start {
		out.add(a.flushAccumulator(acc))
		acc = nil
	}
	if acc == nil {
		acc = NewAccumulator(record, start, start+a.cfg.WindowSeconds)
		a.accumulators[key] = acc
	}
	if err := acc.AddEvent(record); err != nil {
		return err
	}

	if record.Timestamp > a.progress.Timestamp {
		a.progress.Timestamp = record.Timestamp
	}
	if record.Sequence > a.progress.Sequence {
		a.progress.Sequence = record.Sequence
	}
	return nil
}

func (a *Aggregator) loadCheckpoint(ctx context.Context) (Checkpoint, error) {
	if a.cfg.RecomputeFrom > 0 {
		return Checkpoint{Timestamp: a.cfg.RecomputeFrom - 1}, nil
	}
	if a.cfg.StateStore == nil {
		return Checkpoint{}, nil
	}
	cp, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return Checkpoint{}, nil
	}
	return cp, nil
}

// saveState stores a checkpoint no later than the earliest open window so a
// restart rebuilds every window that has not been flushed.
func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	cp := a.progress
	if open := minOpenWindowStart(a.accumulators); open > 0 && open-1 < cp.Timestamp {
		cp.Timestamp = open - 1
	}
	return a.cfg.StateStore.Save(ctx, cp)
}

func (a *Aggregator) flush(ctx context.Context, out *pending) error {
	if len(out.pools) > 0 {
		if err := a.sink.UpsertPools(ctx, out.pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(out.metrics) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, out.metrics); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	out.metrics = out.metrics[:0]
	out.pools = out.pools[:0]
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}

	if acc.PoolMeta.MarketID == "" || acc.PoolMeta.Maturity == 0 {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	metrics := &model.PoolWindowMetrics{
		MarketID:         acc.PoolMeta.MarketID,
		Maturity:         acc.PoolMeta.Maturity,
		PoolAddress:      acc.PoolAddress,
		WindowSizeSecs:   int64(a.cfg.WindowSeconds),
		WindowStart:      time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:        time.Unix(int64(acc.WindowEnd), 0).UTC(),
		TakerCount:       acc.TakerCount,
		MakerCount:       acc.MakerCount,
		VolumeBase:       acc.VolumeBase.String(),
		VolumeQuote:      acc.VolumeQuote.String(),
		NotionalVolume:   acc.NotionalVolume.String(),
		LiquidityAdded:   acc.LiquidityAdded.String(),
		LiquidityRemoved: acc.LiquidityRemoved.String(),
		OpenTick:         acc.OpenTick,
		CloseTick:        acc.CloseTick,
		AvgFixedRate:     acc.AvgFixedRate(),
	}

	return metrics, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		MarketID:      acc.PoolMeta.MarketID,
		Maturity:      acc.PoolMeta.Maturity,
		Address:       acc.PoolAddress,
		TickSpacing:   acc.PoolMeta.TickSpacing,
		FirstSeenTime: acc.FirstTS,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		if existing.FirstSeenTime <= pool.FirstSeenTime && existing.TickSpacing == pool.TickSpacing {
			return nil
		}
	}

	a.poolSeen[key] = pool
	return &pool
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
