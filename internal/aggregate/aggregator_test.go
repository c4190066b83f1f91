package aggregate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"datedVamm/internal/model"
)

type fakeSink struct {
	pools   []model.Pool
	metrics []model.PoolWindowMetrics
}

func (f *fakeSink) UpsertPools(_ context.Context, pools []model.Pool) error {
	f.pools = append(f.pools, pools...)
	return nil
}

func (f *fakeSink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	f.metrics = append(f.metrics, metrics...)
	return nil
}

const testAddress = "0x00000000000000000000000000000000000000aa"

func typedEvent(seq uint64, ts uint64, name string, decoded interface{}) model.TypedEvent {
	return model.TypedEvent{
		Sequence:  seq,
		Address:   testAddress,
		EventName: name,
		Timestamp: ts,
		Decoded:   decoded,
		PoolMeta:  model.PoolMeta{MarketID: "1", Maturity: 1767225600, TickSpacing: 60},
	}
}

func writeEvents(t *testing.T, path string, evs ...model.TypedEvent) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, ev := range evs {
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
}

func TestAggregatorWindows(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "typed.jsonl")
	writeEvents(t, input,
		typedEvent(1, 1000, model.EventPoolConfigured, model.PoolConfiguredEventData{MarketID: "1", Maturity: 1767225600, TickSpacing: 60}),
		typedEvent(2, 1010, model.EventLiquidityChange, model.LiquidityChangeEventData{LiquidityDelta: "1000", Base: "50"}),
		typedEvent(3, 1020, model.EventTakerOrder, model.TakerOrderEventData{ExecutedBase: "-500", ExecutedQuote: "2000", AnnualizedNotional: "100", Tick: -13800}),
		typedEvent(4, 1030, model.EventTakerOrder, model.TakerOrderEventData{ExecutedBase: "250", ExecutedQuote: "-1000", AnnualizedNotional: "50", Tick: -13830}),
		typedEvent(5, 1700, model.EventLiquidityChange, model.LiquidityChangeEventData{LiquidityDelta: "-400", Base: "-20"}),
	)

	sink := &fakeSink{}
	state := &FileStateStore{Path: filepath.Join(dir, "state.json")}
	agg := NewAggregator(Config{WindowSeconds: 600, StateStore: state}, sink, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.metrics) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(sink.metrics))
	}
	first, second := sink.metrics[0], sink.metrics[1]
	if first.WindowStart.Unix() != 600 || second.WindowStart.Unix() != 1200 {
		t.Fatalf("window starts: %v %v", first.WindowStart, second.WindowStart)
	}
	if first.TakerCount != 2 || first.MakerCount != 1 {
		t.Fatalf("counts: %d %d", first.TakerCount, first.MakerCount)
	}
	if first.VolumeBase != "750" || first.VolumeQuote != "3000" || first.NotionalVolume != "150" {
		t.Fatalf("volumes: %s %s %s", first.VolumeBase, first.VolumeQuote, first.NotionalVolume)
	}
	if first.LiquidityAdded != "1000" || first.LiquidityRemoved != "0" {
		t.Fatalf("liquidity: %s %s", first.LiquidityAdded, first.LiquidityRemoved)
	}
	if first.OpenTick == nil || *first.OpenTick != -13800 || first.CloseTick == nil || *first.CloseTick != -13830 {
		t.Fatalf("ticks: %v %v", first.OpenTick, first.CloseTick)
	}
	if first.AvgFixedRate == nil || *first.AvgFixedRate != "4.000000000000000000" {
		t.Fatalf("avg fixed rate: %v", first.AvgFixedRate)
	}
	if second.MakerCount != 1 || second.LiquidityRemoved != "400" || second.AvgFixedRate != nil {
		t.Fatalf("second window: %+v", second)
	}

	if len(sink.pools) != 1 || sink.pools[0].MarketID != "1" || sink.pools[0].FirstSeenTime != 1000 || sink.pools[0].TickSpacing != 60 {
		t.Fatalf("pools: %+v", sink.pools)
	}

	cp, ok, err := state.Load(context.Background())
	if err != nil || !ok || cp.Timestamp != 1700 || cp.Sequence != 5 {
		t.Fatalf("state: %+v %v %v", cp, ok, err)
	}

	again := &fakeSink{}
	if err := NewAggregator(Config{WindowSeconds: 600, StateStore: state}, again, nil).Run(context.Background(), input); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(again.metrics) != 0 {
		t.Fatalf("rerun should skip processed events, got %d windows", len(again.metrics))
	}
}

func TestAggregatorRejectsZeroWindow(t *testing.T) {
	agg := NewAggregator(Config{}, &fakeSink{}, nil)
	if err := agg.Run(context.Background(), "unused"); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestAggregatorDetectsJournalRewind(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "typed.jsonl")
	writeEvents(t, input,
		typedEvent(1, 1000, model.EventLiquidityChange, model.LiquidityChangeEventData{LiquidityDelta: "10", Base: "1"}),
	)
	state := &FileStateStore{Path: filepath.Join(dir, "state.json")}
	if err := state.Save(context.Background(), Checkpoint{Timestamp: 500, Sequence: 40}); err != nil {
		t.Fatalf("save: %v", err)
	}

	err := NewAggregator(Config{WindowSeconds: 600, StateStore: state}, &fakeSink{}, nil).Run(context.Background(), input)
	if err == nil {
		t.Fatalf("expected rewind error")
	}

	sink := &fakeSink{}
	if err := NewAggregator(Config{WindowSeconds: 600, StateStore: state, RecomputeFrom: 1}, sink, nil).Run(context.Background(), input); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if len(sink.metrics) != 1 || sink.metrics[0].MakerCount != 1 {
		t.Fatalf("recompute metrics: %+v", sink.metrics)
	}
}

func TestAggregatorCheckpointHoldsOpenWindow(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "typed.jsonl")
	writeEvents(t, input,
		typedEvent(1, 1000, model.EventLiquidityChange, model.LiquidityChangeEventData{LiquidityDelta: "10", Base: "1"}),
		typedEvent(2, 1900, model.EventLiquidityChange, model.LiquidityChangeEventData{LiquidityDelta: "10", Base: "1"}),
	)
	state := &FileStateStore{Path: filepath.Join(dir, "state.json")}
	agg := NewAggregator(Config{WindowSeconds: 600, BatchSize: 1, StateStore: state}, &fakeSink{}, nil)
	if err := agg.Run(context.Background(), input); err != nil {
		t.Fatalf("run: %v", err)
	}
	cp, ok, err := state.Load(context.Background())
	if err != nil || !ok || cp.Timestamp != 1900 || cp.Sequence != 2 {
		t.Fatalf("final checkpoint: %+v %v %v", cp, ok, err)
	}

	agg.accumulators[poolKey(testAddress)] = &Accumulator{WindowStart: 1800}
	agg.progress = Checkpoint{Timestamp: 1900, Sequence: 2}
	if err := agg.saveState(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}
	cp, _, _ = state.Load(context.Background())
	if cp.Timestamp != 1799 {
		t.Fatalf("open window checkpoint: %+v", cp)
	}
}
