package events

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"datedVamm/internal/model"
)

type collect struct {
	values []interface{}
}

func (c *collect) Write(v interface{}) error {
	c.values = append(c.values, v)
	return nil
}

func journalLines(t *testing.T, records ...model.LogRecord) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return &buf
}

func TestDecodeJournalSequenceContinuity(t *testing.T) {
	encoder, err := NewEncoder(0)
	if err != nil {
		t.Fatalf("encoder: %v", err)
	}
	decoder, err := NewVammDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	change := func() model.LogRecord {
		rec, err := encoder.LiquidityChange(1700000000, LiquidityChange{
			AccountID:      big.NewInt(42),
			MarketID:       big.NewInt(1),
			Maturity:       1767225600,
			TickLower:      -14100,
			TickUpper:      -13620,
			LiquidityDelta: big.NewInt(1000),
			Base:           big.NewInt(50),
		})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		return rec
	}
	first, second := change(), change()
	encoder.seq.Add(2)
	afterGap := change()
	duplicate := second
	unknown := model.LogRecord{Sequence: afterGap.Sequence + 1, Topics: []string{"0xdeadbeef"}}

	out, errs := &collect{}, &collect{}
	stats, err := DecodeJournal(context.Background(),
		journalLines(t, first, second, afterGap, duplicate, unknown),
		decoder, DecodeContext{PoolMetaCache: NewPoolMetaCache()}, out, errs)
	if err != nil {
		t.Fatalf("decode journal: %v", err)
	}

	if stats.Total != 5 || stats.Decoded != 3 || stats.Skipped != 1 || stats.Failed != 1 || stats.Gaps != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if stats.LastSequence != 6 {
		t.Fatalf("last sequence: %d", stats.LastSequence)
	}
	if len(out.values) != 3 || len(errs.values) != 1 {
		t.Fatalf("outputs: %d decoded, %d errors", len(out.values), len(errs.values))
	}
	derr := errs.values[0].(model.DecodeError)
	if derr.Sequence != 2 || !strings.Contains(derr.Error, "does not follow 5") {
		t.Fatalf("duplicate error: %+v", derr)
	}
}

func TestDecodeJournalStopsOnCancel(t *testing.T) {
	decoder, err := NewVammDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DecodeJournal(ctx, journalLines(t, model.LogRecord{Sequence: 1}), decoder, DecodeContext{}, &collect{}, nil)
	if err == nil {
		t.Fatalf("expected context error")
	}
}
