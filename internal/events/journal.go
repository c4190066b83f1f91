package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"datedVamm/internal/model"
)

// RecordWriter receives decoded events or decode errors.
type RecordWriter interface {
	Write(value interface{}) error
}

// JournalStats summarizes a journal replay.
type JournalStats struct {
	Total        int
	Decoded      int
	Skipped      int
	Failed       int
	Gaps         int
	LastSequence uint64
}

// DecodeJournal replays a journal stream through dec. The engine numbers
// records 1, 2, 3...: a record that does not advance the sequence is
// reported as an error and dropped, and a jump forward is counted as a gap
// but still decoded.
func DecodeJournal(ctx context.Context, r io.Reader, dec Decoder, dctx DecodeContext, out, errs RecordWriter) (JournalStats, error) {
	logger := dctx.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var stats JournalStats
	fail := func(rec model.DecodeError) {
		stats.Failed++
		if errs != nil {
			_ = errs.Write(rec)
		}
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			fail(model.DecodeError{Error: err.Error()})
			continue
		}

		switch {
		case record.Sequence <= stats.LastSequence:
			fail(decodeError(record, fmt.Errorf("sequence %d does not follow %d", record.Sequence, stats.LastSequence)))
			continue
		case record.Sequence > stats.LastSequence+1:
			stats.Gaps++
			logger.Warn("journal gap",
				zap.Uint64("after", stats.LastSequence),
				zap.Uint64("next", record.Sequence),
			)
		}
		stats.LastSequence = record.Sequence

		if len(record.Topics) == 0 {
			fail(decodeError(record, fmt.Errorf("missing topic0")))
			continue
		}
		if !dec.CanDecode(record.Topics[0]) {
			stats.Skipped++
			continue
		}

		event, err := dec.Decode(record, dctx)
		if err != nil {
			fail(decodeError(record, err))
			continue
		}
		if err := out.Write(event); err != nil {
			return stats, err
		}
		stats.Decoded++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan journal: %w", err)
	}
	return stats, nil
}

func decodeError(record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}
	return model.DecodeError{
		Sequence: record.Sequence,
		Address:  record.Address,
		Topic0:   topic0,
		Error:    err.Error(),
	}
}
