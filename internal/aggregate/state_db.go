package aggregate

import (
	"context"

	"datedVamm/internal/storage/postgres"
)

// DBStateStore keeps the checkpoint in the aggregator_state table, one row
// per window size.
type DBStateStore struct {
	Store *postgres.Store
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (Checkpoint, bool, error) {
	if s == nil || s.Store == nil {
		return Checkpoint{}, false, nil
	}
	ts, seq, ok, err := s.Store.LoadState(ctx, s.Name)
	if err != nil || !ok {
		return Checkpoint{}, ok, err
	}
	return Checkpoint{Timestamp: ts, Sequence: seq}, true, nil
}

func (s *DBStateStore) Save(ctx context.Context, cp Checkpoint) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, cp.Timestamp, cp.Sequence)
}
