package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint marks aggregation progress through the journal. Timestamp is the
// last instant whose windows are complete; Sequence is the highest journal
// sequence folded so far.
type Checkpoint struct {
	Timestamp uint64 `json:"last_processed_ts"`
	Sequence  uint64 `json:"last_sequence"`
}

// StateStore persists the aggregation checkpoint.
type StateStore interface {
	Load(ctx context.Context) (Checkpoint, bool, error)
	Save(ctx context.Context, cp Checkpoint) error
}

// FileStateStore keeps the checkpoint in a JSON file.
type FileStateStore struct {
	Path string
}

type stateFile struct {
	Checkpoint
	UpdatedAt string `json:"updated_at"`
}

func (s *FileStateStore) Load(_ context.Context) (Checkpoint, bool, error) {
	if s == nil || s.Path == "" {
		return Checkpoint{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateFile
	if err := json.Unmarshal(data, &rec); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse state: %w", err)
	}
	return rec.Checkpoint, true, nil
}

// Save writes through a temp file so a crash never leaves a torn checkpoint.
func (s *FileStateStore) Save(_ context.Context, cp Checkpoint) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(stateFile{
		Checkpoint: cp,
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
