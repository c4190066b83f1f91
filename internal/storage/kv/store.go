package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"

	"datedVamm/internal/model"
	"datedVamm/internal/oracle"
	"datedVamm/internal/position"
	"datedVamm/internal/tick"
	"datedVamm/internal/vamm"
)

// Store persists pool snapshots in Pebble. Each save replaces the instance's
// keys in one batch.
type Store struct {
	db *pebble.DB
}

type stateRecord struct {
	Config vamm.Config      `json:"config"`
	State  vamm.GlobalState `json:"state"`
	Oracle ringHeader       `json:"oracle"`
}

type ringHeader struct {
	Index           uint16 `json:"index"`
	Cardinality     uint16 `json:"cardinality"`
	CardinalityNext uint16 `json:"cardinalityNext"`
	Slots           int    `json:"slots"`
}

// Open opens (or creates) a Pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SavePool writes a full export of one instance atomically.
func (s *Store) SavePool(e vamm.Export) error {
	imm := e.Config.Immutable
	if imm.MarketID == nil {
		return fmt.Errorf("save pool: missing market id")
	}
	prefix := instancePrefix(imm.MarketID, imm.Maturity)

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return fmt.Errorf("clear instance: %w", err)
	}

	ring := e.Oracle
	if ring == nil {
		ring = oracle.NewRing()
	}
	header := stateRecord{
		Config: e.Config,
		State:  e.State,
		Oracle: ringHeader{
			Index:           ring.Index,
			Cardinality:     ring.Cardinality,
			CardinalityNext: ring.CardinalityNext,
			Slots:           len(ring.Observations),
		},
	}
	if err := setJSON(batch, stateKey(prefix), header); err != nil {
		return err
	}
	for _, rec := range e.Ticks {
		if err := setJSON(batch, tickKey(prefix, rec.Index), rec.Info); err != nil {
			return err
		}
	}
	for i, obs := range ring.Observations {
		if err := setJSON(batch, obsKey(prefix, i), obs); err != nil {
			return err
		}
	}
	for _, pos := range e.Positions {
		if err := setJSON(batch, posKey(prefix, pos.ID), pos); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit pool snapshot: %w", err)
	}
	return nil
}

// LoadPool reads one instance. ok is false when nothing is stored.
func (s *Store) LoadPool(marketID *big.Int, maturity uint32) (vamm.Export, bool, error) {
	if marketID == nil {
		return vamm.Export{}, false, fmt.Errorf("load pool: missing market id")
	}
	prefix := instancePrefix(marketID, maturity)

	var header stateRecord
	found, err := s.getJSON(stateKey(prefix), &header)
	if err != nil || !found {
		return vamm.Export{}, false, err
	}

	out := vamm.Export{Config: header.Config, State: header.State}

	err = s.scan(segmentPrefix(prefix, segTick), func(key, value []byte) error {
		var info tick.Info
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("unmarshal tick %s: %w", key, err)
		}
		idx, err := tickFromKey(key)
		if err != nil {
			return err
		}
		out.Ticks = append(out.Ticks, vamm.TickRecord{Index: idx, Info: info})
		return nil
	})
	if err != nil {
		return vamm.Export{}, false, err
	}

	ring := &oracle.Ring{
		Index:           header.Oracle.Index,
		Cardinality:     header.Oracle.Cardinality,
		CardinalityNext: header.Oracle.CardinalityNext,
		Observations:    make([]oracle.Observation, 0, header.Oracle.Slots),
	}
	err = s.scan(segmentPrefix(prefix, segObs), func(key, value []byte) error {
		var obs oracle.Observation
		if err := json.Unmarshal(value, &obs); err != nil {
			return fmt.Errorf("unmarshal observation %s: %w", key, err)
		}
		ring.Observations = append(ring.Observations, obs)
		return nil
	})
	if err != nil {
		return vamm.Export{}, false, err
	}
	if len(ring.Observations) != header.Oracle.Slots {
		return vamm.Export{}, false, fmt.Errorf("oracle slots: want %d, found %d", header.Oracle.Slots, len(ring.Observations))
	}
	out.Oracle = ring

	err = s.scan(segmentPrefix(prefix, segPos), func(key, value []byte) error {
		var pos position.Position
		if err := json.Unmarshal(value, &pos); err != nil {
			return fmt.Errorf("unmarshal position %s: %w", key, err)
		}
		out.Positions = append(out.Positions, &pos)
		return nil
	})
	if err != nil {
		return vamm.Export{}, false, err
	}
	return out, true, nil
}

// LoadAll reads every stored instance.
func (s *Store) LoadAll() ([]vamm.Export, error) {
	type ref struct {
		market   *big.Int
		maturity uint32
	}
	var refs []ref
	suffix := []byte("/" + suffixState)
	err := s.scan([]byte(prefixVamm), func(key, value []byte) error {
		if !bytes.HasSuffix(key, suffix) {
			return nil
		}
		var header stateRecord
		if err := json.Unmarshal(value, &header); err != nil {
			return fmt.Errorf("unmarshal state %s: %w", key, err)
		}
		refs = append(refs, ref{market: header.Config.Immutable.MarketID, maturity: header.Config.Immutable.Maturity})
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]vamm.Export, 0, len(refs))
	for _, r := range refs {
		e, ok, err := s.LoadPool(r.market, r.maturity)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// PoolMeta returns the immutable metadata of a stored instance.
func (s *Store) PoolMeta(_ context.Context, marketID *big.Int, maturity uint32) (model.PoolMeta, bool, error) {
	var header stateRecord
	found, err := s.getJSON(stateKey(instancePrefix(marketID, maturity)), &header)
	if err != nil || !found {
		return model.PoolMeta{}, false, err
	}
	return model.PoolMeta{
		MarketID:    marketID.String(),
		Maturity:    maturity,
		TickSpacing: header.Config.Immutable.TickSpacing,
	}, true, nil
}

func (s *Store) getJSON(key []byte, out interface{}) (bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("new iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func setJSON(batch *pebble.Batch, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := batch.Set(key, data, nil); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func tickFromKey(key []byte) (int32, error) {
	i := bytes.LastIndex(key, []byte(segTick))
	if i < 0 {
		return 0, fmt.Errorf("malformed tick key %s", key)
	}
	var raw uint32
	if _, err := fmt.Sscanf(string(key[i+len(segTick):]), "%08x", &raw); err != nil {
		return 0, fmt.Errorf("parse tick key %s: %w", key, err)
	}
	return int32(raw ^ 0x80000000), nil
}
