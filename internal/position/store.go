package position

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Store holds the positions of one pool instance, keyed by position id.
type Store struct {
	positions map[common.Hash]*Position
	byAccount map[string]map[common.Hash]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		positions: make(map[common.Hash]*Position),
		byAccount: make(map[string]map[common.Hash]struct{}),
	}
}

// LoadOrCreate returns a working copy of the position for key, or a fresh
// zero position. Changes are only visible after Put.
func (s *Store) LoadOrCreate(key Key) (*Position, error) {
	id, err := ID(key)
	if err != nil {
		return nil, err
	}
	if p, ok := s.positions[id]; ok {
		return p.Clone(), nil
	}
	return newPosition(id, key).Clone(), nil
}

// Get returns a copy of a stored position.
func (s *Store) Get(id common.Hash) (*Position, bool) {
	p, ok := s.positions[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Put commits a position.
func (s *Store) Put(p *Position) {
	stored := p.Clone()
	s.positions[stored.ID] = stored
	acct := stored.Key.AccountID.String()
	ids, ok := s.byAccount[acct]
	if !ok {
		ids = make(map[common.Hash]struct{})
		s.byAccount[acct] = ids
	}
	ids[stored.ID] = struct{}{}
}

// OpenCount returns how many of the account's positions hold liquidity,
// treating pending (if non-nil) as the committed version of its id.
func (s *Store) OpenCount(accountID string, pending *Position) int {
	count := 0
	seenPending := false
	for id := range s.byAccount[accountID] {
		p := s.positions[id]
		if pending != nil && id == pending.ID {
			p = pending
			seenPending = true
		}
		if !p.Liquidity.IsZero() {
			count++
		}
	}
	if pending != nil && !seenPending && pending.Key.AccountID.String() == accountID && !pending.Liquidity.IsZero() {
		count++
	}
	return count
}

// ByAccount returns copies of the account's positions ordered by id.
func (s *Store) ByAccount(accountID string) []*Position {
	out := make([]*Position, 0, len(s.byAccount[accountID]))
	for id := range s.byAccount[accountID] {
		out = append(out, s.positions[id].Clone())
	}
	sortByID(out)
	return out
}

// All returns copies of every position ordered by id.
func (s *Store) All() []*Position {
	out := make([]*Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	sortByID(out)
	return out
}

func sortByID(ps []*Position) {
	sort.Slice(ps, func(i, j int) bool { return bytes.Compare(ps[i].ID[:], ps[j].ID[:]) < 0 })
}
