// File: registry/snapshot.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Snapshot is an immutable, typed view of one committed generation.

package registry

import (
	"time"

	"github.com/momentics/guppi-status/core/card"
	"github.com/momentics/guppi-status/core/shm"
)

// Snapshot is one consistent observation configuration.
type Snapshot struct {
	Generation  uint64
	CommittedAt time.Time
	cards       []card.Card
	index       map[string]int
}

func newSnapshot(s shm.Snapshot) Snapshot {
	idx := make(map[string]int, len(s.Cards))
	for i, c := range s.Cards {
		idx[c.Key] = i
	}
	return Snapshot{Generation: s.Generation, CommittedAt: s.CommittedAt, cards: s.Cards, index: idx}
}

// Len returns the number of cards.
func (s Snapshot) Len() int { return len(s.cards) }

// Cards returns a copy of the cards in committed order.
func (s Snapshot) Cards() []card.Card { return append([]card.Card(nil), s.cards...) }

// Get returns the value for key. Unknown keys report false.
func (s Snapshot) Get(key string) (card.Value, bool) {
	i, ok := s.index[key]
	if !ok {
		return card.Value{}, false
	}
	return s.cards[i].Value, true
}

// Int returns key as an integer, or def when absent or differently typed.
func (s Snapshot) Int(key string, def int64) int64 {
	if v, ok := s.Get(key); ok {
		if i, ok := v.AsInt(); ok {
			return i
		}
	}
	return def
}

// Float returns key as a float (integers widen), or def.
func (s Snapshot) Float(key string, def float64) float64 {
	if v, ok := s.Get(key); ok {
		if f, ok := v.AsFloat(); ok {
			return f
		}
	}
	return def
}

// Text returns key as text, or def.
func (s Snapshot) Text(key, def string) string {
	if v, ok := s.Get(key); ok {
		if t, ok := v.AsText(); ok {
			return t
		}
	}
	return def
}

// Flag returns key as a boolean, or def.
func (s Snapshot) Flag(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.AsFlag(); ok {
			return b
		}
	}
	return def
}

// HeaderLines renders every card as an 80-column header line.
func (s Snapshot) HeaderLines() []string {
	out := make([]string, len(s.cards))
	for i, c := range s.cards {
		out[i] = c.HeaderLine()
	}
	return out
}

// ChangeKind classifies a Change.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "+"
	case Modified:
		return "~"
	default:
		return "-"
	}
}

// Change is one card difference between two snapshots.
type Change struct {
	Kind ChangeKind
	Key  string
	Old  card.Value
	New  card.Value
}

// Diff lists the changes from old to cur, in cur's order then removals.
func Diff(old, cur Snapshot) []Change {
	var out []Change
	for _, c := range cur.cards {
		prev, ok := old.Get(c.Key)
		switch {
		case !ok:
			out = append(out, Change{Kind: Added, Key: c.Key, New: c.Value})
		case !prev.Equal(c.Value):
			out = append(out, Change{Kind: Modified, Key: c.Key, Old: prev, New: c.Value})
		}
	}
	for _, c := range old.cards {
		if _, ok := cur.Get(c.Key); !ok {
			out = append(out, Change{Kind: Removed, Key: c.Key, Old: c.Value})
		}
	}
	return out
}
