// File: registry/batch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Batch is the staging builder for one atomic commit.

package registry

import (
	"fmt"

	"github.com/eapache/queue"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
)

type entry struct {
	key     string
	val     card.Value
	deleted bool
}

// Batch accumulates assignments in first-set order; later assignments to
// the same key replace the value in place. A Batch is owned by a single
// goroutine until committed. Abandoning it has no visible effect.
type Batch struct {
	order    *queue.Queue
	idx      map[string]*entry
	err      error
	warnings []error
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		order: queue.New(),
		idx:   make(map[string]*entry),
	}
}

// Set stages key=v. The first validation error is kept and reported by
// Err and Commit; later calls are ignored.
func (b *Batch) Set(key string, v card.Value) *Batch {
	if b.err != nil {
		return b
	}
	if err := card.Check(key, v); err != nil {
		b.err = err
		return b
	}
	if s, ok := v.AsText(); ok {
		if _, cut := card.TruncateText(s); cut {
			b.warnings = append(b.warnings, fmt.Errorf("%s (%d bytes): %w", key, len(s), api.ErrTextTruncated))
		}
	}
	if e, ok := b.idx[key]; ok {
		e.val, e.deleted = v, false
		return b
	}
	e := &entry{key: key, val: v}
	b.idx[key] = e
	b.order.Add(e)
	return b
}

// SetInt stages an integer.
func (b *Batch) SetInt(key string, v int64) *Batch { return b.Set(key, card.Int(v)) }

// SetFloat stages a float.
func (b *Batch) SetFloat(key string, v float64) *Batch { return b.Set(key, card.Float(v)) }

// SetText stages text.
func (b *Batch) SetText(key, v string) *Batch { return b.Set(key, card.Text(v)) }

// SetFlag stages a boolean.
func (b *Batch) SetFlag(key string, v bool) *Batch { return b.Set(key, card.Flag(v)) }

// Delete removes key from the snapshot on commit.
func (b *Batch) Delete(key string) *Batch {
	if b.err != nil {
		return b
	}
	if err := card.ValidateKey(key); err != nil {
		b.err = err
		return b
	}
	if e, ok := b.idx[key]; ok {
		e.deleted = true
		return b
	}
	e := &entry{key: key, deleted: true}
	b.idx[key] = e
	b.order.Add(e)
	return b
}

// Merge stages every card of o after b's own entries.
func (b *Batch) Merge(o *Batch) *Batch {
	if o.err != nil && b.err == nil {
		b.err = o.err
	}
	o.each(func(e *entry) {
		if e.deleted {
			b.Delete(e.key)
		} else {
			b.Set(e.key, e.val)
		}
	})
	return b
}

// Get returns the staged value for key.
func (b *Batch) Get(key string) (card.Value, bool) {
	e, ok := b.idx[key]
	if !ok || e.deleted {
		return card.Value{}, false
	}
	return e.val, true
}

// Touches reports whether key is staged (set or deleted).
func (b *Batch) Touches(key string) bool {
	_, ok := b.idx[key]
	return ok
}

// Len returns the number of staged keys, deletions included.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return b.order.Length()
}

// Err returns the first staging error.
func (b *Batch) Err() error { return b.err }

// Warnings returns non-fatal staging conditions such as text truncation.
func (b *Batch) Warnings() []error { return append([]error(nil), b.warnings...) }

// Cards returns the staged assignments in order, deletions excluded.
func (b *Batch) Cards() []card.Card {
	out := make([]card.Card, 0, b.order.Length())
	b.each(func(e *entry) {
		if !e.deleted {
			out = append(out, card.New(e.key, e.val))
		}
	})
	return out
}

func (b *Batch) each(fn func(*entry)) {
	for i := 0; i < b.order.Length(); i++ {
		fn(b.order.Get(i).(*entry))
	}
}

// apply merges the batch over base: existing keys keep their position,
// new keys are appended in staging order.
func (b *Batch) apply(base []card.Card) []card.Card {
	out := make([]card.Card, 0, len(base)+b.order.Length())
	for _, c := range base {
		e, ok := b.idx[c.Key]
		switch {
		case !ok:
			out = append(out, c)
		case !e.deleted:
			out = append(out, card.New(c.Key, e.val))
		}
	}
	present := make(map[string]struct{}, len(base))
	for _, c := range base {
		present[c.Key] = struct{}{}
	}
	b.each(func(e *entry) {
		if _, ok := present[e.key]; !ok && !e.deleted {
			out = append(out, card.New(e.key, e.val))
		}
	})
	return out
}
