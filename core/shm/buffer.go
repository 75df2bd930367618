// File: core/shm/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffer is a process-local attachment to the shared registry region.

package shm

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
)

// Snapshot is one consistent copy of the committed cards.
type Snapshot struct {
	Generation  uint64
	Cards       []card.Card
	CommittedAt time.Time
}

// CommitToken proves ownership of the lock word between BeginCommit and
// Commit/Abort.
type CommitToken struct {
	buf   *Buffer
	owner uint32
	done  atomic.Bool
}

// CommitResult describes a successful commit.
type CommitResult struct {
	Generation uint64
	Cards      int
	Truncated  []string // keys whose text was cut to the field width
}

// Stats are process-local counters.
type Stats struct {
	Commits       uint64
	BusyRejects   uint64
	ReadRetries   uint64
	ReadTimeouts  uint64
	TextTruncates uint64
}

// Buffer maps the shared region. Methods are safe for concurrent use.
type Buffer struct {
	path     string
	opts     Options
	mem      []byte
	capacity int
	pid      uint32

	mu     sync.RWMutex // guards mem against Detach
	closed bool

	commits       atomic.Uint64
	busyRejects   atomic.Uint64
	readRetries   atomic.Uint64
	readTimeouts  atomic.Uint64
	textTruncates atomic.Uint64
}

// Attach maps the region at path, creating it when absent.
func Attach(path string, opts ...Option) (*Buffer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity %d: %w", api.ErrAttach, o.Capacity, api.ErrInvalidArgument)
	}
	mem, capacity, err := mapRegion(path, o)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", api.ErrAttach, path, err)
	}
	return &Buffer{
		path:     path,
		opts:     o,
		mem:      mem,
		capacity: capacity,
		pid:      uint32(os.Getpid()),
	}, nil
}

// Unlink removes the backing file. Attached processes keep their mapping.
func Unlink(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the backing file path.
func (b *Buffer) Path() string { return b.path }

// Capacity returns cards per slot.
func (b *Buffer) Capacity() int { return b.capacity }

// ReadOnly reports whether commits are disabled.
func (b *Buffer) ReadOnly() bool { return b.opts.ReadOnly }

// Detach unmaps the region. Readers and writers of other processes are
// unaffected.
func (b *Buffer) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	err := unmapRegion(b.mem)
	b.mem = nil
	return err
}

func (b *Buffer) acquire() ([]byte, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, api.ErrClosed
	}
	return b.mem, nil
}

func (b *Buffer) release() { b.mu.RUnlock() }

// Generation returns the current generation without copying cards.
func (b *Buffer) Generation() (uint64, error) {
	mem, err := b.acquire()
	if err != nil {
		return 0, err
	}
	defer b.release()
	return atomic.LoadUint64(u64(mem, offGeneration)), nil
}

// LockOwner returns the PID holding the lock word, or 0.
func (b *Buffer) LockOwner() (int, error) {
	mem, err := b.acquire()
	if err != nil {
		return 0, err
	}
	defer b.release()
	return int(atomic.LoadUint32(u32(mem, offLock))), nil
}

// Stats returns process-local counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Commits:       b.commits.Load(),
		BusyRejects:   b.busyRejects.Load(),
		ReadRetries:   b.readRetries.Load(),
		ReadTimeouts:  b.readTimeouts.Load(),
		TextTruncates: b.textTruncates.Load(),
	}
}

// Published describes the committed snapshot without copying its cards.
type Published struct {
	Generation  uint64
	Cards       int
	CommittedAt time.Time
}

// Published reads the header words of the committed snapshot. The fields
// are loaded independently and may straddle a concurrent commit.
func (b *Buffer) Published() (Published, error) {
	mem, err := b.acquire()
	if err != nil {
		return Published{}, err
	}
	defer b.release()
	active := atomic.LoadUint32(u32(mem, offActive)) & 1
	p := Published{
		Generation: atomic.LoadUint64(u64(mem, offGeneration)),
		Cards:      int(atomic.LoadUint64(u64(mem, countOff(active)))),
	}
	if ns := int64(atomic.LoadUint64(u64(mem, offCommitNano))); ns > 0 {
		p.CommittedAt = time.Unix(0, ns)
	}
	return p, nil
}

func countOff(slot uint32) int {
	if slot == 0 {
		return offCount0
	}
	return offCount1
}

func slotOff(slot uint32, capacity int) int {
	return HeaderSize + int(slot)*capacity*card.CardSize
}

// SnapshotRead copies the committed cards. It waits while a writer holds
// the lock, up to the configured ReadTimeout.
func (b *Buffer) SnapshotRead(ctx context.Context) (Snapshot, error) {
	mem, err := b.acquire()
	if err != nil {
		return Snapshot{}, err
	}
	defer b.release()

	deadline := time.Now().Add(b.opts.ReadTimeout)
	scratch := make([]byte, 0, 64*card.CardSize)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			b.readRetries.Add(1)
			if err := ctx.Err(); err != nil {
				return Snapshot{}, err
			}
			if time.Now().After(deadline) {
				b.readTimeouts.Add(1)
				owner := atomic.LoadUint32(u32(mem, offLock))
				return Snapshot{}, api.Wrap(api.ErrCodeReadTimeout, "snapshot read", api.ErrReadTimeout).
					WithContext("lock_owner", owner).
					WithContext("waited", b.opts.ReadTimeout)
			}
			b.pause(attempt)
		}

		if atomic.LoadUint32(u32(mem, offLock)) != 0 {
			continue
		}
		gen := atomic.LoadUint64(u64(mem, offGeneration))
		active := atomic.LoadUint32(u32(mem, offActive)) & 1
		n := atomic.LoadUint64(u64(mem, countOff(active)))
		if n > uint64(b.capacity) {
			continue
		}
		start := slotOff(active, b.capacity)
		scratch = append(scratch[:0], mem[start:start+int(n)*card.CardSize]...)
		committed := int64(atomic.LoadUint64(u64(mem, offCommitNano)))

		// A writer only fills the inactive slot, so an unchanged generation
		// means the copied slot was never overwritten.
		if atomic.LoadUint64(u64(mem, offGeneration)) != gen {
			continue
		}

		cards := make([]card.Card, 0, n)
		for i := 0; i < int(n); i++ {
			c, err := card.Unmarshal(scratch[i*card.CardSize:])
			if err != nil {
				return Snapshot{}, fmt.Errorf("generation %d card %d: %w", gen, i, err)
			}
			cards = append(cards, c)
		}
		snap := Snapshot{Generation: gen, Cards: cards}
		if committed > 0 {
			snap.CommittedAt = time.Unix(0, committed)
		}
		return snap, nil
	}
}

func (b *Buffer) pause(attempt int) {
	if attempt < b.opts.SpinLimit {
		runtime.Gosched()
		return
	}
	d := time.Duration(attempt-b.opts.SpinLimit+1) * 50 * time.Microsecond
	if d > time.Millisecond {
		d = time.Millisecond
	}
	time.Sleep(d)
}

// BeginCommit takes the lock word. It never waits: a held lock yields
// api.ErrWriterBusy.
func (b *Buffer) BeginCommit() (*CommitToken, error) {
	if b.opts.ReadOnly {
		return nil, fmt.Errorf("commit on read-only attachment: %w", api.ErrNotSupported)
	}
	mem, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer b.release()

	if !atomic.CompareAndSwapUint32(u32(mem, offLock), 0, b.pid) {
		b.busyRejects.Add(1)
		owner := atomic.LoadUint32(u32(mem, offLock))
		return nil, api.Wrap(api.ErrCodeWriterBusy, "begin commit", api.ErrWriterBusy).
			WithContext("lock_owner", owner)
	}
	return &CommitToken{buf: b, owner: b.pid}, nil
}

// Abort releases the lock without publishing anything.
func (b *Buffer) Abort(tok *CommitToken) error {
	if err := b.checkToken(tok); err != nil {
		return err
	}
	mem, err := b.acquire()
	if err != nil {
		return err
	}
	defer b.release()
	b.unlock(mem, tok)
	return nil
}

func (b *Buffer) checkToken(tok *CommitToken) error {
	if tok == nil || tok.buf != b || tok.done.Load() {
		return api.ErrInvalidToken
	}
	return nil
}

func (b *Buffer) unlock(mem []byte, tok *CommitToken) {
	if tok.done.CompareAndSwap(false, true) {
		atomic.CompareAndSwapUint32(u32(mem, offLock), tok.owner, 0)
	}
}

// Current returns the committed cards while the caller holds the lock,
// so a writer can merge a partial batch over them.
func (b *Buffer) Current(tok *CommitToken) ([]card.Card, error) {
	if err := b.checkToken(tok); err != nil {
		return nil, err
	}
	mem, err := b.acquire()
	if err != nil {
		return nil, err
	}
	defer b.release()
	active := atomic.LoadUint32(u32(mem, offActive)) & 1
	n := int(atomic.LoadUint64(u64(mem, countOff(active))))
	if n > b.capacity {
		return nil, fmt.Errorf("slot %d count %d over capacity: %w", active, n, api.ErrSchemaMismatch)
	}
	start := slotOff(active, b.capacity)
	cards := make([]card.Card, 0, n)
	for i := 0; i < n; i++ {
		c, err := card.Unmarshal(mem[start+i*card.CardSize:])
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Commit replaces the snapshot with cards and releases the lock. On any
// validation failure the lock is released and the previous snapshot stays
// visible.
func (b *Buffer) Commit(tok *CommitToken, cards []card.Card) (CommitResult, error) {
	if err := b.checkToken(tok); err != nil {
		return CommitResult{}, err
	}
	mem, err := b.acquire()
	if err != nil {
		return CommitResult{}, err
	}
	defer b.release()
	defer b.unlock(mem, tok)

	if owner := atomic.LoadUint32(u32(mem, offLock)); owner != tok.owner {
		return CommitResult{}, fmt.Errorf("lock now held by %d: %w", owner, api.ErrInvalidToken)
	}

	encoded, truncated, err := encodeCards(cards, b.capacity)
	if err != nil {
		return CommitResult{}, err
	}

	// The slot flip precedes the generation bump. A writer that dies
	// between the two leaves new cards under the old generation;
	// BreakStaleLock bumps the generation when it evicts such a writer.
	next := (atomic.LoadUint32(u32(mem, offActive)) & 1) ^ 1
	start := slotOff(next, b.capacity)
	copy(mem[start:start+len(encoded)], encoded)
	atomic.StoreUint64(u64(mem, countOff(next)), uint64(len(cards)))
	atomic.StoreUint32(u32(mem, offActive), next)
	atomic.StoreUint64(u64(mem, offCommitNano), uint64(time.Now().UnixNano()))
	gen := atomic.AddUint64(u64(mem, offGeneration), 1)

	b.commits.Add(1)
	b.textTruncates.Add(uint64(len(truncated)))
	return CommitResult{Generation: gen, Cards: len(cards), Truncated: truncated}, nil
}

func encodeCards(cards []card.Card, capacity int) ([]byte, []string, error) {
	if len(cards) > capacity {
		return nil, nil, api.Wrap(api.ErrCodeInvalidArgument, "commit", api.ErrCapacityExceeded).
			WithContext("cards", len(cards)).
			WithContext("capacity", capacity)
	}
	seen := make(map[string]struct{}, len(cards))
	out := make([]byte, len(cards)*card.CardSize)
	var truncated []string
	for i, c := range cards {
		if _, dup := seen[c.Key]; dup {
			return nil, nil, fmt.Errorf("key %s: %w", c.Key, api.ErrDuplicateKey)
		}
		seen[c.Key] = struct{}{}
		cut, err := c.MarshalTo(out[i*card.CardSize:])
		if err != nil {
			return nil, nil, err
		}
		if cut {
			truncated = append(truncated, c.Key)
		}
	}
	return out, truncated, nil
}

// BreakStaleLock clears the lock word when its owner process is gone and
// advances the generation past anything the dead writer may have
// published. It returns the PID that was evicted, or 0 if nothing was done.
func (b *Buffer) BreakStaleLock() (int, error) {
	if b.opts.ReadOnly {
		return 0, fmt.Errorf("break lock on read-only attachment: %w", api.ErrNotSupported)
	}
	mem, err := b.acquire()
	if err != nil {
		return 0, err
	}
	defer b.release()
	owner := atomic.LoadUint32(u32(mem, offLock))
	if owner == 0 || processAlive(int(owner)) {
		return 0, nil
	}
	// Take the lock over so no new writer publishes before the bump.
	if !atomic.CompareAndSwapUint32(u32(mem, offLock), owner, b.pid) {
		return 0, nil
	}
	atomic.AddUint64(u64(mem, offGeneration), 1)
	atomic.StoreUint32(u32(mem, offLock), 0)
	return int(owner), nil
}
