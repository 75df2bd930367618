// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

// Readers racing a writer must never see a torn batch.
package shm

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
)

func batchFor(i int64) []card.Card {
	return []card.Card{
		card.New("SRC_NAME", card.Text(fmt.Sprintf("PSR_%d", i))),
		card.New("OBSFREQ", card.Float(float64(i))),
		card.New("SCANNUM", card.Int(i)),
		card.New("BASENAME", card.Text(fmt.Sprintf("guppi_PSR_%d_%04d", i, i))),
	}
}

// TestSnapshotRead_NeverTorn commits batches whose cards all encode the
// same counter while several attachments read continuously. The writer
// stops at the commit count or the time budget, whichever comes first.
func TestSnapshotRead_NeverTorn(t *testing.T) {
	path := regionPath(t)
	w := attach(t, path, WithCapacity(16))

	commits, readers := int64(2000), 4
	budget := 5 * time.Second
	if testing.Short() {
		commits, readers = 200, 2
		budget = time.Second
	}
	var stop atomic.Bool
	var wg sync.WaitGroup
	var reads atomic.Int64

	for r := 0; r < readers; r++ {
		rb := attach(t, path)
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastGen uint64
			for !stop.Load() {
				snap, err := rb.SnapshotRead(context.Background())
				if err != nil {
					t.Errorf("snapshot: %v", err)
					return
				}
				if snap.Generation < lastGen {
					t.Errorf("generation went backwards: %d < %d", snap.Generation, lastGen)
					return
				}
				lastGen = snap.Generation
				if len(snap.Cards) == 0 {
					continue
				}
				n, _ := snap.Cards[2].Value.AsInt()
				want := batchFor(n)
				for i, c := range snap.Cards {
					if !c.Value.Equal(want[i].Value) {
						t.Errorf("torn snapshot at gen %d: %s=%v, expected %v", snap.Generation, c.Key, c.Value, want[i].Value)
						return
					}
				}
				reads.Add(1)
			}
		}()
	}

	deadline := time.Now().Add(budget)
	var done int64
	for i := int64(1); i <= commits && time.Now().Before(deadline); i++ {
		for {
			tok, err := w.BeginCommit()
			if errors.Is(err, api.ErrWriterBusy) {
				runtime.Gosched()
				continue
			}
			if err != nil {
				t.Fatalf("begin commit: %v", err)
			}
			if _, err := w.Commit(tok, batchFor(i)); err != nil {
				t.Fatalf("commit %d: %v", i, err)
			}
			done = i
			runtime.Gosched()
			break
		}
	}
	stop.Store(true)
	wg.Wait()

	gen, err := w.Generation()
	if err != nil {
		t.Fatal(err)
	}
	if done == 0 {
		t.Fatal("Expected at least one commit within the time budget")
	}
	if gen != uint64(done) {
		t.Errorf("Expected generation %d, got %d", done, gen)
	}
	if reads.Load() == 0 {
		t.Error("Expected readers to observe at least one snapshot")
	}
}

// TestBeginCommit_Race checks that concurrent BeginCommit calls from
// separate attachments admit exactly one writer.
func TestBeginCommit_Race(t *testing.T) {
	path := regionPath(t)
	const contenders = 8
	bufs := make([]*Buffer, contenders)
	for i := range bufs {
		bufs[i] = attach(t, path, WithCapacity(8))
	}

	var wg sync.WaitGroup
	var winners, busy atomic.Int32
	tokens := make(chan *CommitToken, contenders)
	start := make(chan struct{})
	for _, b := range bufs {
		wg.Add(1)
		go func(b *Buffer) {
			defer wg.Done()
			<-start
			tok, err := b.BeginCommit()
			switch {
			case err == nil:
				winners.Add(1)
				tokens <- tok
			case errors.Is(err, api.ErrWriterBusy):
				busy.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(b)
	}
	close(start)
	wg.Wait()
	close(tokens)

	if winners.Load() != 1 || busy.Load() != contenders-1 {
		t.Fatalf("Expected 1 winner and %d busy, got %d and %d", contenders-1, winners.Load(), busy.Load())
	}
	for tok := range tokens {
		if err := tok.buf.Abort(tok); err != nil {
			t.Fatal(err)
		}
	}
}
