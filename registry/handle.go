// File: registry/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle is one process's session with the shared registry.

package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
	"github.com/momentics/guppi-status/core/derive"
	"github.com/momentics/guppi-status/core/shm"
	"github.com/momentics/guppi-status/internal/logging"
	"github.com/momentics/guppi-status/internal/tracing"
)

var timeNow = time.Now

var _ api.StatsSource = (*Handle)(nil)

// Options configure Open.
type Options struct {
	Path          string
	Capacity      int
	ReadOnly      bool
	ReadTimeout   time.Duration
	CommitTimeout time.Duration // total retry budget for a busy lock

	Feed    api.TelescopeFeed
	Clock   api.Clock
	Backend Backend
	Site    derive.Site

	Logger  *zap.Logger
	Control api.Control
}

// DefaultOptions returns options for the default shared region.
func DefaultOptions() Options {
	return Options{
		Path:          shm.DefaultPath,
		ReadTimeout:   2 * time.Second,
		CommitTimeout: 5 * time.Second,
		Backend:       DefaultBackend(),
		Site:          derive.GBT,
	}
}

// Handle stages and commits batches and reads snapshots.
type Handle struct {
	id     string
	buf    *shm.Buffer
	opts   Options
	log    *zap.Logger
	tracer trace.Tracer
}

// Open attaches to the region described by opts. Schema drift yields an
// error matching api.ErrAttach; only this session is affected.
func Open(ctx context.Context, opts Options) (*Handle, error) {
	if opts.Path == "" {
		opts.Path = shm.DefaultPath
	}
	if opts.Site.Name == "" {
		opts.Site = derive.GBT
	}
	if opts.Backend.Name == "" {
		opts.Backend = DefaultBackend()
	}
	h := &Handle{
		id:     uuid.NewString(),
		opts:   opts,
		tracer: tracing.Tracer(),
	}
	h.log = logging.OrNop(opts.Logger).Named(logging.CompRegistry).With(zap.String("session", h.id))

	_, span := h.tracer.Start(ctx, "registry.open", trace.WithAttributes(attribute.String("path", opts.Path)))
	defer span.End()

	shmOpts := []shm.Option{shm.WithCapacity(opts.Capacity)}
	if opts.ReadOnly {
		shmOpts = append(shmOpts, shm.WithReadOnly())
	}
	if opts.ReadTimeout > 0 {
		shmOpts = append(shmOpts, shm.WithReadTimeout(opts.ReadTimeout))
	}
	buf, err := shm.Attach(opts.Path, shmOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attach")
		h.log.Error("attach failed", zap.String("path", opts.Path), zap.Error(err))
		return nil, err
	}
	h.buf = buf
	h.log.Debug("attached", zap.String("path", opts.Path), zap.Int("capacity", buf.Capacity()), zap.Bool("read_only", opts.ReadOnly))
	h.registerProbes()
	return h, nil
}

// OpenReader attaches read-only, as the acquisition pipeline does.
func OpenReader(ctx context.Context, path string, log *zap.Logger) (*Handle, error) {
	opts := DefaultOptions()
	opts.Path = path
	opts.ReadOnly = true
	opts.Logger = log
	return Open(ctx, opts)
}

func (h *Handle) registerProbes() {
	if h.opts.Control == nil {
		return
	}
	h.opts.Control.RegisterDebugProbe("registry.path", func() any { return h.buf.Path() })
	h.opts.Control.RegisterDebugProbe("registry.stats", func() any { return h.Stats() })
}

// ID is the session identifier used in logs.
func (h *Handle) ID() string { return h.id }

// Close detaches. The region itself persists.
func (h *Handle) Close() error { return h.buf.Detach() }

// Generation returns the committed generation without copying cards.
func (h *Handle) Generation() (uint64, error) { return h.buf.Generation() }

// Changed reports whether a commit happened after since.
func (h *Handle) Changed(since uint64) (bool, uint64, error) {
	gen, err := h.buf.Generation()
	if err != nil {
		return false, 0, err
	}
	return gen != since, gen, nil
}

// Snapshot returns a consistent copy of the registry.
func (h *Handle) Snapshot(ctx context.Context) (Snapshot, error) {
	ctx, span := h.tracer.Start(ctx, "registry.snapshot")
	defer span.End()
	s, err := h.buf.SnapshotRead(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot")
		if errors.Is(err, api.ErrReadTimeout) {
			h.log.Warn("snapshot timed out; registry data may be stale", zap.Error(err))
		}
		return Snapshot{}, err
	}
	span.SetAttributes(attribute.Int64("generation", int64(s.Generation)))
	return newSnapshot(s), nil
}

// CommitResult reports a successful commit.
type CommitResult struct {
	Generation uint64
	Cards      int
	Truncated  []string
	Attempts   int
}

// Commit merges b over the current snapshot and publishes it atomically.
// Keys not in b keep their values. TBIN and CHAN_BW are recomputed from
// the merged inputs before publishing. A busy lock is retried with
// exponential backoff until CommitTimeout or ctx expires.
func (h *Handle) Commit(ctx context.Context, b *Batch) (CommitResult, error) {
	ctx, span := h.tracer.Start(ctx, "registry.commit", trace.WithAttributes(attribute.Int("staged", b.Len())))
	defer span.End()

	res, err := h.commit(ctx, b)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return res, err
	}
	span.SetAttributes(
		attribute.Int64("generation", int64(res.Generation)),
		attribute.Int("attempts", res.Attempts),
	)
	return res, nil
}

func (h *Handle) commit(ctx context.Context, b *Batch) (CommitResult, error) {
	if b == nil {
		return CommitResult{}, fmt.Errorf("nil batch: %w", api.ErrInvalidArgument)
	}
	if err := b.Err(); err != nil {
		return CommitResult{}, fmt.Errorf("staging: %w", err)
	}
	if b.Len() == 0 {
		return CommitResult{}, fmt.Errorf("empty batch: %w", api.ErrInvalidArgument)
	}
	for _, w := range b.Warnings() {
		h.log.Warn("staged text exceeds card width", zap.Error(w))
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Millisecond
	expo.MaxInterval = 50 * time.Millisecond

	attempts := 0
	op := func() (CommitResult, error) {
		attempts++
		res, err := h.commitOnce(b)
		if err != nil && !errors.Is(err, api.ErrWriterBusy) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, next time.Duration) {
		h.log.Debug("registry busy, retrying", zap.Error(err), zap.Duration("next", next))
	}
	retryOpts := []backoff.RetryOption{backoff.WithBackOff(expo), backoff.WithNotify(notify)}
	if h.opts.CommitTimeout > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(h.opts.CommitTimeout))
	}

	res, err := backoff.Retry(ctx, op, retryOpts...)
	res.Attempts = attempts
	if err != nil {
		h.log.Error("commit failed", zap.Int("attempts", attempts), zap.Error(err))
		return res, err
	}
	if len(res.Truncated) > 0 {
		h.log.Warn("text truncated on commit", zap.Strings("keys", res.Truncated), zap.Error(api.ErrTextTruncated))
	}
	h.log.Info("committed", zap.Uint64("generation", res.Generation), zap.Int("cards", res.Cards), zap.Int("attempts", attempts))
	if h.opts.Control != nil {
		h.opts.Control.SetMetric("registry.generation", res.Generation)
		h.opts.Control.SetMetric("registry.last_commit_cards", res.Cards)
	}
	return res, nil
}

// commitOnce runs the lock-merge-derive-publish cycle a single time. Only
// the in-memory merge and the TBIN/CHAN_BW arithmetic run under the lock;
// feed and clock reads belong to staging.
func (h *Handle) commitOnce(b *Batch) (CommitResult, error) {
	tok, err := h.buf.BeginCommit()
	if err != nil {
		return CommitResult{}, err
	}
	base, err := h.buf.Current(tok)
	if err != nil {
		_ = h.buf.Abort(tok)
		return CommitResult{}, err
	}
	merged, err := withDerived(b.apply(base))
	if err != nil {
		_ = h.buf.Abort(tok)
		return CommitResult{}, err
	}
	r, err := h.buf.Commit(tok, merged)
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{Generation: r.Generation, Cards: r.Cards, Truncated: r.Truncated}, nil
}

// withDerived replaces TBIN and CHAN_BW so they always match their inputs.
func withDerived(cards []card.Card) ([]card.Card, error) {
	idx := make(map[string]int, len(cards))
	for i, c := range cards {
		idx[c.Key] = i
	}
	get := func(key string) (card.Value, bool) {
		i, ok := idx[key]
		if !ok {
			return card.Value{}, false
		}
		return cards[i].Value, true
	}
	derived, err := derive.TimingCards(get)
	if err != nil {
		return nil, err
	}
	for _, d := range derived {
		if i, ok := idx[d.Key]; ok {
			cards[i] = d
		} else {
			cards = append(cards, d)
		}
	}
	return cards, nil
}

// BreakStaleLock clears a lock left by a dead writer.
func (h *Handle) BreakStaleLock() (int, error) {
	pid, err := h.buf.BreakStaleLock()
	if err == nil && pid != 0 {
		h.log.Warn("broke stale registry lock", zap.Int("owner_pid", pid))
	}
	return pid, err
}

// Stats summarizes registry and session counters.
func (h *Handle) Stats() api.RegistryStats {
	st := h.buf.Stats()
	out := api.RegistryStats{
		Path:          h.buf.Path(),
		Capacity:      h.buf.Capacity(),
		Commits:       st.Commits,
		BusyRetries:   st.BusyRejects,
		ReadRetries:   st.ReadRetries,
		ReadTimeouts:  st.ReadTimeouts,
		TextTruncates: st.TextTruncates,
	}
	if p, err := h.buf.Published(); err == nil {
		out.Generation = p.Generation
		out.Cards = p.Cards
		out.LastCommitAt = p.CommittedAt
	}
	if owner, err := h.buf.LockOwner(); err == nil {
		out.LockOwner = owner
	}
	return out
}
