// File: core/shm/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shm

import "time"

// DefaultPath is where the region lives unless configured otherwise.
const DefaultPath = "/dev/shm/guppi_status"

// Options tune Attach.
type Options struct {
	// Capacity is the number of cards per slot. Zero adopts an existing
	// region's capacity, or DefaultCapacity when creating.
	Capacity int
	// ReadOnly maps the region without write access. Such a buffer can
	// snapshot but never commit.
	ReadOnly bool
	// NoCreate fails instead of creating a missing region.
	NoCreate bool
	// ReadTimeout bounds how long SnapshotRead waits on a held lock.
	ReadTimeout time.Duration
	// SpinLimit is the number of busy retries before SnapshotRead sleeps.
	SpinLimit int
	// Perm is the file mode used when creating the region.
	Perm uint32
}

// Option customizes Attach.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		ReadTimeout: 2 * time.Second,
		SpinLimit:   128,
		Perm:        0o666,
	}
}

// WithCapacity requires (or creates) a region of n cards per slot.
func WithCapacity(n int) Option { return func(o *Options) { o.Capacity = n } }

// WithReadOnly attaches read-only.
func WithReadOnly() Option { return func(o *Options) { o.ReadOnly = true } }

// WithNoCreate refuses to create a missing region.
func WithNoCreate() Option { return func(o *Options) { o.NoCreate = true } }

// WithReadTimeout sets the snapshot wait bound.
func WithReadTimeout(d time.Duration) Option { return func(o *Options) { o.ReadTimeout = d } }

// WithSpinLimit sets busy retries before sleeping.
func WithSpinLimit(n int) Option { return func(o *Options) { o.SpinLimit = n } }

// WithPerm sets the creation mode of the backing file.
func WithPerm(perm uint32) Option { return func(o *Options) { o.Perm = perm } }
