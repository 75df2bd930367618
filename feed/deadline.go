// File: feed/deadline.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded waits around external queries.

package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/momentics/guppi-status/api"
)

// unavailable wraps cause as a typed FeedUnavailable error.
func unavailable(source string, cause error) error {
	if errors.Is(cause, api.ErrFeedUnavailable) {
		return cause
	}
	return api.Wrap(api.ErrCodeFeedUnavailable, fmt.Sprintf("%s feed", source), errors.Join(api.ErrFeedUnavailable, cause))
}

type deadlineFeed struct {
	next    api.TelescopeFeed
	timeout time.Duration
}

// WithDeadline bounds each Read of next to timeout. A slow feed is
// reported as unavailable instead of blocking the caller.
func WithDeadline(next api.TelescopeFeed, timeout time.Duration) api.TelescopeFeed {
	return &deadlineFeed{next: next, timeout: timeout}
}

type readResult struct {
	st  api.TelescopeStatus
	err error
}

func (d *deadlineFeed) Read(ctx context.Context) (api.TelescopeStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan readResult, 1)
	go func() {
		st, err := d.next.Read(ctx)
		done <- readResult{st, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return api.TelescopeStatus{}, unavailable("telescope", r.err)
		}
		return r.st, nil
	case <-ctx.Done():
		return api.TelescopeStatus{}, unavailable("telescope", ctx.Err())
	}
}

type deadlineClock struct {
	next    api.Clock
	timeout time.Duration
}

// ClockWithDeadline bounds each Now of next to timeout.
func ClockWithDeadline(next api.Clock, timeout time.Duration) api.Clock {
	return &deadlineClock{next: next, timeout: timeout}
}

type clockResult struct {
	mjd float64
	err error
}

func (d *deadlineClock) Now(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan clockResult, 1)
	go func() {
		mjd, err := d.next.Now(ctx)
		done <- clockResult{mjd, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return 0, unavailable("clock", r.err)
		}
		return r.mjd, nil
	case <-ctx.Done():
		return 0, unavailable("clock", ctx.Err())
	}
}
