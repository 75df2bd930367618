// File: feed/clock.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package feed

import (
	"context"
	"errors"
	"time"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/derive"
)

var errZeroTime = errors.New("clock returned zero time")

// SystemClock reads the host clock (NTP disciplined in production).
type SystemClock struct {
	// Source overrides time.Now; nil uses the host clock.
	Source func() time.Time
}

var _ api.Clock = SystemClock{}

// Now implements api.Clock.
func (c SystemClock) Now(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("clock", err)
	}
	src := time.Now
	if c.Source != nil {
		src = c.Source
	}
	t := src()
	if t.IsZero() {
		return 0, unavailable("clock", errZeroTime)
	}
	return derive.MJDFromTime(t), nil
}

// FixedClock always reports the same MJD.
type FixedClock float64

// Now implements api.Clock.
func (c FixedClock) Now(ctx context.Context) (float64, error) { return float64(c), nil }
