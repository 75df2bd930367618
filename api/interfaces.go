// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

import (
	"context"
)

// TelescopeFeed is the read-only telescope pointing/status query.
// Implementations report failures wrapped in ErrFeedUnavailable.
type TelescopeFeed interface {
	Read(ctx context.Context) (TelescopeStatus, error)
}

// Clock yields the current time as a fractional Modified Julian Day.
type Clock interface {
	Now(ctx context.Context) (float64, error)
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func(ctx context.Context) (float64, error)

// Now implements Clock.
func (f ClockFunc) Now(ctx context.Context) (float64, error) { return f(ctx) }

// FeedFunc adapts a plain function to TelescopeFeed.
type FeedFunc func(ctx context.Context) (TelescopeStatus, error)

// Read implements TelescopeFeed.
func (f FeedFunc) Read(ctx context.Context) (TelescopeStatus, error) { return f(ctx) }

// StatsSource exposes registry statistics for control-plane probes.
type StatsSource interface {
	Stats() RegistryStats
}
