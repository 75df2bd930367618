// Package feed
// Author: momentics <momentics@gmail.com>
//
// External feed adapters: the system clock and telescope status sources.
//
// Every adapter is read-only. Failures are reported as api.ErrFeedUnavailable
// so the registry handle never stages defaults in place of feed values.
package feed
