// Package registry
// Author: momentics <momentics@gmail.com>
//
// Process-local API over the shared status registry.
//
// A control process opens a Handle, stages every key of one observation
// setup into a Batch and flushes it with a single Commit, so the
// acquisition pipeline never sees a new source paired with an old
// frequency. Readers take a Snapshot at any time; generation numbers make
// staleness checks cheap.
package registry
