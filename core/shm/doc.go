// Package shm
// Author: momentics <momentics@gmail.com>
//
// Implements the shared-memory status registry buffer.
//
// The region is a memory-mapped file shared by every attached process:
//   - a 64-byte header with magic, schema version, card size and capacity
//   - a generation counter and a lock word holding the writer PID
//   - two card slots; a commit fills the inactive slot and flips "active"
//
// Single writer, many readers. BeginCommit takes the lock word with a
// compare-and-swap and fails fast with api.ErrWriterBusy. Readers wait while
// the lock word is non-zero and re-validate the generation after copying;
// the wait is bounded and ends in api.ErrReadTimeout so a crashed writer
// cannot wedge the acquisition pipeline.
package shm
