// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, live configuration and debug introspection for the
// status registry tools.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads and merged updates with reload listeners
//   - Commit/read counters published by registry handles
//   - Debug probes dumped by "guppictl status"
package control
