// File: api/control.go
// Package api defines Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control manages dynamic config and runtime metrics.
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	Stats() map[string]any
	OnReload(fn func())
	SetMetric(key string, value any)
	RegisterDebugProbe(name string, fn func() any)
}

// Debug exposes named runtime probes.
type Debug interface {
	// DumpState evaluates every probe.
	DumpState() map[string]any

	// RegisterProbe adds or replaces a probe.
	RegisterProbe(name string, fn func() any)
}
