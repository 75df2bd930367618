// control/control.go
// Author: momentics <momentics@gmail.com>
//
// Control aggregates config, metrics and probes behind api.Control.

package control

import (
	"github.com/momentics/guppi-status/api"
)

// Control implements api.Control using the package primitives.
type Control struct {
	config  *ConfigStore
	metrics *MetricsRegistry
	debug   *DebugProbes
}

var _ api.Control = (*Control)(nil)

// New returns a Control with platform probes registered.
func New() *Control {
	c := &Control{
		config:  NewConfigStore(),
		metrics: NewMetricsRegistry(),
		debug:   NewDebugProbes(),
	}
	RegisterPlatformProbes(c.debug)
	return c
}

// GetConfig returns the live configuration snapshot.
func (c *Control) GetConfig() map[string]any { return c.config.GetSnapshot() }

// SetConfig merges cfg and fires reload listeners.
func (c *Control) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}

// Config exposes the underlying store.
func (c *Control) Config() *ConfigStore { return c.config }

// Metrics exposes the metrics registry.
func (c *Control) Metrics() *MetricsRegistry { return c.metrics }

// Stats merges metrics and probe output; probe keys are prefixed "debug.".
func (c *Control) Stats() map[string]any {
	stats := c.metrics.GetSnapshot()
	combined := make(map[string]any, len(stats))
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range c.debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}

// OnReload registers a config listener.
func (c *Control) OnReload(fn func()) { c.config.OnReload(fn) }

// SetMetric sets one metric.
func (c *Control) SetMetric(key string, value any) { c.metrics.Set(key, value) }

// RegisterDebugProbe adds a named probe.
func (c *Control) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}
