// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime debug handler and probe reflector for internal inspection.

package control

import (
	"os"
	"runtime"
	"sync"

	"github.com/momentics/guppi-status/api"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

var _ api.Debug = (*DebugProbes)(nil)

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// RegisterPlatformProbes sets process-level debug values.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.pid", func() any { return os.Getpid() })
	dp.RegisterProbe("platform.goos", func() any { return runtime.GOOS })
	dp.RegisterProbe("platform.cpus", func() any { return runtime.NumCPU() })
}
