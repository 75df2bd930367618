//go:build !(linux || darwin || freebsd)

// File: core/shm/mmap_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package shm

import "github.com/momentics/guppi-status/api"

func mapRegion(path string, o Options) ([]byte, int, error) {
	return nil, 0, api.ErrNotSupported
}

func unmapRegion(mem []byte) error { return nil }

func processAlive(pid int) bool { return true }
