//go:build linux || darwin || freebsd

// File: core/shm/mmap_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// POSIX mapping of the registry region via golang.org/x/sys/unix.

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/guppi-status/api"
)

// mapRegion opens (or creates) the backing file and maps it MAP_SHARED.
// Creation and validation run under flock so two first-attachers cannot
// both initialize the header.
func mapRegion(path string, o Options) ([]byte, int, error) {
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if o.ReadOnly {
		flags = unix.O_RDONLY | unix.O_CLOEXEC
	} else if !o.NoCreate {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(path, flags, o.Perm)
	if err != nil {
		return nil, 0, fmt.Errorf("open: %w", err)
	}
	defer unix.Close(fd)

	how := unix.LOCK_EX
	if o.ReadOnly {
		how = unix.LOCK_SH
	}
	if err := unix.Flock(fd, how); err != nil {
		return nil, 0, fmt.Errorf("flock: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, 0, fmt.Errorf("fstat: %w", err)
	}

	if st.Size == 0 {
		if o.ReadOnly {
			return nil, 0, api.Wrap(api.ErrCodeAttach, "region not initialized", api.ErrSchemaMismatch)
		}
		capacity := o.Capacity
		if capacity == 0 {
			capacity = DefaultCapacity
		}
		size := RegionSize(capacity)
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return nil, 0, fmt.Errorf("ftruncate: %w", err)
		}
		mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return nil, 0, fmt.Errorf("mmap: %w", err)
		}
		writeHeader(mem, capacity)
		return mem, capacity, nil
	}

	hdr := make([]byte, HeaderSize)
	if n, err := unix.Pread(fd, hdr, 0); err != nil || n != HeaderSize {
		if err == nil {
			err = errors.New("short read")
		}
		return nil, 0, api.Wrap(api.ErrCodeAttach, "read header", api.ErrSchemaMismatch).WithContext("cause", err.Error())
	}
	capacity, err := validateHeader(hdr, st.Size, o.Capacity)
	if err != nil {
		return nil, 0, err
	}

	prot := unix.PROT_READ
	if !o.ReadOnly {
		prot |= unix.PROT_WRITE
	}
	mem, err := unix.Mmap(fd, 0, int(st.Size), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, 0, fmt.Errorf("mmap: %w", err)
	}
	return mem, capacity, nil
}

func unmapRegion(mem []byte) error {
	if mem == nil {
		return nil
	}
	return unix.Munmap(mem)
}

// processAlive probes pid with signal 0.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
