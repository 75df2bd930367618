// File: core/shm/layout.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Header layout of the registry region and atomic field accessors.

package shm

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
)

const (
	// SchemaVersion is bumped on any incompatible layout change.
	SchemaVersion = 1
	// HeaderSize is the size of the region header.
	HeaderSize = 64
	// DefaultCapacity is the default number of cards per slot.
	DefaultCapacity = 512

	offMagic      = 0
	offVersion    = 8
	offCardSize   = 12
	offCapacity   = 16
	offActive     = 20
	offGeneration = 24
	offLock       = 32
	offCount0     = 40
	offCount1     = 48
	offCommitNano = 56
)

var magic = [8]byte{'G', 'U', 'P', 'P', 'I', 'S', 'T', 'S'}

// RegionSize returns the file size for a region with the given capacity.
func RegionSize(capacity int) int {
	return HeaderSize + 2*capacity*card.CardSize
}

func u32(mem []byte, off int) *uint32 { return (*uint32)(unsafe.Pointer(&mem[off])) }
func u64(mem []byte, off int) *uint64 { return (*uint64)(unsafe.Pointer(&mem[off])) }

// writeHeader initializes an empty region.
func writeHeader(mem []byte, capacity int) {
	copy(mem[offMagic:], magic[:])
	card.ByteOrder.PutUint32(mem[offVersion:], SchemaVersion)
	card.ByteOrder.PutUint32(mem[offCardSize:], card.CardSize)
	card.ByteOrder.PutUint32(mem[offCapacity:], uint32(capacity))
	atomic.StoreUint32(u32(mem, offActive), 0)
	atomic.StoreUint64(u64(mem, offCount0), 0)
	atomic.StoreUint64(u64(mem, offCount1), 0)
	atomic.StoreUint64(u64(mem, offGeneration), 0)
	atomic.StoreUint32(u32(mem, offLock), 0)
}

// validateHeader checks a header against this build's schema. wantCap of 0
// adopts whatever capacity the region was created with.
func validateHeader(hdr []byte, size int64, wantCap int) (int, error) {
	if len(hdr) < HeaderSize {
		return 0, schemaErr("short header", "size", len(hdr))
	}
	if !bytes.Equal(hdr[offMagic:offMagic+8], magic[:]) {
		return 0, schemaErr("bad magic", "magic", fmt.Sprintf("%q", hdr[offMagic:offMagic+8]))
	}
	if v := card.ByteOrder.Uint32(hdr[offVersion:]); v != SchemaVersion {
		return 0, schemaErr("schema version differs", "version", v)
	}
	if cs := card.ByteOrder.Uint32(hdr[offCardSize:]); cs != card.CardSize {
		return 0, schemaErr("card size differs", "card_size", cs)
	}
	capacity := int(card.ByteOrder.Uint32(hdr[offCapacity:]))
	if capacity <= 0 || (wantCap != 0 && capacity != wantCap) {
		return 0, schemaErr("capacity differs", "capacity", capacity)
	}
	if size != int64(RegionSize(capacity)) {
		return 0, schemaErr("region size differs", "size", size)
	}
	return capacity, nil
}

func schemaErr(msg, key string, val any) error {
	return api.Wrap(api.ErrCodeAttach, msg, api.ErrSchemaMismatch).WithContext(key, val)
}
