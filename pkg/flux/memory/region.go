// Package memory implements the per-connection and per-request region
// (bump/arena) allocator used throughout flux, and the pool that amortizes
// region allocation across requests.
//
// Grounded on original_source/src/arena.c and arena-pool.c: a Region is a
// linked chain of fixed-size backing buffers; allocation bumps a cursor
// inside the current buffer and advances (or grows) the chain when full.
// reset() zeroes every buffer's cursor without releasing memory; free()
// drops the chain for the GC to collect.
package memory

import (
	"fmt"
)

// DefaultRegionSize is the capacity of a freshly allocated backing buffer,
// matching original_source's ARENA_REGION_SIZE default.
const DefaultRegionSize = 16 * 1024

// alignment is the pointer-size alignment every allocation is rounded up to,
// mirroring arena_alloc's division by sizeof(uintptr_t).
const alignment = 8

type regionBuf struct {
	data []byte
	next *regionBuf
}

// Region is a bump allocator over a chain of regionBufs. It is not safe for
// concurrent use by multiple goroutines — a Region is always owned by
// exactly one Connection or Request at a time.
type Region struct {
	begin *regionBuf
	end   *regionBuf

	allocated int64 // cumulative bytes handed out, for stats/diagnostics
}

// NewRegion returns an empty Region with no backing buffer yet; the first
// buffer is allocated lazily on the first Alloc, sized to fit the request.
func NewRegion() *Region {
	return &Region{}
}

func newRegionBuf(capacity int) *regionBuf {
	if capacity < 0 {
		capacity = 0
	}
	return &regionBuf{data: make([]byte, 0, capacity)}
}

// Alloc returns a zeroed byte slice of the requested size, allocated from
// the region's current buffer (advancing to, or creating, the next buffer
// if there isn't enough room). The returned slice is valid until Reset or
// Free is called on this Region.
func (r *Region) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	aligned := (size + alignment - 1) / alignment * alignment

	if r.end == nil {
		capacity := DefaultRegionSize
		if capacity < aligned {
			capacity = aligned
		}
		buf := newRegionBuf(capacity)
		r.begin, r.end = buf, buf
	}

	for len(r.end.data)+aligned > cap(r.end.data) && r.end.next != nil {
		r.end = r.end.next
	}

	if len(r.end.data)+aligned > cap(r.end.data) {
		capacity := DefaultRegionSize
		if capacity < aligned {
			capacity = aligned
		}
		buf := newRegionBuf(capacity)
		r.end.next = buf
		r.end = buf
	}

	start := len(r.end.data)
	r.end.data = r.end.data[:start+aligned]
	for i := start; i < start+aligned; i++ {
		r.end.data[i] = 0
	}
	r.allocated += int64(size)
	return r.end.data[start : start+size : start+aligned]
}

// Realloc grows an existing allocation monotonically: if newSize <= oldSize
// it returns old unchanged (shrinking in place is not supported, matching
// the original's contract). Otherwise it allocates fresh space and copies
// the old contents forward.
func (r *Region) Realloc(old []byte, oldSize, newSize int) []byte {
	if newSize <= oldSize {
		return old
	}
	next := r.Alloc(newSize)
	copy(next, old[:oldSize])
	return next
}

// Strdup copies a string into the region and returns it as a region-backed
// string. The string header points at region memory; treat it with the same
// lifetime rules as any other region allocation.
func (r *Region) Strdup(s string) string {
	if s == "" {
		return ""
	}
	buf := r.Alloc(len(s))
	copy(buf, s)
	return string(buf)
}

// Memdup copies a byte slice into the region.
func (r *Region) Memdup(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	buf := r.Alloc(len(b))
	copy(buf, b)
	return buf
}

// Sprintf formats into region memory. Mirrors arena_sprintf's two-pass
// approach (size-probe via fmt.Sprintf, then copy into the region) since Go
// offers no vsnprintf(NULL, 0, ...) size probe.
func (r *Region) Sprintf(format string, args ...interface{}) string {
	s := fmt.Sprintf(format, args...)
	return r.Strdup(s)
}

// Reset zeroes the write cursor of every buffer in the chain and rewinds to
// the first one, without releasing any backing memory.
func (r *Region) Reset() {
	for b := r.begin; b != nil; b = b.next {
		b.data = b.data[:0]
	}
	r.end = r.begin
	r.allocated = 0
}

// Free drops the whole chain; the Region is left in its zero state.
func (r *Region) Free() {
	r.begin = nil
	r.end = nil
	r.allocated = 0
}

// keepFirstBufferOnly discards every buffer after the first and resets the
// first buffer's cursor. Used by RegionPool.Release, mirroring
// arena_pool_release's "keep only the first region, free the rest".
func (r *Region) keepFirstBufferOnly() {
	if r.begin == nil {
		return
	}
	r.begin.next = nil
	r.begin.data = r.begin.data[:0]
	r.end = r.begin
	r.allocated = 0
}

// Allocated returns the cumulative number of bytes handed out since the last
// Reset, for diagnostics.
func (r *Region) Allocated() int64 {
	return r.allocated
}
