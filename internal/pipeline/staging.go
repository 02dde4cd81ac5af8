package pipeline

import (
	"sync/atomic"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/pool"
)

// slot describes one committed line inside a staging buffer
type slot struct {
	offset int
	length int
	row    int
	// end is the logical byte position just past this line, used to
	// release ring space once the line is consumed
	end uint64
}

// stagingRegion is a single-producer single-consumer ring of line bytes
// plus a parallel table of slots.
//
// The producer (coordinator) writes the payload and the slot, then publishes
// it by advancing written. The consumer (worker) reads every slot below
// written, then advances read and consumed. atomic stores and loads order
// the payload before the cursor on both sides.
//
// Byte positions are logical and grow without bound; the physical offset is
// position % len(buf). A line never wraps: if it does not fit before the
// end of the buffer the producer skips to offset 0.
type stagingRegion struct {
	buf   []byte
	slots []slot

	// producer side
	written atomic.Uint64 // committed slots (write cursor)
	_       [7]uint64     //nolint:unused // keep cursors on separate cache lines
	tail    uint64        // logical byte end of the last committed line
	bytes   int64         // payload bytes committed

	// consumer side
	read     atomic.Uint64 // consumed slots
	_        [7]uint64     //nolint:unused
	consumed atomic.Uint64 // logical byte end of the last consumed line

	notify   chan struct{} // producer -> consumer: new slots
	space    chan struct{} // consumer -> producer: space freed
	anySpace chan struct{} // shared by all regions of one pipeline
	done     chan Completion
}

func newStagingRegion(capacity, slots int, anySpace chan struct{}) *stagingRegion {
	return &stagingRegion{
		buf:      pool.Buffers.Get(capacity),
		slots:    make([]slot, slots),
		notify:   make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		anySpace: anySpace,
		done:     make(chan Completion, 1),
	}
}

// free hands the byte ring back to the buffer pool once producer and
// consumer have both stopped
func (s *stagingRegion) free() {
	pool.Buffers.Put(s.buf)
	s.buf = nil
}

// tryPush commits line for row, or reports false when the region has no
// free slot or not enough contiguous bytes. Producer only.
func (s *stagingRegion) tryPush(line []byte, row int) bool {
	w, r := s.written.Load(), s.read.Load()
	if w-r >= uint64(len(s.slots)) {
		return false
	}

	capacity := uint64(len(s.buf))
	n := uint64(len(line))
	start := s.tail
	if phys := start % capacity; phys+n > capacity {
		start += capacity - phys
	}
	end := start + n

	// Bytes from consumed up to end are live. With nothing in flight the
	// padding before start is free as well.
	live := s.consumed.Load()
	if w == r {
		live = start
	}
	if end-live > capacity {
		return false
	}

	off := int(start % capacity) //nolint:gosec // G115: bounded by capacity
	copy(s.buf[off:], line)
	s.slots[w%uint64(len(s.slots))] = slot{offset: off, length: len(line), row: row, end: end}
	s.tail = end
	s.bytes += int64(len(line))

	// publish
	s.written.Store(w + 1)
	signal(s.notify)
	return true
}

// complete sends the end-of-input message. Producer only, once.
func (s *stagingRegion) complete() {
	s.done <- Completion{TotalBytes: s.bytes, Lines: int64(s.written.Load())} //nolint:gosec // G115: slot counts fit in int64
}

// pending returns the half-open range of committed but unconsumed slots.
// Consumer only.
func (s *stagingRegion) pending() (from, to uint64) {
	return s.read.Load(), s.written.Load()
}

// line returns slot i and its payload. The payload aliases the ring and is
// valid until release(i). Consumer only.
func (s *stagingRegion) line(i uint64) (slot, []byte) {
	sl := s.slots[i%uint64(len(s.slots))]
	return sl, s.buf[sl.offset : sl.offset+sl.length]
}

// release frees slot i and everything before it. Consumer only.
func (s *stagingRegion) release(i uint64, sl slot) {
	s.consumed.Store(sl.end)
	s.read.Store(i + 1)
	signal(s.space)
	signal(s.anySpace)
}

// signal does a non-blocking send on a one-slot channel. A pending token
// already means "look again", so a full channel drops the send.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
