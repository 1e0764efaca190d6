// Package sampling implements the SamplingEngine of spec §4.6: one PEBS
// load-latency ring and one profiling-counter ring per online core,
// demultiplexed into PageAccessStats/LevelHistogram/FrequencyHistogram
// and a migration-candidate feed. Grounded on the sample-reader idiom
// of other_examples' intel-cri-resource-manager memtier trackers
// (softdirty/idlepage) and on the teacher's own mmap-free counter
// collectors (internal/collector/cpu.go) for the surrounding polling
// cadence, since the teacher never reads a raw perf ring itself.
package sampling

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// Fixed offsets of perf_event_mmap_page's data_head/data_tail fields,
// per linux/perf_event.h: the header struct is laid out so these two
// fields sit at byte offset 1024/1032 regardless of kernel version.
const (
	mmapDataHeadOffset = 1024
	mmapDataTailOffset = 1032
)

// perfEventHeader is the 8-byte record header every ring entry starts
// with: record type, flags, and total size including this header.
type perfEventHeader struct {
	Type uint32
	Misc uint16
	Size uint16
}

const perfRecordSample = 9

// ring wraps one perf mmap region: a single header page followed by a
// power-of-two-sized data region.
type ring struct {
	mem        []byte
	dataOffset int
	dataSize   uint64
}

func newRing(mem []byte, pageSize int) *ring {
	return &ring{mem: mem, dataOffset: pageSize, dataSize: uint64(len(mem) - pageSize)}
}

func (r *ring) head() uint64 {
	// acquire: process up to this head only after observing it.
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&r.mem[mmapDataHeadOffset])))
}

func (r *ring) tail() uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&r.mem[mmapDataTailOffset])))
}

func (r *ring) setTail(v uint64) {
	// release: publish only after all prior reads have completed.
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&r.mem[mmapDataTailOffset])), v)
}

// readAt copies n bytes starting at ring-relative byte position pos,
// addressing the data region modulo its capacity. This is the corrected
// addressing mode: the position itself grows without bound across the
// life of the ring, but every byte access is reduced modulo dataSize
// before indexing into the backing array, so the reader never walks off
// the end of the mmap no matter how long the ring has been running.
func (r *ring) readAt(pos, n uint64) []byte {
	out := make([]byte, n)
	for i := uint64(0); i < n; i++ {
		off := (pos + i) % r.dataSize
		out[i] = r.mem[uint64(r.dataOffset)+off]
	}
	return out
}

// consume drains every complete record between the ring's current tail
// and head, invoking fn for each, then release-stores the new tail.
// Non-SAMPLE records are passed through; callers filter by header.Type.
func (r *ring) consume(fn func(header perfEventHeader, payload []byte)) {
	head := r.head()
	tail := r.tail()
	for tail+8 <= head {
		hdrBuf := r.readAt(tail, 8)
		h := perfEventHeader{
			Type: binary.LittleEndian.Uint32(hdrBuf[0:4]),
			Misc: binary.LittleEndian.Uint16(hdrBuf[4:6]),
			Size: binary.LittleEndian.Uint16(hdrBuf[6:8]),
		}
		if h.Size < 8 || tail+uint64(h.Size) > head {
			break // partial record at the end of the available window
		}
		payload := r.readAt(tail+8, uint64(h.Size)-8)
		fn(h, payload)
		tail += uint64(h.Size)
	}
	r.setTail(tail)
}
