package sampling

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/perf"
)

// pageFaultRecord mirrors the fixed-size event the fallback BPF program
// pushes into its perf event array: pid, accessing cpu, faulting
// address, all little-endian.
type pageFaultRecord struct {
	Pid  uint32
	CPU  uint32
	Addr uint64
}

const pageFaultRecordSize = 16

// PageFaultFallback is a supplementary page-fault kprobe used when PEBS
// load-latency sampling is unavailable (non-Intel hardware, insufficient
// `perf_event_paranoid`, or a VM without PEBS passthrough). It feeds the
// same AddPageToMove/AddMemAccess path as the PEBS ring, at coarser
// granularity (fault time, not cache-miss time).
//
// Adapted from the teacher's internal/ebpf/loader.go Loader/TryLoad
// pattern: same BTF/CO-RE gating and kprobe-attach flow, narrowed from a
// registry of arbitrary named programs down to the one page-fault probe
// this engine needs, and rewired to decode its perf event array into
// PageAccessStats instead of into a generic collector Result.
type PageFaultFallback struct {
	btf     *btfInfo
	log     *slog.Logger
	objPath string

	coll   *ebpf.Collection
	kprobe link.Link
	reader *perf.Reader
}

// NewPageFaultFallback creates a fallback prober. objPath is the path to
// the compiled page-fault kprobe object (built out-of-band; this engine
// does not compile BPF C itself).
func NewPageFaultFallback(objPath string, log *slog.Logger) *PageFaultFallback {
	return &PageFaultFallback{btf: detectBTF(), log: log, objPath: objPath}
}

// Available reports whether native eBPF loading is viable on this
// kernel, mirroring the teacher's Loader.CanLoad.
func (p *PageFaultFallback) Available() bool {
	return p.btf.available && p.btf.coreSupport
}

// Attach loads the object, attaches its kprobe on the page-fault entry
// point, and opens a perf reader over its event map.
func (p *PageFaultFallback) Attach() error {
	if !p.Available() {
		return fmt.Errorf("pagefault fallback: BTF/CO-RE not available (kernel %s)", p.btf.kernelVersion)
	}

	spec, err := ebpf.LoadCollectionSpec(p.objPath)
	if err != nil {
		return fmt.Errorf("pagefault fallback: load spec: %w", err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return fmt.Errorf("pagefault fallback: load collection: %w", err)
	}

	prog := coll.Programs["handle_mm_fault"]
	if prog == nil {
		coll.Close()
		return fmt.Errorf("pagefault fallback: program %q not found in collection", "handle_mm_fault")
	}
	kp, err := link.Kprobe("handle_mm_fault", prog, nil)
	if err != nil {
		coll.Close()
		return fmt.Errorf("pagefault fallback: attach kprobe: %w", err)
	}

	events := coll.Maps["fault_events"]
	if events == nil {
		kp.Close()
		coll.Close()
		return fmt.Errorf("pagefault fallback: map %q not found in collection", "fault_events")
	}
	reader, err := perf.NewReader(events, 4096)
	if err != nil {
		kp.Close()
		coll.Close()
		return fmt.Errorf("pagefault fallback: open perf reader: %w", err)
	}

	p.coll, p.kprobe, p.reader = coll, kp, reader
	return nil
}

// Run reads events until Close is called, invoking onFault for each
// decoded record attributed to observedPid.
func (p *PageFaultFallback) Run(observedPid int, onFault func(pid int, cpu int, addr uint64)) {
	for {
		rec, err := p.reader.Read()
		if err != nil {
			return // reader closed
		}
		if len(rec.RawSample) < pageFaultRecordSize {
			if p.log != nil {
				p.log.Warn("pagefault fallback: truncated record", "len", len(rec.RawSample))
			}
			continue
		}
		pid := binary.LittleEndian.Uint32(rec.RawSample[0:4])
		if int(pid) != observedPid {
			continue
		}
		cpu := binary.LittleEndian.Uint32(rec.RawSample[4:8])
		addr := binary.LittleEndian.Uint64(rec.RawSample[8:16])
		onFault(int(pid), int(cpu), addr)
	}
}

// Close tears down the reader, kprobe link and collection, in that
// order.
func (p *PageFaultFallback) Close() error {
	if p.reader != nil {
		_ = p.reader.Close()
	}
	if p.kprobe != nil {
		_ = p.kprobe.Close()
	}
	if p.coll != nil {
		p.coll.Close()
	}
	return nil
}
