package sampling

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// perf event constants the engine configures its PEBS and profiling
// groups with. PEBS load-latency is a raw-encoded event per Intel SDM
// vol. 3B (MEM_TRANS_RETIRED.LOAD_LATENCY); the exact encoding is
// model-specific, so it is supplied by the caller rather than hardcoded.
const (
	perfTypeRaw        uint32 = 4
	attrBitPreciseIP1  uint64 = 1 << 15
	attrBitDisabled    uint64 = 1 << 0
	attrBitInherit     uint64 = 1 << 1
	mmapPages                 = 16 // data pages per ring, power of two
)

type eventAttr struct {
	Type             uint32
	Size             uint32
	Config           uint64
	SamplePeriod     uint64
	SampleType       uint64
	ReadFormat       uint64
	Bits             uint64
	WakeupEvents     uint32
	BPType           uint32
	Config1          uint64
	Config2          uint64
	BranchSampleType uint64
	SampleRegsUser   uint64
	SampleStackUser  uint32
	ClockID          int32
	SampleRegsIntr   uint64
	AuxWatermark     uint32
	SampleMaxStack   uint16
	Reserved2        uint16
}

func perfEventOpen(attr *eventAttr, pid, cpu, groupFD int, flags uintptr) (int, error) {
	attr.Size = uint32(unsafe.Sizeof(*attr))
	r1, _, errno := unix.Syscall6(unix.SYS_PERF_EVENT_OPEN,
		uintptr(unsafe.Pointer(attr)), uintptr(pid), uintptr(cpu), uintptr(groupFD), flags, 0)
	if errno != 0 {
		return -1, fmt.Errorf("perf_event_open: %w", errno)
	}
	return int(r1), nil
}

// ProfilingCounter is one of the COUNT_NUM grouped raw hardware events
// read once per second alongside the PEBS ring, per spec §4.6.
type ProfilingCounter struct {
	Name   string
	Config uint64
}

// ProfilingSample is one per-core profiling snapshot: elapsed time since
// start plus the delta of each configured counter since the previous
// snapshot.
type ProfilingSample struct {
	SinceStart time.Duration
	Delta      []uint64
}

// Config configures one SamplingEngine instance.
type Config struct {
	ObservedPid          int
	Cores                []int
	PageSize             uint64
	NodeCount            int
	CoreToNode           func(cpu int) int
	PEBSConfig           uint64 // raw load-latency event encoding
	PEBSConfig1          uint64 // latency threshold encoding
	SamplePeriod         uint64
	ProfilingCounters    []ProfilingCounter
	WeightThreshold      uint64 // SAMPLE_WEIGHT_THRESHOLD, expensive-access cutoff
	Log                  *slog.Logger

	// PageFaultFallbackObj is the compiled page-fault kprobe object used
	// as a degraded-mode substitute when PEBS load-latency sampling
	// cannot be opened on this host (non-Intel hardware, restrictive
	// perf_event_paranoid, PEBS-less VM). Empty disables the fallback.
	PageFaultFallbackObj string
}

type coreState struct {
	pebsFD   int
	pebsRing *ring
	pebsFile *os.File

	profFDs  []int
	profFile *os.File
	lastRead []uint64
}

// Engine is the SamplingEngine of spec §4.6.
type Engine struct {
	cfg   Config
	cores map[int]*coreState

	stats  *PageAccessStats
	levels *LevelHistogram

	mu                    sync.Mutex
	perCoreProcessSamples map[int]uint64
	perCoreRemoteSamples  map[int]uint64
	sampleCountByTid      map[int]uint64
	expensiveAccesses     map[uintptr]struct{} // O(n) hash-set membership, per Open Question #2
	candidateSeen         map[uint64]bool
	candidates            []uint64
	profiling             map[int][]ProfilingSample

	disableLL atomic.Bool
	startedAt time.Time
	stop      chan struct{}
	warn      func(err error)

	fallback      *PageFaultFallback
	usingFallback bool
}

// NewEngine creates an Engine bound to cfg. It does not open any perf
// fds until Open is called.
func NewEngine(cfg Config, warn func(err error)) *Engine {
	return &Engine{
		cfg:                   cfg,
		cores:                 make(map[int]*coreState),
		stats:                 NewPageAccessStats(cfg.PageSize, cfg.NodeCount, cfg.CoreToNode),
		levels:                NewLevelHistogram(),
		perCoreProcessSamples: make(map[int]uint64),
		perCoreRemoteSamples:  make(map[int]uint64),
		sampleCountByTid:      make(map[int]uint64),
		expensiveAccesses:     make(map[uintptr]struct{}),
		candidateSeen:         make(map[uint64]bool),
		profiling:             make(map[int][]ProfilingSample),
		stop:                  make(chan struct{}),
		warn:                  warn,
	}
}

// Stats returns the engine's PageAccessStats table.
func (e *Engine) Stats() *PageAccessStats { return e.stats }

// Levels returns the engine's LevelHistogram.
func (e *Engine) Levels() *LevelHistogram { return e.levels }

// SampleCount implements monitor.SampleCounter: the running count of
// PEBS samples attributed to tid.
func (e *Engine) SampleCount(tid int) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleCountByTid[tid]
}

// Open opens the PEBS load-latency and profiling-counter groups for
// every configured core and mmaps their rings. A core whose PEBS group
// fails to open is skipped with a warning rather than aborting the
// whole engine (e.g. a heterogeneous core mix). If every core fails and
// PageFaultFallbackObj is configured, Open falls back to the page-fault
// kprobe prober instead of failing outright, per spec §4.6's
// degraded-mode path.
func (e *Engine) Open() error {
	pageSize := os.Getpagesize()
	for _, cpu := range e.cfg.Cores {
		attr := eventAttr{
			Type:         perfTypeRaw,
			Config:       e.cfg.PEBSConfig,
			Config1:      e.cfg.PEBSConfig1,
			SamplePeriod: e.cfg.SamplePeriod,
			SampleType:   SampleTypeMask,
			Bits:         attrBitDisabled | attrBitInherit | attrBitPreciseIP1,
			WakeupEvents: 1,
		}
		fd, err := perfEventOpen(&attr, -1, cpu, -1, 0)
		if err != nil {
			e.warnf("open PEBS group on cpu %d: %v", cpu, err)
			continue
		}
		mem, err := unix.Mmap(fd, 0, (mmapPages+1)*pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			unix.Close(fd)
			e.warnf("mmap PEBS ring on cpu %d: %v", cpu, err)
			continue
		}
		cs := &coreState{
			pebsFD:   fd,
			pebsRing: newRing(mem, pageSize),
			pebsFile: os.NewFile(uintptr(fd), fmt.Sprintf("pebs-cpu%d", cpu)),
			lastRead: make([]uint64, len(e.cfg.ProfilingCounters)),
		}
		for _, pc := range e.cfg.ProfilingCounters {
			pattr := eventAttr{Type: perfTypeRaw, Config: pc.Config, Bits: attrBitDisabled | attrBitInherit}
			pfd, err := perfEventOpen(&pattr, -1, cpu, -1, 0)
			if err != nil {
				e.warnf("open profiling counter %s on cpu %d: %v", pc.Name, cpu, err)
				continue
			}
			cs.profFDs = append(cs.profFDs, pfd)
		}
		e.cores[cpu] = cs
	}
	e.startedAt = time.Now()

	if len(e.cores) > 0 || e.cfg.PageFaultFallbackObj == "" {
		return nil
	}

	fb := NewPageFaultFallback(e.cfg.PageFaultFallbackObj, e.cfg.Log)
	if !fb.Available() {
		return fmt.Errorf("sampling: no PEBS group could be opened and page-fault fallback unavailable on this kernel")
	}
	if err := fb.Attach(); err != nil {
		return fmt.Errorf("sampling: page-fault fallback: %w", err)
	}
	e.fallback = fb
	e.usingFallback = true
	return nil
}

func (e *Engine) warnf(format string, args ...any) {
	if e.warn != nil {
		e.warn(fmt.Errorf(format, args...))
	}
}

// Run polls every core's ring and performs ~1s profiling aggregation
// until Stop is called. Intended to run on its own goroutine, per spec
// §5's "SamplingEngine reader" thread.
func (e *Engine) Run() {
	if e.usingFallback {
		go e.fallback.Run(e.cfg.ObservedPid, e.handleFault)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	profileTick := time.NewTicker(time.Second)
	defer profileTick.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if e.disableLL.Load() {
				continue
			}
			for cpu, cs := range e.cores {
				cs.pebsRing.consume(func(h perfEventHeader, payload []byte) {
					if h.Type != perfRecordSample {
						return
					}
					s, ok := decodeSample(payload, SampleTypeMask)
					if !ok {
						e.warnf("sampling: truncated sample record on cpu %d", cpu)
						return
					}
					e.handleSample(cpu, s)
				})
			}
		case <-profileTick.C:
			e.collectProfilingSamples()
		}
	}
}

func (e *Engine) handleSample(cpu int, s Sample) {
	if int(s.Pid) != e.cfg.ObservedPid {
		return
	}
	e.mu.Lock()
	e.perCoreProcessSamples[cpu]++
	e.sampleCountByTid[int(s.Tid)]++
	e.mu.Unlock()

	e.stats.AddMemAccess(s.Addr, cpu)
	e.levels.Add(s.DataSrc, s.Weight)

	if Classify(s.DataSrc) == Remote {
		e.mu.Lock()
		e.perCoreRemoteSamples[cpu]++
		e.mu.Unlock()
		e.AddPageToMove(e.stats.PageOf(s.Addr))
	}

	if s.Weight > e.cfg.WeightThreshold {
		e.mu.Lock()
		e.expensiveAccesses[uintptr(s.Addr)] = struct{}{}
		e.mu.Unlock()
	}
}

// handleFault records one page-fault-fallback event at the coarser
// granularity the kprobe path provides: no data-source or weight, so
// every fault is treated as a plain remote-candidate access (spec
// §4.6's degraded-mode contract trades precision for availability).
func (e *Engine) handleFault(pid, cpu int, addr uint64) {
	if pid != e.cfg.ObservedPid {
		return
	}
	e.mu.Lock()
	e.perCoreProcessSamples[cpu]++
	e.mu.Unlock()

	e.stats.AddMemAccess(addr, cpu)
	e.AddPageToMove(e.stats.PageOf(addr))
}

// AddPageToMove appends page to the migration-candidate list if it is
// not already present; two identical calls leave the candidate set
// unchanged in cardinality (spec §8 property 7).
func (e *Engine) AddPageToMove(page uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.candidateSeen[page] {
		return
	}
	e.candidateSeen[page] = true
	e.candidates = append(e.candidates, page)
}

// MigrationCandidates returns the current candidate page list.
func (e *Engine) MigrationCandidates() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]uint64, len(e.candidates))
	copy(out, e.candidates)
	return out
}

// ExpensiveAccessCount returns the number of distinct addresses recorded
// with a weight above the configured threshold.
func (e *Engine) ExpensiveAccessCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.expensiveAccesses)
}

// PauseForMigration sets the disable_ll latch: the MigrationController
// reads PageAccessStats only while this is true, per spec §5.
func (e *Engine) PauseForMigration() { e.disableLL.Store(true) }

// ResumeSampling clears the disable_ll latch and resets per-core
// counters, histograms and the candidate list, per spec §4.7's
// post-migration reset.
func (e *Engine) ResumeSampling() {
	e.mu.Lock()
	e.perCoreRemoteSamples = make(map[int]uint64)
	e.perCoreProcessSamples = make(map[int]uint64)
	e.candidates = nil
	e.candidateSeen = make(map[uint64]bool)
	e.mu.Unlock()
	e.levels.Reset()
	e.disableLL.Store(false)
}

func (e *Engine) collectProfilingSamples() {
	for cpu, cs := range e.cores {
		delta := make([]uint64, len(cs.profFDs))
		for i, fd := range cs.profFDs {
			var buf [8]byte
			if _, err := unix.Read(fd, buf[:]); err != nil {
				continue
			}
			cur := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
				uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
			if i < len(cs.lastRead) && cur >= cs.lastRead[i] {
				delta[i] = cur - cs.lastRead[i]
			}
			if i < len(cs.lastRead) {
				cs.lastRead[i] = cur
			}
		}
		e.mu.Lock()
		e.profiling[cpu] = append(e.profiling[cpu], ProfilingSample{SinceStart: time.Since(e.startedAt), Delta: delta})
		e.mu.Unlock()
	}
}

// ProfilingSamples returns the accumulated per-core profiling history.
func (e *Engine) ProfilingSamples(cpu int) []ProfilingSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ProfilingSample, len(e.profiling[cpu]))
	copy(out, e.profiling[cpu])
	return out
}

// RemoteSampleCount returns the number of remote-classified samples
// recorded on cpu since the last ResumeSampling.
func (e *Engine) RemoteSampleCount(cpu int) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perCoreRemoteSamples[cpu]
}

// Stop halts Run and closes every opened fd/mmap.
func (e *Engine) Stop() {
	close(e.stop)
	if e.fallback != nil {
		_ = e.fallback.Close()
	}
	for _, cs := range e.cores {
		_ = unix.Munmap(cs.pebsRing.mem)
		if cs.pebsFile != nil {
			_ = cs.pebsFile.Close()
		}
		for _, fd := range cs.profFDs {
			_ = unix.Close(fd)
		}
	}
}
