package monitor

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// perf_event_open has no golang.org/x/sys/unix wrapper (unlike
// move_pages, it is not even reachable via the generic unix.Syscall
// helpers without a hand-described attr struct), so the attribute
// layout below follows linux/perf_event.h field-for-field, the same
// approach the ceems perf collector takes one layer up through the
// mahendrapaipuri/perf-utils library (other_examples,
// pkg-collector-perf.go). We talk to the kernel directly since no
// example in the corpus vendors a pure-Go perf_event_open binding.
type eventAttr struct {
	Type           uint32
	Size           uint32
	Config         uint64
	SamplePeriod   uint64 // union with SampleFreq when Freq bit is set
	SampleType     uint64
	ReadFormat     uint64
	Bits           uint64
	WakeupEvents   uint32 // union with WakeupWatermark
	BPType         uint32
	Config1        uint64
	Config2        uint64
	BranchSampleType uint64
	SampleRegsUser   uint64
	SampleStackUser  uint32
	ClockID          int32
	SampleRegsIntr   uint64
	AuxWatermark     uint32
	SampleMaxStack   uint16
	Reserved2        uint16
}

const (
	attrBitDisabled     = 1 << 0
	attrBitInherit      = 1 << 1
	attrBitPinned       = 1 << 2
	attrBitExcludeUser  = 1 << 4
	attrBitExcludeKernel = 1 << 5
	attrBitExcludeHV    = 1 << 6
	attrBitFreq         = 1 << 10
	attrBitEnableOnExec = 1 << 12
	attrBitPreciseIPBit0 = 1 << 15
	attrBitPreciseIPBit1 = 1 << 16
	attrBitSampleIDAll   = 1 << 18
)

// Perf event types, per linux/perf_event.h.
const (
	PerfTypeHardware uint32 = 0
	PerfTypeSoftware uint32 = 1
	PerfTypeRaw      uint32 = 4
)

// Generalised hardware/cache/software event ids used by the symbolic
// sensor names in spec §4.5.
const (
	PerfCountHwCPUCycles      uint64 = 0
	PerfCountHwInstructions   uint64 = 1
	PerfCountHwCacheMisses    uint64 = 3
	PerfCountSwCPUClock       uint64 = 0
	PerfCountSwTaskClock      uint64 = 1
	PerfCountSwContextSwitches uint64 = 3
)

const (
	ioctlPerfEventReset  = 0x2403
	ioctlPerfEventEnable = 0x2400
)

func perfEventOpen(attr *eventAttr, pid, cpu, groupFD int, flags uintptr) (int, error) {
	attr.Size = uint32(unsafe.Sizeof(*attr))
	r1, _, errno := unix.Syscall6(
		unix.SYS_PERF_EVENT_OPEN,
		uintptr(unsafe.Pointer(attr)),
		uintptr(pid),
		uintptr(cpu),
		uintptr(groupFD),
		flags,
		0,
	)
	if errno != 0 {
		return -1, fmt.Errorf("perf_event_open: %w", errno)
	}
	return int(r1), nil
}

func perfIoctl(fd int, req uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, 0)
	if errno != 0 {
		return fmt.Errorf("perf ioctl: %w", errno)
	}
	return nil
}

// readCounter reads the plain 8-byte counter value from an open perf fd.
func readCounter(f *os.File) (uint64, error) {
	var buf [8]byte
	n, err := f.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n != 8 {
		return 0, fmt.Errorf("short perf counter read: %d bytes", n)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
