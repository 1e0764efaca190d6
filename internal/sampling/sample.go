package sampling

import "encoding/binary"

// Sample-type bits, per linux/perf_event.h, in kernel field order. Only
// the subset named in spec §4.6 is decoded (IP, TID, TIME, ADDR, CPU,
// PERIOD, WEIGHT, DATA_SRC); ID and STREAM_ID are skipped over in kernel
// order when set. Other sample-type bits (READ, CALLCHAIN, RAW,
// BRANCH_STACK, REGS_USER, STACK_USER, ...) are not decoded.
const (
	sampleIP        uint64 = 1 << 0
	samplePIDTID    uint64 = 1 << 1
	sampleTime      uint64 = 1 << 2
	sampleAddr      uint64 = 1 << 3
	sampleID        uint64 = 1 << 6
	sampleStreamID  uint64 = 1 << 9
	sampleCPU       uint64 = 1 << 7
	samplePeriod    uint64 = 1 << 8
	sampleWeight    uint64 = 1 << 14
	sampleDataSrc   uint64 = 1 << 15
)

// SampleTypeMask is the sample_type configured on every SamplingEngine
// PEBS group, per spec §4.6.
const SampleTypeMask = sampleIP | samplePIDTID | sampleTime | sampleAddr | sampleCPU | samplePeriod | sampleWeight | sampleDataSrc

// Sample is one decoded PEBS load-latency record, per spec §3.
type Sample struct {
	IP      uint64
	Pid     uint32
	Tid     uint32
	Time    uint64
	Addr    uint64
	CPU     uint32
	Period  uint64
	Weight  uint64
	DataSrc uint64
}

// decodeSample walks payload field-by-field in the bit order the kernel
// uses to lay out a PERF_RECORD_SAMPLE, per the configured mask. If the
// payload is exhausted before every requested field is read, it reports
// ok=false so the caller can drop the record with a warning, per spec
// §4.6.
func decodeSample(payload []byte, mask uint64) (s Sample, ok bool) {
	off := 0
	need := func(n int) bool {
		if off+n > len(payload) {
			return false
		}
		return true
	}
	u64 := func() uint64 {
		v := binary.LittleEndian.Uint64(payload[off:])
		off += 8
		return v
	}
	u32pair := func() (uint32, uint32) {
		a := binary.LittleEndian.Uint32(payload[off:])
		b := binary.LittleEndian.Uint32(payload[off+4:])
		off += 8
		return a, b
	}

	if mask&sampleIP != 0 {
		if !need(8) {
			return s, false
		}
		s.IP = u64()
	}
	if mask&samplePIDTID != 0 {
		if !need(8) {
			return s, false
		}
		s.Pid, s.Tid = u32pair()
	}
	if mask&sampleTime != 0 {
		if !need(8) {
			return s, false
		}
		s.Time = u64()
	}
	if mask&sampleAddr != 0 {
		if !need(8) {
			return s, false
		}
		s.Addr = u64()
	}
	if mask&sampleID != 0 {
		if !need(8) {
			return s, false
		}
		u64()
	}
	if mask&sampleStreamID != 0 {
		if !need(8) {
			return s, false
		}
		u64()
	}
	if mask&sampleCPU != 0 {
		if !need(8) {
			return s, false
		}
		cpu, _ := u32pair()
		s.CPU = cpu
	}
	if mask&samplePeriod != 0 {
		if !need(8) {
			return s, false
		}
		s.Period = u64()
	}
	if mask&sampleWeight != 0 {
		if !need(8) {
			return s, false
		}
		s.Weight = u64()
	}
	if mask&sampleDataSrc != 0 {
		if !need(8) {
			return s, false
		}
		s.DataSrc = u64()
	}
	return s, true
}

// Access classes derived from data_src, per spec §4.6.
type AccessClass int

const (
	FilteredLocal AccessClass = iota
	Remote
	UncountedOther
)

// data_src memory-level bits, per linux/perf_event.h's PERF_MEM_LVL_*
// encoding (shifted into data_src bits 5..18) and the remote bit at 37.
const (
	memLvlShift    = 5
	memLvlHit      = 1 << 1
	memLvlMiss     = 1 << 2
	memLvlL1       = 1 << 3
	memLvlLFB      = 1 << 4
	memLvlL2       = 1 << 5
	memLvlL3       = 1 << 6
	memLvlLocalRAM = 1 << 7
	memLvlRemRAM1  = 1 << 8
	memLvlRemRAM2  = 1 << 9
	memLvlRemCCE1  = 1 << 10
	memLvlRemCCE2  = 1 << 11

	memRemoteShift = 37
	memRemoteBit   = 1 << 0
)

// Classify derives an AccessClass from data_src per spec §4.6: L1/L2/LFB
// hits and L3 hits are filtered_local; an L3 miss, or any bit in the
// remote-RAM/remote-cache band, is remote; anything else is
// uncounted_other.
func Classify(dataSrc uint64) AccessClass {
	lvl := (dataSrc >> memLvlShift) & 0x3fff

	if lvl&(memLvlL1|memLvlLFB|memLvlL2) != 0 {
		return FilteredLocal
	}
	if lvl&memLvlL3 != 0 {
		if lvl&memLvlMiss != 0 {
			return Remote
		}
		return FilteredLocal
	}
	if (dataSrc>>memRemoteShift)&memRemoteBit != 0 {
		return Remote
	}
	if lvl&(memLvlRemRAM1|memLvlRemRAM2|memLvlRemCCE1|memLvlRemCCE2) != 0 {
		return Remote
	}
	return UncountedOther
}
