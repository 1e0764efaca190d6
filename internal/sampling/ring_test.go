package sampling

import (
	"encoding/binary"
	"testing"
)

func buildRecord(recordType uint32, payload []byte) []byte {
	size := 8 + len(payload)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], recordType)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(size))
	copy(buf[8:], payload)
	return buf
}

func TestRingConsumeWraparound(t *testing.T) {
	pageSize := 4096 // header page holds data_head/data_tail at 1024/1032
	dataSize := 32 // small, power-of-two capacity to force wraparound
	mem := make([]byte, pageSize+dataSize)
	r := newRing(mem, pageSize)

	rec1 := buildRecord(perfRecordSample, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	rec2 := buildRecord(perfRecordSample, []byte{9, 9, 9, 9, 9, 9, 9, 9})

	// Write rec1 starting near the end of the data region so rec2 wraps.
	start := uint64(12)
	head := start
	writeAt := func(pos uint64, b []byte) {
		for i, v := range b {
			off := (pos + uint64(i)) % uint64(dataSize)
			mem[pageSize+int(off)] = v
		}
	}
	writeAt(head, rec1)
	head += uint64(len(rec1))
	writeAt(head, rec2)
	head += uint64(len(rec2))

	binary.LittleEndian.PutUint64(mem[mmapDataHeadOffset:], head)
	binary.LittleEndian.PutUint64(mem[mmapDataTailOffset:], start)

	var seen [][]byte
	r.consume(func(h perfEventHeader, payload []byte) {
		cp := append([]byte(nil), payload...)
		seen = append(seen, cp)
	})

	if len(seen) != 2 {
		t.Fatalf("consumed %d records, want 2", len(seen))
	}
	if seen[0][0] != 1 || seen[1][0] != 9 {
		t.Errorf("records decoded out of order or corrupted: %v", seen)
	}

	gotTail := binary.LittleEndian.Uint64(mem[mmapDataTailOffset:])
	if gotTail != head {
		t.Errorf("tail = %d, want %d", gotTail, head)
	}
}

func TestDecodeSampleFieldOrder(t *testing.T) {
	payload := make([]byte, 0, 64)
	put64 := func(v uint64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		payload = append(payload, b[:]...)
	}
	put64(0xdeadbeef)               // IP
	put64(uint64(1) | uint64(2)<<32) // pid=1 (low 32), tid=2 (high 32)
	put64(12345)        // time
	put64(0x1000)       // addr
	put64(3)            // cpu (low 32), high32 res
	put64(100)          // period
	put64(42)           // weight
	put64(0x55)         // data_src

	s, ok := decodeSample(payload, SampleTypeMask)
	if !ok {
		t.Fatal("decodeSample reported not ok")
	}
	if s.IP != 0xdeadbeef || s.Addr != 0x1000 || s.Time != 12345 || s.Period != 100 || s.Weight != 42 || s.DataSrc != 0x55 {
		t.Errorf("decoded sample mismatch: %+v", s)
	}
}

func TestDecodeSampleTruncated(t *testing.T) {
	if _, ok := decodeSample([]byte{1, 2, 3}, SampleTypeMask); ok {
		t.Errorf("expected decode failure for truncated payload")
	}
}

func TestClassify(t *testing.T) {
	l1 := uint64(memLvlL1) << memLvlShift
	if Classify(l1) != FilteredLocal {
		t.Errorf("L1 hit should classify as filtered_local")
	}

	l3Miss := uint64(memLvlL3|memLvlMiss) << memLvlShift
	if Classify(l3Miss) != Remote {
		t.Errorf("L3 miss should classify as remote")
	}

	l3Hit := uint64(memLvlL3|memLvlHit) << memLvlShift
	if Classify(l3Hit) != FilteredLocal {
		t.Errorf("L3 hit should classify as filtered_local")
	}

	remoteBit := uint64(1) << memRemoteShift
	if Classify(remoteBit) != Remote {
		t.Errorf("remote bit should classify as remote")
	}

	if Classify(0) != UncountedOther {
		t.Errorf("zero data_src should classify as uncounted_other")
	}
}
