package osservices

import (
	"encoding/binary"
	"fmt"
	"math"
)

// wireRecordSize is the fixed size of a comm-channel message: u64 event
// id, u64 argument, f64 value, all little-endian, per spec §6.
const wireRecordSize = 24

// Msg is one comm-channel message exchanged between an observed process
// and the watchdog over the SOCK_SEQPACKET channel.
type Msg struct {
	EventID uint64
	Arg     uint64
	Val     float64
}

// Encode renders m to the fixed 24-byte wire record.
func (m Msg) Encode() []byte {
	buf := make([]byte, wireRecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.EventID)
	binary.LittleEndian.PutUint64(buf[8:16], m.Arg)
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(m.Val))
	return buf
}

// DecodeMsg parses a wire record. It rejects anything other than exactly
// wireRecordSize bytes, matching the protocol's fixed-record framing.
func DecodeMsg(buf []byte) (Msg, error) {
	if len(buf) != wireRecordSize {
		return Msg{}, fmt.Errorf("osservices: malformed comm record: %d bytes, want %d", len(buf), wireRecordSize)
	}
	return Msg{
		EventID: binary.LittleEndian.Uint64(buf[0:8]),
		Arg:     binary.LittleEndian.Uint64(buf[8:16]),
		Val:     math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}
