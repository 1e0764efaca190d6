package monitor

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// clustSafeSignature is the fixed 7-byte protocol signature prefixing
// every ClustSafe request and response, per spec §6.
var clustSafeSignature = [7]byte{'C', 'S', 'A', 'F', 'E', '0', '1'}

const (
	clustSafeCmdReadAndReset uint16 = 0x010F
)

// clustSafeMu is the single process-wide mutex serialising access to
// the physical energy meter, per spec §5's shared-resource policy.
var clustSafeMu sync.Mutex

type clustSafeCache struct {
	at       time.Time
	counters []uint32
}

var cachesByAddr = make(map[string]*clustSafeCache)

// buildClustSafeRequest encodes command/data per spec §6: signature,
// zero byte, 16-byte zero-padded password, big-endian command, length,
// data, checksum byte = sum(command, length, data) mod 256.
func buildClustSafeRequest(password string, command uint16, data []byte) []byte {
	buf := make([]byte, 0, 7+1+16+2+2+len(data)+1)
	buf = append(buf, clustSafeSignature[:]...)
	buf = append(buf, 0)
	pw := make([]byte, 16)
	copy(pw, password)
	buf = append(buf, pw...)

	var cmdLen [4]byte
	binary.BigEndian.PutUint16(cmdLen[0:2], command)
	binary.BigEndian.PutUint16(cmdLen[2:4], uint16(len(data)))
	buf = append(buf, cmdLen[:]...)
	buf = append(buf, data...)

	sum := 0
	for _, b := range cmdLen {
		sum += int(b)
	}
	for _, b := range data {
		sum += int(b)
	}
	buf = append(buf, byte(sum%256))
	return buf
}

// parseClustSafeResponse validates the fixed response header and
// returns the payload, per spec §6.
func parseClustSafeResponse(buf []byte) (payload []byte, err error) {
	const headerLen = 7 + 1 + 1 + 15 + 2 + 2
	if len(buf) < headerLen+1 {
		return nil, fmt.Errorf("clustsafe: short response (%d bytes)", len(buf))
	}
	for i := 0; i < 7; i++ {
		if buf[i] != clustSafeSignature[i] {
			return nil, fmt.Errorf("clustsafe: bad signature")
		}
	}
	length := binary.BigEndian.Uint16(buf[headerLen-2 : headerLen])
	if int(headerLen)+int(length)+1 > len(buf) {
		return nil, fmt.Errorf("clustsafe: length field exceeds datagram")
	}
	return buf[headerLen : headerLen+int(length)], nil
}

// decodeOutletCounters parses a big-endian array of u32 energy counters.
func decodeOutletCounters(payload []byte) []uint32 {
	n := len(payload) / 4
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint32(payload[i*4:])
	}
	return out
}

func queryClustSafe(addr, password string, ttl time.Duration) ([]uint32, error) {
	clustSafeMu.Lock()
	defer clustSafeMu.Unlock()

	if c, ok := cachesByAddr[addr]; ok && time.Since(c.at) < ttl {
		return c.counters, nil
	}

	conn, err := net.DialTimeout("udp", addr, 2*time.Second)
	if err != nil {
		return nil, errs.New(errs.Monitor, "reset", err)
	}
	defer conn.Close()

	req := buildClustSafeRequest(password, clustSafeCmdReadAndReset, []byte{0x01})
	if _, err := conn.Write(req); err != nil {
		return nil, errs.New(errs.Monitor, "reset", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, errs.New(errs.Monitor, "reset", err)
	}
	payload, err := parseClustSafeResponse(buf[:n])
	if err != nil {
		return nil, errs.New(errs.Monitor, "reset", err)
	}
	counters := decodeOutletCounters(payload)
	cachesByAddr[addr] = &clustSafeCache{at: time.Now(), counters: counters}
	return counters, nil
}

// EnergyMeter is a process-wide hardware energy counter read via the
// ClustSafe UDP protocol. Multiple logical EnergyMeter instances
// observing the same physical device each track their own per-tid
// baseline, so a shared cache does not leak state between them.
type EnergyMeter struct {
	base
	addr     string
	password string
	outlet   int
	ttl      time.Duration

	baseline map[int]uint64
}

// NewEnergyMeter creates an EnergyMeter reading outlet from the device
// at addr, caching reads for ttl.
func NewEnergyMeter(name, addr, password string, outlet int, ttl time.Duration, dir pinning.Direction) *EnergyMeter {
	return &EnergyMeter{
		base:     newBase(name, "joules", dir),
		addr:     addr,
		password: password,
		outlet:   outlet,
		ttl:      ttl,
		baseline: make(map[int]uint64),
	}
}

func (e *EnergyMeter) Init() error { return nil }

func (e *EnergyMeter) Start(tid int) error {
	counters, err := queryClustSafe(e.addr, e.password, e.ttl)
	if err != nil {
		return err
	}
	if e.outlet >= len(counters) {
		return errs.New(errs.Monitor, "start", fmt.Errorf("outlet %d out of range (%d outlets)", e.outlet, len(counters)))
	}
	e.baseline[tid] = uint64(counters[e.outlet])
	e.markStarted(tid)
	return nil
}

func (e *EnergyMeter) Value(tid int) (float64, error) {
	counters, err := queryClustSafe(e.addr, e.password, e.ttl)
	if err != nil {
		return 0, err
	}
	base, ok := e.baseline[tid]
	if !ok {
		return 0, errs.New(errs.Monitor, "value", fmt.Errorf("tid %d not started", tid))
	}
	cur := uint64(counters[e.outlet])
	if cur < base {
		return 0, nil // counter reset underneath us, per spec's command "reset"
	}
	return float64(cur - base), nil
}

func (e *EnergyMeter) Stop(tid int) (float64, error) {
	v, err := e.Value(tid)
	e.Clear(tid)
	return v, err
}

func (e *EnergyMeter) Clear(tid int) {
	delete(e.baseline, tid)
	e.markStopped(tid)
}
