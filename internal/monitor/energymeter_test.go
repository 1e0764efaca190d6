package monitor

import (
	"testing"

	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

func TestBuildClustSafeRequestChecksum(t *testing.T) {
	req := buildClustSafeRequest("secret", clustSafeCmdReadAndReset, []byte{0x01})
	if len(req) != 7+1+16+2+2+1+1 {
		t.Fatalf("request length = %d", len(req))
	}
	// checksum is the last byte: sum(command hi, command lo, length hi,
	// length lo, data...) mod 256.
	sum := 0
	for _, b := range req[len(req)-1-5 : len(req)-1] {
		sum += int(b)
	}
	if req[len(req)-1] != byte(sum%256) {
		t.Errorf("checksum mismatch: got %d want %d", req[len(req)-1], sum%256)
	}
}

func TestParseClustSafeResponseRoundTrip(t *testing.T) {
	payload := []byte{0, 0, 0, 42, 0, 0, 1, 0} // two u32 outlets: 42, 256
	resp := make([]byte, 0)
	resp = append(resp, clustSafeSignature[:]...)
	resp = append(resp, 0, 0) // device, status
	resp = append(resp, make([]byte, 15)...)
	resp = append(resp, 0x01, 0x0F) // command echo
	resp = append(resp, 0, byte(len(payload)))
	resp = append(resp, payload...)
	resp = append(resp, 0) // checksum, unchecked by parser

	got, err := parseClustSafeResponse(resp)
	if err != nil {
		t.Fatalf("parseClustSafeResponse: %v", err)
	}
	counters := decodeOutletCounters(got)
	if len(counters) != 2 || counters[0] != 42 || counters[1] != 256 {
		t.Errorf("counters = %v, want [42 256]", counters)
	}
}

func TestRandomMonitorDeterministic(t *testing.T) {
	r1 := NewRandom("r", 1.0, 2.0, 42, pinning.Max)
	r2 := NewRandom("r", 1.0, 2.0, 42, pinning.Max)

	_ = r1.Start(1)
	_ = r2.Start(1)
	v1, _ := r1.Value(1)
	v2, _ := r2.Value(1)
	if v1 != v2 {
		t.Errorf("same seed should produce same value: %v != %v", v1, v2)
	}
	if v1 < 1.0 || v1 > 2.0 {
		t.Errorf("value %v out of [1,2]", v1)
	}
}
