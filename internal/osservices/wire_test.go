package osservices

import "testing"

func TestMsgEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Msg{
		{EventID: 0, Arg: 0, Val: 0},
		{EventID: 7, Arg: 1234567890, Val: 3.14159},
		{EventID: ^uint64(0), Arg: ^uint64(0), Val: -1.5},
	}
	for _, m := range cases {
		buf := m.Encode()
		if len(buf) != wireRecordSize {
			t.Fatalf("Encode length = %d, want %d", len(buf), wireRecordSize)
		}
		got, err := DecodeMsg(buf)
		if err != nil {
			t.Fatalf("DecodeMsg: %v", err)
		}
		if got != m {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, m)
		}
	}
}

func TestDecodeMsgRejectsWrongSize(t *testing.T) {
	if _, err := DecodeMsg([]byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for short buffer")
	}
}

// TestEncodeAppReadyExactBytes pins the wire layout for {APP_READY, 0,
// 0.0}: event id 0x0001 little-endian, zero arg, zero value.
func TestEncodeAppReadyExactBytes(t *testing.T) {
	m := Msg{EventID: 0x0001, Arg: 0, Val: 0.0}
	want := []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	got := m.Encode()
	if len(got) != len(want) {
		t.Fatalf("Encode length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#02x, want %#02x (full: % x)", i, got[i], want[i], got)
		}
	}
}
