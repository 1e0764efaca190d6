package monitor

import "testing"

func TestParseSensorSymbolic(t *testing.T) {
	s, err := ParseSensor("cpu-cycles")
	if err != nil {
		t.Fatalf("ParseSensor: %v", err)
	}
	if s.Type != PerfTypeHardware || s.Config != PerfCountHwCPUCycles {
		t.Errorf("ParseSensor(cpu-cycles) = %+v", s)
	}
}

func TestParseSensorRawTuple(t *testing.T) {
	s, err := ParseSensor("4:0x1234:5:6")
	if err != nil {
		t.Fatalf("ParseSensor: %v", err)
	}
	if s.Type != PerfTypeRaw || s.Config != 0x1234 || s.Config1 != 5 || s.Config2 != 6 {
		t.Errorf("ParseSensor(raw tuple) = %+v", s)
	}
}

func TestParseSensorMalformed(t *testing.T) {
	if _, err := ParseSensor("nonsense"); err == nil {
		t.Errorf("expected error for malformed sensor descriptor")
	}
}
