package config

import (
	"strings"
	"testing"
)

func TestParseOperators(t *testing.T) {
	src := `# comment
log.type=stdout
PerformanceMonitors+=mon1
PerformanceMonitors+=mon2
PerformanceMonitors+=mon1
PerformanceMonitors-=mon1
Trace=true
`
	cfg, err := ParseReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}

	if got := cfg.Get("log.type", ""); got != "stdout" {
		t.Errorf("log.type = %q", got)
	}
	if got := cfg.GetList("PerformanceMonitors"); len(got) != 1 || got[0] != "mon2" {
		t.Errorf("PerformanceMonitors = %v, want [mon2]", got)
	}
	if !cfg.GetBool("Trace", false) {
		t.Errorf("Trace should be true")
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	cfg := New()
	cfg.Set("ControlStrategy", "compact")
	cfg.Append("PerformanceMonitors", "mon1")
	cfg.Append("PerformanceMonitors", "mon2")
	cfg.Set("CommChanTimeout", "60")

	rendered := Render(cfg)
	reparsed, err := ParseReader(strings.NewReader(rendered))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}

	if !cfg.Equal(reparsed) {
		t.Errorf("round trip mismatch:\noriginal: %+v\nrendered:\n%s\nreparsed: %+v", cfg.values, rendered, reparsed.values)
	}
}

func TestMalformedLineIsError(t *testing.T) {
	_, err := ParseReader(strings.NewReader("not_an_assignment\n"))
	if err == nil {
		t.Errorf("expected error for malformed line")
	}
}
