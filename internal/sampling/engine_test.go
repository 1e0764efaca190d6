package sampling

import "testing"

// TestOpenNoFallbackConfiguredSucceedsEmpty covers a host where no PEBS
// group is opened and no page-fault fallback object is set:
// with zero cores configured, Open has nothing to try and, without a
// PageFaultFallbackObj, must succeed with an empty core set rather than
// attempting the fallback.
func TestOpenNoFallbackConfiguredSucceedsEmpty(t *testing.T) {
	e := NewEngine(Config{NodeCount: 1, CoreToNode: func(int) int { return 0 }}, nil)
	if err := e.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if e.usingFallback {
		t.Error("usingFallback = true, want false with no fallback object configured")
	}
}

// TestOpenFallbackUnavailableErrors exercises the path where every core
// fails to open PEBS and a fallback object is configured but the host
// kernel lacks BTF/CO-RE support (true on any non-BPF test host): Open
// must report an error rather than silently proceeding with no sampler
// at all.
func TestOpenFallbackUnavailableErrors(t *testing.T) {
	e := NewEngine(Config{
		NodeCount:            1,
		CoreToNode:           func(int) int { return 0 },
		PageFaultFallbackObj: "/nonexistent/pagefault.o",
	}, nil)
	if err := e.Open(); err == nil {
		t.Fatal("Open() = nil error, want error when fallback is unavailable")
	}
}

func TestHandleFaultRecordsAccessAndCandidate(t *testing.T) {
	e := NewEngine(Config{ObservedPid: 42, NodeCount: 1, CoreToNode: func(int) int { return 0 }}, nil)
	e.handleFault(42, 0, 0x4000)

	if got := e.SampleCount(0); got != 0 {
		t.Errorf("handleFault must not touch PEBS-only sampleCountByTid: got %d", got)
	}
	page := e.stats.PageOf(0x4000)
	if _, ok := e.stats.Get(page); !ok {
		t.Error("handleFault did not record a page access")
	}
	if cands := e.MigrationCandidates(); len(cands) != 1 || cands[0] != page {
		t.Errorf("MigrationCandidates = %v, want [%d]", cands, page)
	}
}

func TestHandleFaultIgnoresOtherPids(t *testing.T) {
	e := NewEngine(Config{ObservedPid: 42, NodeCount: 1, CoreToNode: func(int) int { return 0 }}, nil)
	e.handleFault(999, 0, 0x4000)

	if len(e.MigrationCandidates()) != 0 {
		t.Error("handleFault recorded a candidate for an unrelated pid")
	}
}
