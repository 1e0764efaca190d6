package sampling

import "testing"

func coreToNodeFixture(cpu int) int {
	if cpu < 4 {
		return 0
	}
	return 1
}

func TestAddMemAccessHomeChanges(t *testing.T) {
	s := NewPageAccessStats(4096, 2, coreToNodeFixture)
	addr := uint64(0x1000)

	s.AddMemAccess(addr, 0) // node 0
	s.AddMemAccess(addr, 1) // node 0 again, no flip
	s.AddMemAccess(addr, 4) // node 1, flip
	s.AddMemAccess(addr, 5) // node 1 again, no flip
	s.AddMemAccess(addr, 0) // node 0, flip

	page := s.PageOf(addr)
	p, ok := s.Get(page)
	if !ok {
		t.Fatal("expected page to be tracked")
	}
	var total uint64
	for _, c := range p.PerNode {
		total += c
	}
	if total != 5 {
		t.Errorf("total accesses = %d, want 5", total)
	}
	if p.HomeChanges != 2 {
		t.Errorf("HomeChanges = %d, want 2", p.HomeChanges)
	}
}

func TestFrequencyHistogram(t *testing.T) {
	s := NewPageAccessStats(4096, 1, func(int) int { return 0 })
	s.AddMemAccess(0x1000, 0)
	s.AddMemAccess(0x1000, 0)
	s.AddMemAccess(0x2000, 0)

	hist := BuildFrequencyHistogram(s)
	if hist[2] != 1 || hist[1] != 1 {
		t.Errorf("FrequencyHistogram = %v, want {1:1, 2:1}", hist)
	}
}

func TestAddPageToMoveIdempotent(t *testing.T) {
	e := NewEngine(Config{NodeCount: 2, CoreToNode: coreToNodeFixture}, nil)
	e.AddPageToMove(0x1000)
	e.AddPageToMove(0x1000)
	e.AddPageToMove(0x2000)

	cands := e.MigrationCandidates()
	if len(cands) != 2 {
		t.Errorf("MigrationCandidates = %v, want 2 distinct entries", cands)
	}
}
