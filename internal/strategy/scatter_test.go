package strategy

import "testing"

// TestScatterScenarioS2 reproduces spec §8 scenario S2: 2 nodes x 4
// cores, three tids created in succession. Expected: first -> core 0
// (node 0 count 1), second -> core 4 (node 1 count 1), third -> core 1
// (node 0 count 2, tie broken by ascending node index).
func TestScatterScenarioS2(t *testing.T) {
	topo := twoNodeFourCoreTopology(t)
	s := NewScatter(topo, 100, nil)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	s.OnTaskCreated(100, 1)
	s.OnTaskCreated(100, 2)
	s.OnTaskCreated(100, 3)

	p := s.CurrentPinning()
	if got := p.CoreOf(1); got != 0 {
		t.Errorf("first tid core = %d, want 0", got)
	}
	if got := p.CoreOf(2); got != 4 {
		t.Errorf("second tid core = %d, want 4", got)
	}
	if got := p.CoreOf(3); got != 1 {
		t.Errorf("third tid core = %d, want 1", got)
	}
}

func TestScatterDecrementsNodeCountOnTerminate(t *testing.T) {
	topo := twoNodeFourCoreTopology(t)
	s := NewScatter(topo, 100, nil)
	s.OnTaskCreated(100, 1)
	s.OnTaskTerminated(1)
	if s.nodeCounts[0] != 0 {
		t.Errorf("nodeCounts[0] = %d, want 0 after terminate", s.nodeCounts[0])
	}
	s.OnTaskCreated(100, 2)
	p := s.CurrentPinning()
	if got := p.CoreOf(2); got != 0 {
		t.Errorf("tid reused core = %d, want 0 (node freed)", got)
	}
}
