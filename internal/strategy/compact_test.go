package strategy

import "testing"

// TestCompactScenarioS1 reproduces spec §8 scenario S1: 2 nodes x 4
// cores, two tids created in succession with no other occupancy.
// Expected: first tid -> core 0, second tid -> core 1 (same-node
// distance-10 tie among cores 1-3, lowest index).
func TestCompactScenarioS1(t *testing.T) {
	topo := twoNodeFourCoreTopology(t)
	c := NewCompact(topo, 100, nil)
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	c.OnTaskCreated(100, 1)
	c.OnTaskCreated(100, 2)

	p := c.CurrentPinning()
	if got := p.CoreOf(1); got != 0 {
		t.Errorf("first tid core = %d, want 0", got)
	}
	if got := p.CoreOf(2); got != 1 {
		t.Errorf("second tid core = %d, want 1", got)
	}
}
