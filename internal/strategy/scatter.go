package strategy

import (
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// Scatter pins every new tid to a free core on the NUMA node currently
// holding the fewest tids of the observed pid (ascending-load order,
// ties broken by lowest node index, then lowest core index), per spec
// §4.8 / scenario S2.
type Scatter struct {
	base
	pid        int
	log        func(tid int, err error)
	nodeCounts map[int]int
}

// NewScatter creates a Scatter strategy for pid over topo.
func NewScatter(topo *topology.Topology, pid int, warn func(tid int, err error)) *Scatter {
	return &Scatter{base: newBase(topo, pinning.Unknown), pid: pid, log: warn, nodeCounts: make(map[int]int)}
}

func (s *Scatter) Init() error { return nil }

func (s *Scatter) OnTaskCreated(pid, tid int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.topo.Nodes()
	bestNode := -1
	bestCount := 0
	for _, n := range nodes {
		if len(s.freeCoresOnNode(n)) == 0 {
			continue
		}
		c := s.nodeCounts[n]
		if bestNode == -1 || c < bestCount {
			bestNode, bestCount = n, c
		}
	}
	if bestNode == -1 {
		return
	}

	free := s.freeCoresOnNode(bestNode)
	core := free[0]
	for _, c := range free[1:] {
		if c < core {
			core = c
		}
	}

	s.current.Assign(core, pid, tid)
	s.nodeCounts[bestNode]++
	applyPinning(s.current, s.log)
	s.record(0)
}

func (s *Scatter) freeCoresOnNode(node int) []int {
	var out []int
	for _, core := range s.topo.CoresOfNode(node) {
		if !s.current.Slots[core].Filled {
			out = append(out, core)
		}
	}
	return out
}

func (s *Scatter) OnTaskTerminated(tid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	core := s.current.CoreOf(tid)
	if core >= 0 {
		node := s.topo.NodeOfCore(core)
		if s.nodeCounts[node] > 0 {
			s.nodeCounts[node]--
		}
	}
	s.current.Clear(tid)
}

func (s *Scatter) OnPhaseChanged(phase int) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *Scatter) OnUserMessage(arg uint64, val float64) {}
