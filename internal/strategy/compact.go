package strategy

import (
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// Compact pins every new tid to the free core minimising NUMA distance
// to any core already occupied by the observed pid, ties broken by
// lowest core index, per spec §4.8 / scenario S1.
type Compact struct {
	base
	pid int
	log func(tid int, err error)
}

// NewCompact creates a Compact strategy for pid over topo.
func NewCompact(topo *topology.Topology, pid int, warn func(tid int, err error)) *Compact {
	return &Compact{base: newBase(topo, pinning.Unknown), pid: pid, log: warn}
}

func (c *Compact) Init() error { return nil }

func (c *Compact) OnTaskCreated(pid, tid int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	occupied := c.occupiedCores()
	free := c.current.FreeCores()
	if len(free) == 0 {
		return
	}

	best := free[0]
	bestDist := c.minDistance(best, occupied)
	for _, core := range free[1:] {
		d := c.minDistance(core, occupied)
		if d < bestDist {
			best, bestDist = core, d
		}
	}
	c.current.Assign(best, pid, tid)
	applyPinning(c.current, c.log)
	c.record(0)
}

func (c *Compact) minDistance(core int, occupied []int) int {
	if len(occupied) == 0 {
		return 0
	}
	node := c.topo.NodeOfCore(core)
	min := -1
	for _, o := range occupied {
		d := c.topo.Distance(node, c.topo.NodeOfCore(o))
		if d < 0 {
			continue
		}
		if min == -1 || d < min {
			min = d
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

func (c *Compact) occupiedCores() []int {
	var out []int
	for core, slot := range c.current.Slots {
		if slot.Filled {
			out = append(out, core)
		}
	}
	return out
}

func (c *Compact) OnTaskTerminated(tid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Clear(tid)
}

func (c *Compact) OnPhaseChanged(phase int) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
}

func (c *Compact) OnUserMessage(arg uint64, val float64) {}
