// Package strategy implements the polymorphic ControlStrategy variants
// of spec §4.8: Autopin1, History, Compact, Scatter and Noop, sharing
// lifecycle hooks and a PinningHistory. Tagged-variant-by-composition
// per spec §9, grounded on the teacher's Collector interface idiom
// (internal/collector/collector.go) the same way internal/monitor is.
package strategy

import (
	"sync"

	"github.com/caps-tum/autopin-plus-sub000/internal/osservices"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// Strategy is the shared ControlStrategy contract.
type Strategy interface {
	Init() error
	OnTaskCreated(pid, tid int)
	OnTaskTerminated(tid int)
	OnPhaseChanged(phase int)
	OnUserMessage(arg uint64, val float64)
	History() *pinning.History
	CurrentPinning() pinning.Pinning
}

// base carries the state every variant shares: topology, the applied
// pinning, its history, and the current phase.
type base struct {
	mu      sync.Mutex
	topo    *topology.Topology
	current pinning.Pinning
	hist    *pinning.History
	phase   int
}

func newBase(topo *topology.Topology, dir pinning.Direction) base {
	return base{
		topo:    topo,
		current: pinning.New(topo.CoreCount()),
		hist:    pinning.NewHistory(dir),
	}
}

func (b *base) History() *pinning.History { return b.hist }

func (b *base) CurrentPinning() pinning.Pinning {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current.Clone()
}

func (b *base) record(value float64) {
	b.hist.Record(b.phase, b.current.Clone(), value)
}

// applyPinning calls SetAffinity for every filled slot, logging but not
// failing on a per-tid affinity error (spec §4.2: set_affinity "may
// fail non-fatally").
func applyPinning(p pinning.Pinning, warn func(tid int, err error)) {
	for core, slot := range p.Slots {
		if !slot.Filled {
			continue
		}
		if err := osservices.SetAffinity(slot.Tid, []int{core}); err != nil && warn != nil {
			warn(slot.Tid, err)
		}
	}
}
