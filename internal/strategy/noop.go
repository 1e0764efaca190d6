package strategy

import (
	"github.com/caps-tum/autopin-plus-sub000/internal/monitor"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// Noop starts and stops the configured monitors on task lifecycle events
// but never changes any task's affinity, per spec §4.8's baseline
// ControlStrategy variant.
type Noop struct {
	base
	monitors []monitor.Monitor
}

// NewNoop creates a Noop strategy driving monitors for every task.
func NewNoop(topo *topology.Topology, monitors []monitor.Monitor) *Noop {
	return &Noop{base: newBase(topo, pinning.Unknown), monitors: monitors}
}

func (n *Noop) Init() error { return nil }

func (n *Noop) OnTaskCreated(pid, tid int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.monitors {
		_ = m.Start(tid)
	}
}

func (n *Noop) OnTaskTerminated(tid int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.monitors {
		_, _ = m.Stop(tid)
	}
}

func (n *Noop) OnPhaseChanged(phase int) {
	n.mu.Lock()
	n.phase = phase
	n.mu.Unlock()
}

func (n *Noop) OnUserMessage(arg uint64, val float64) {}
