package strategy

import (
	"testing"

	"github.com/caps-tum/autopin-plus-sub000/internal/monitor"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

func TestNoopStartsAndStopsMonitorsNeverPins(t *testing.T) {
	topo := &topology.Topology{}
	mon := monitor.NewRandom("m1", 0, 1, 1, pinning.Max)
	n := NewNoop(topo, []monitor.Monitor{mon})

	if err := n.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	n.OnTaskCreated(100, 101)
	if tasks := mon.MonitoredTasks(); len(tasks) != 1 || tasks[0] != 101 {
		t.Fatalf("MonitoredTasks() = %v, want [101]", tasks)
	}

	n.OnPhaseChanged(3)
	n.OnUserMessage(0, 0) // no-op, must not panic

	n.OnTaskTerminated(101)
	if tasks := mon.MonitoredTasks(); len(tasks) != 0 {
		t.Fatalf("MonitoredTasks() after terminate = %v, want empty", tasks)
	}

	cur := n.CurrentPinning()
	for _, slot := range cur.Slots {
		if slot.Filled {
			t.Error("Noop must never occupy a pinning slot")
		}
	}
}
