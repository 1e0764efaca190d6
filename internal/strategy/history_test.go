package strategy

import (
	"testing"
	"time"

	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

func TestHistoryRunMapsScheduleOntoRealDiscoveredTids(t *testing.T) {
	topo := &topology.Topology{}

	var warned []int
	warn := func(tid int, err error) { warned = append(warned, tid) }
	noSleep := func(time.Duration) {}

	h := NewHistory(topo, 1000, "", 0, noSleep, warn)

	loaded := pinning.NewHistory(pinning.Max)
	best := pinning.New(4)
	best.Assign(0, 0, 1) // placeholder tids from a decoded XML schedule
	best.Assign(2, 0, 2)
	loaded.Record(0, best, 1.0)
	h.hist = loaded

	h.OnTaskCreated(1000, 501)
	h.OnTaskCreated(1000, 502)
	h.OnTaskCreated(1000, 503)

	h.Run()

	cur := h.CurrentPinning()
	if cur.Slots[0].Tid != 501 || cur.Slots[0].Pid != 1000 {
		t.Errorf("core 0 slot = %+v, want real tid 501", cur.Slots[0])
	}
	if cur.Slots[2].Tid != 502 {
		t.Errorf("core 2 slot = %+v, want real tid 502", cur.Slots[2])
	}
	if cur.Slots[1].Filled || cur.Slots[3].Filled {
		t.Errorf("unexpected filled slot in %+v", cur.Slots)
	}
	// tid 503 was discovered but the schedule only has 2 occupied
	// cores, so it must be left unpinned.
	for _, slot := range cur.Slots {
		if slot.Tid == 503 {
			t.Error("tid 503 should not have been assigned a core")
		}
	}
	_ = warned
}

func TestHistoryRunNoPinningWhenPhaseZeroMissing(t *testing.T) {
	topo := &topology.Topology{}
	h := NewHistory(topo, 1, "", 0, func(time.Duration) {}, nil)
	h.hist = pinning.NewHistory(pinning.Max)
	h.OnTaskCreated(1, 1)
	h.Run() // must not panic despite no recorded phase 0
}
