package strategy

import (
	"time"

	historyfile "github.com/caps-tum/autopin-plus-sub000/internal/history"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// History loads a prior Autopin1 run and replays its best phase-0
// pinning onto the real tids discovered for this run, per spec §4.8.
type History struct {
	base
	pid      int
	path     string
	initTime time.Duration
	sleep    func(time.Duration)
	log      func(tid int, err error)

	knownTids []int
}

// NewHistory creates a History strategy that will load path on Init.
func NewHistory(topo *topology.Topology, pid int, path string, initTime time.Duration, sleep func(time.Duration), warn func(tid int, err error)) *History {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &History{base: newBase(topo, pinning.Unknown), pid: pid, path: path, initTime: initTime, sleep: sleep, log: warn}
}

// Init loads the history file but does not yet apply any pinning: the
// thread set this schedule replays onto is only known once tasks start
// arriving through OnTaskCreated, same as the original's deferred
// slot_startPinning timer.
func (h *History) Init() error {
	loaded, _, err := historyfile.Load(h.path, h.topo.CoreCount())
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.hist = loaded
	h.mu.Unlock()
	return nil
}

// OnTaskCreated records thread discovery order; Run maps the loaded
// schedule onto this order once initTime has elapsed.
func (h *History) OnTaskCreated(pid, tid int) {
	h.mu.Lock()
	h.knownTids = append(h.knownTids, tid)
	h.mu.Unlock()
}

func (h *History) OnTaskTerminated(tid int) {
	h.mu.Lock()
	h.current.Clear(tid)
	h.mu.Unlock()
}

func (h *History) OnPhaseChanged(phase int) {
	h.mu.Lock()
	h.phase = phase
	h.mu.Unlock()
}

func (h *History) OnUserMessage(arg uint64, val float64) {}

// Run waits initTime for the target's threads to be discovered, then
// replays the best recorded phase-0 pinning: its i-th occupied core
// (ascending, the only ordering the XML schedule format preserves, see
// internal/history/xml.go's decodePinning) is assigned to the i-th
// actually discovered tid, exactly as the original's
// Main::applyPinning maps its loaded schedule onto real tasks
// (_examples/original_source/src/AutopinPlus/Strategy/History/Main.cpp),
// instead of the placeholder tids the XML decode produces.
func (h *History) Run() {
	h.sleep(h.initTime)

	h.mu.Lock()
	hist := h.hist
	tids := append([]int(nil), h.knownTids...)
	h.mu.Unlock()
	if hist == nil {
		return
	}
	best, ok := hist.Best(0)
	if !ok {
		return
	}

	cores := occupiedCores(best.Pinning)
	p := pinning.New(len(best.Pinning.Slots))
	for i := 0; i < len(cores) && i < len(tids); i++ {
		p.Assign(cores[i], h.pid, tids[i])
	}

	h.mu.Lock()
	h.current = p.Clone()
	h.mu.Unlock()

	applyPinning(p, h.log)
}

// occupiedCores returns the ascending core indices of a Pinning's
// filled slots.
func occupiedCores(p pinning.Pinning) []int {
	var out []int
	for i, s := range p.Slots {
		if s.Filled {
			out = append(out, i)
		}
	}
	return out
}
