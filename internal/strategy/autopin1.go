package strategy

import (
	"sync/atomic"
	"time"

	"github.com/caps-tum/autopin-plus-sub000/internal/monitor"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// autopin1State is one of the four states of spec §4.8's Autopin1 state
// machine.
type autopin1State int

const (
	stateInit autopin1State = iota
	stateWarmup
	stateMeasure
	stateDone
)

// Autopin1Config configures one Autopin1 run.
type Autopin1Config struct {
	// Schedule lists candidate pinnings; each entry maps slot index to
	// core id, in the order threads are discovered.
	Schedule [][]int
	// Skip names thread-slot ordinals (0-based discovery order) never
	// to be pinned, e.g. a helper/monitor thread.
	Skip map[int]bool
	// OpenMPICC additionally skips thread-slot ordinal 1, the second
	// OpenMP/libgomp helper thread.
	OpenMPICC   bool
	WarmupTime  time.Duration
	MeasureTime time.Duration
	Monitor     monitor.Monitor
}

// Autopin1 is the enumerate-and-measure ControlStrategy of spec §4.8.
type Autopin1 struct {
	base
	pid   int
	cfg   Autopin1Config
	sleep func(time.Duration)

	knownTids []int
	pinnedAt  map[int]int // tid -> slot ordinal at discovery time

	state         autopin1State
	resetRequested atomic.Bool
}

// NewAutopin1 creates an Autopin1 strategy. sleep defaults to time.Sleep
// when nil; tests inject a no-op to run the state machine instantly.
func NewAutopin1(topo *topology.Topology, pid int, cfg Autopin1Config, sleep func(time.Duration)) *Autopin1 {
	if sleep == nil {
		sleep = time.Sleep
	}
	if cfg.Skip == nil {
		cfg.Skip = map[int]bool{}
	}
	return &Autopin1{
		base:     newBase(topo, cfg.Monitor.Direction()),
		pid:      pid,
		cfg:      cfg,
		sleep:    sleep,
		pinnedAt: make(map[int]int),
	}
}

func (a *Autopin1) Init() error {
	a.mu.Lock()
	a.state = stateInit
	a.mu.Unlock()
	return nil
}

// OnTaskCreated records thread discovery order; during Measure it pins
// the new tid to any still-free slot of the current candidate, honouring
// the skip rules, or leaves it unpinned if no slot or rule applies.
func (a *Autopin1) OnTaskCreated(pid, tid int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot := len(a.knownTids)
	a.knownTids = append(a.knownTids, tid)
	a.pinnedAt[tid] = slot

	if a.state != stateMeasure || a.skipSlot(slot) {
		return
	}
	free := a.current.FreeCores()
	if len(free) == 0 {
		return
	}
	a.current.Assign(free[0], pid, tid)
	applyPinning(a.current, nil)
}

func (a *Autopin1) OnTaskTerminated(tid int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current.Clear(tid)
	delete(a.pinnedAt, tid)
}

// OnPhaseChanged resets the state machine to Init on the currently running
// candidate, per spec §4.8.
func (a *Autopin1) OnPhaseChanged(phase int) {
	a.mu.Lock()
	a.phase = phase
	a.mu.Unlock()
	a.resetRequested.Store(true)
}

func (a *Autopin1) OnUserMessage(arg uint64, val float64) {}

func (a *Autopin1) skipSlot(slot int) bool {
	if a.cfg.Skip[slot] {
		return true
	}
	return a.cfg.OpenMPICC && slot == 1
}

// Run drives the full Init -> Warmup -> Measure -> Done state machine
// over every scheduled candidate, then applies the best-performing one.
func (a *Autopin1) Run() {
	for i := range a.cfg.Schedule {
		for a.runCandidate(i) {
			// resetRequested fired mid-candidate; retry from Init.
		}
	}

	a.mu.Lock()
	best, ok := a.hist.Best(a.phase)
	a.mu.Unlock()
	if ok {
		a.mu.Lock()
		a.current = best.Pinning.Clone()
		a.mu.Unlock()
		applyPinning(best.Pinning, nil)
	}

	a.mu.Lock()
	a.state = stateDone
	a.mu.Unlock()
}

// runCandidate runs one full Warmup+Measure cycle for candidate index i.
// It returns true if a PhaseChanged reset fired mid-cycle, meaning the
// caller should retry the same candidate.
func (a *Autopin1) runCandidate(i int) bool {
	a.mu.Lock()
	a.state = stateInit
	a.resetRequested.Store(false)
	cores := a.cfg.Schedule[i]
	p := pinning.New(a.topo.CoreCount())
	pinned := make([]int, 0, len(a.knownTids))
	for slot, tid := range a.knownTids {
		if a.skipSlot(slot) {
			continue
		}
		if slot >= len(cores) {
			continue
		}
		p.Assign(cores[slot], a.pid, tid)
		pinned = append(pinned, tid)
	}
	a.current = p
	a.state = stateWarmup
	a.mu.Unlock()

	applyPinning(p, nil)
	a.sleep(a.cfg.WarmupTime)
	if a.resetRequested.Load() {
		return true
	}

	a.mu.Lock()
	a.state = stateMeasure
	a.mu.Unlock()

	for _, tid := range pinned {
		_ = a.cfg.Monitor.Start(tid)
	}
	start := time.Now()
	a.sleep(a.cfg.MeasureTime)
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = a.cfg.MeasureTime
	}
	if a.resetRequested.Load() {
		for _, tid := range pinned {
			_, _ = a.cfg.Monitor.Stop(tid)
		}
		return true
	}

	var sum float64
	for _, tid := range pinned {
		v, err := a.cfg.Monitor.Stop(tid)
		if err != nil {
			continue
		}
		sum += normalizeByInterval(v, elapsed, a.cfg.MeasureTime)
	}

	a.mu.Lock()
	a.hist.Record(a.phase, p.Clone(), sum)
	a.mu.Unlock()
	return false
}

// normalizeByInterval scales v measured over elapsed to what it would
// have been over the configured measure interval, per spec §4.8's
// "normalise per-tid values by actual measurement interval".
func normalizeByInterval(v float64, elapsed, configured time.Duration) float64 {
	if elapsed <= 0 || configured <= 0 {
		return v
	}
	return v * float64(configured) / float64(elapsed)
}
