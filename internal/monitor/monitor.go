// Package monitor implements the polymorphic PerformanceMonitor variants
// of spec §4.5: GenericPerf, LegacyPerf, LoadLatencySampler, EnergyMeter
// (ClustSafe) and Random, all sharing one per-thread
// init/start/value/stop/clear contract. The tagged-variant-by-composition
// idiom follows spec §9's re-architecture of the source's abstract base
// classes, grounded on the teacher's own Collector interface
// (internal/collector/collector.go: Name/Category/Collect/Available).
package monitor

import (
	"sync"

	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// Monitor is the shared per-thread lifecycle every variant implements.
type Monitor interface {
	Name() string
	Init() error
	Start(tid int) error
	Value(tid int) (float64, error)
	Stop(tid int) (float64, error)
	Clear(tid int)
	MonitoredTasks() []int
	Unit() string
	Direction() pinning.Direction
}

// base carries the state shared by every variant, embedded by
// composition per spec §9 (no inheritance hierarchy).
type base struct {
	name      string
	unit      string
	direction pinning.Direction

	mu        sync.Mutex
	monitored map[int]bool
}

func newBase(name, unit string, dir pinning.Direction) base {
	return base{name: name, unit: unit, direction: dir, monitored: make(map[int]bool)}
}

func (b *base) Name() string                { return b.name }
func (b *base) Unit() string                { return b.unit }
func (b *base) Direction() pinning.Direction { return b.direction }

func (b *base) markStarted(tid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monitored[tid] = true
}

func (b *base) markStopped(tid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.monitored, tid)
}

func (b *base) MonitoredTasks() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int, 0, len(b.monitored))
	for tid := range b.monitored {
		out = append(out, tid)
	}
	return out
}

// StartAll starts m on every tid in tids; a per-tid error is collected
// but does not stop the others, matching the abstract-base default
// behaviour described in spec §4.5's closing paragraph.
func StartAll(m Monitor, tids []int) map[int]error {
	errsByTid := make(map[int]error)
	for _, tid := range tids {
		if err := m.Start(tid); err != nil {
			errsByTid[tid] = err
		}
	}
	return errsByTid
}

// ValueAll reads m.Value for every tid in tids.
func ValueAll(m Monitor, tids []int) map[int]float64 {
	out := make(map[int]float64, len(tids))
	for _, tid := range tids {
		if v, err := m.Value(tid); err == nil {
			out[tid] = v
		}
	}
	return out
}

// StopAll stops m on every tid in tids.
func StopAll(m Monitor, tids []int) map[int]float64 {
	out := make(map[int]float64, len(tids))
	for _, tid := range tids {
		if v, err := m.Stop(tid); err == nil {
			out[tid] = v
		}
	}
	return out
}
