package monitor

import (
	"fmt"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// SampleCounter is implemented by internal/sampling's engine: the
// running count of PEBS load-latency samples attributed to a tid.
// LoadLatencySampler depends only on this narrow interface, not on the
// sampling package itself, to avoid a monitor<->sampling import cycle.
type SampleCounter interface {
	SampleCount(tid int) uint64
}

// LoadLatencySampler shares the PEBS ring buffer with the SamplingEngine
// and reports the running sample count per tid, per spec §4.5.
type LoadLatencySampler struct {
	base
	counter  SampleCounter
	baseline map[int]uint64
}

// NewLoadLatencySampler creates a LoadLatencySampler reading from
// counter (the SamplingEngine).
func NewLoadLatencySampler(name string, counter SampleCounter, dir pinning.Direction) *LoadLatencySampler {
	return &LoadLatencySampler{
		base:     newBase(name, "samples", dir),
		counter:  counter,
		baseline: make(map[int]uint64),
	}
}

func (l *LoadLatencySampler) Init() error { return nil }

func (l *LoadLatencySampler) Start(tid int) error {
	l.baseline[tid] = l.counter.SampleCount(tid)
	l.markStarted(tid)
	return nil
}

func (l *LoadLatencySampler) Value(tid int) (float64, error) {
	base, ok := l.baseline[tid]
	if !ok {
		return 0, errs.New(errs.Monitor, "value", fmt.Errorf("tid %d not started", tid))
	}
	cur := l.counter.SampleCount(tid)
	if cur < base {
		return 0, nil
	}
	return float64(cur - base), nil
}

func (l *LoadLatencySampler) Stop(tid int) (float64, error) {
	v, err := l.Value(tid)
	l.Clear(tid)
	return v, err
}

func (l *LoadLatencySampler) Clear(tid int) {
	delete(l.baseline, tid)
	l.markStopped(tid)
}

