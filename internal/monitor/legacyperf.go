package monitor

import (
	"fmt"
	"os"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// LegacyPerf opens a single hardware counter of a configured event id
// for (tid, any_cpu); reset-enable-read-close cycle, per spec §4.5.
type LegacyPerf struct {
	base
	sensor Sensor
	fds    map[int]*os.File
}

// NewLegacyPerf creates a LegacyPerf monitor for the given sensor.
func NewLegacyPerf(name string, sensor Sensor, dir pinning.Direction) *LegacyPerf {
	return &LegacyPerf{base: newBase(name, "count", dir), sensor: sensor, fds: make(map[int]*os.File)}
}

func (l *LegacyPerf) Init() error { return nil }

func (l *LegacyPerf) Start(tid int) error {
	l.Clear(tid)
	attr := eventAttr{
		Type: l.sensor.Type, Config: l.sensor.Config,
		Config1: l.sensor.Config1, Config2: l.sensor.Config2,
		Bits: attrBitDisabled | attrBitEnableOnExec,
	}
	fd, err := perfEventOpen(&attr, tid, -1, -1, 0)
	if err != nil {
		return errs.New(errs.Monitor, "start", err)
	}
	_ = perfIoctl(fd, ioctlPerfEventReset)
	_ = perfIoctl(fd, ioctlPerfEventEnable)
	l.fds[tid] = os.NewFile(uintptr(fd), fmt.Sprintf("legacyperf-%s-tid%d", l.name, tid))
	l.markStarted(tid)
	return nil
}

func (l *LegacyPerf) Value(tid int) (float64, error) {
	f, ok := l.fds[tid]
	if !ok {
		return 0, errs.New(errs.Monitor, "value", fmt.Errorf("tid %d not started", tid))
	}
	v, err := readCounter(f)
	if err != nil {
		return 0, errs.New(errs.Monitor, "value", err)
	}
	return float64(v), nil
}

func (l *LegacyPerf) Stop(tid int) (float64, error) {
	v, err := l.Value(tid)
	l.Clear(tid)
	return v, err
}

func (l *LegacyPerf) Clear(tid int) {
	if f, ok := l.fds[tid]; ok {
		_ = f.Close()
		delete(l.fds, tid)
	}
	l.markStopped(tid)
}
