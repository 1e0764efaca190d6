package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// Sensor is a resolved (type, config, config1, config2) perf event
// descriptor, per spec §4.5's three sensor-naming forms.
type Sensor struct {
	Type    uint32
	Config  uint64
	Config1 uint64
	Config2 uint64
}

// symbolicSensors is the closed set of symbolic hardware/software names
// spec §4.5 allows as a sensor descriptor, independent of any sysfs
// format-file parsing.
var symbolicSensors = map[string]Sensor{
	"cpu-cycles":       {Type: PerfTypeHardware, Config: PerfCountHwCPUCycles},
	"instructions":     {Type: PerfTypeHardware, Config: PerfCountHwInstructions},
	"cache-misses":     {Type: PerfTypeHardware, Config: PerfCountHwCacheMisses},
	"cpu-clock":        {Type: PerfTypeSoftware, Config: PerfCountSwCPUClock},
	"task-clock":       {Type: PerfTypeSoftware, Config: PerfCountSwTaskClock},
	"context-switches": {Type: PerfTypeSoftware, Config: PerfCountSwContextSwitches},
}

// ParseSensor resolves a sensor descriptor string. Two forms are
// supported directly: a symbolic name from the closed set above, or a
// raw colon-separated "type:config[:config1[:config2]]" tuple. A sysfs
// "/sys/bus/event_source/devices/*/events/*" path is recognised but its
// format file is not parsed here — PMU-specific format strings vary
// too much to hand-roll safely, so that form reports Unsupported.
func ParseSensor(spec string) (Sensor, error) {
	if s, ok := symbolicSensors[spec]; ok {
		return s, nil
	}
	if strings.HasPrefix(spec, "/sys/bus/event_source/devices/") {
		return Sensor{}, errs.New(errs.Unsupported, "sensor_sysfs_path", fmt.Errorf("PMU format-file sensors are not supported: %s", spec))
	}
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return Sensor{}, errs.New(errs.BadConfig, "sensor", fmt.Errorf("malformed sensor descriptor: %q", spec))
	}
	typ, err := strconv.ParseUint(parts[0], 0, 32)
	if err != nil {
		return Sensor{}, errs.New(errs.BadConfig, "sensor", err)
	}
	config, err := strconv.ParseUint(parts[1], 0, 64)
	if err != nil {
		return Sensor{}, errs.New(errs.BadConfig, "sensor", err)
	}
	s := Sensor{Type: uint32(typ), Config: config}
	if len(parts) > 2 {
		if s.Config1, err = strconv.ParseUint(parts[2], 0, 64); err != nil {
			return Sensor{}, errs.New(errs.BadConfig, "sensor", err)
		}
	}
	if len(parts) > 3 {
		if s.Config2, err = strconv.ParseUint(parts[3], 0, 64); err != nil {
			return Sensor{}, errs.New(errs.BadConfig, "sensor", err)
		}
	}
	return s, nil
}

// GenericPerf opens one counter per requested processor for each
// monitored tid and sums the raw counter values on read. The values are
// not scaled for multiplexing (time enabled/running is not read).
type GenericPerf struct {
	base
	sensor     Sensor
	processors []int
	log        *slog.Logger

	fds map[int]map[int]*os.File // tid -> processor -> open fd
}

// NewGenericPerf creates a GenericPerf monitor for sensor, opened once
// per processor in processors.
func NewGenericPerf(name string, sensor Sensor, processors []int, dir pinning.Direction, log *slog.Logger) *GenericPerf {
	return &GenericPerf{
		base:       newBase(name, "count", dir),
		sensor:     sensor,
		processors: processors,
		log:        log,
		fds:        make(map[int]map[int]*os.File),
	}
}

func (g *GenericPerf) Init() error { return nil }

func (g *GenericPerf) Start(tid int) error {
	g.Clear(tid) // start() resets any prior counter for that tid, per spec

	attr := eventAttr{
		Type: g.sensor.Type, Config: g.sensor.Config,
		Config1: g.sensor.Config1, Config2: g.sensor.Config2,
		Bits: attrBitDisabled | attrBitEnableOnExec | attrBitInherit,
	}

	perCPU := make(map[int]*os.File, len(g.processors))
	for _, cpu := range g.processors {
		fd, err := perfEventOpen(&attr, tid, cpu, -1, 0)
		if err != nil {
			// thread-scoped open failed: fall back to system-wide,
			// per spec §4.5.
			if g.log != nil {
				g.log.Debug("generic perf falling back to system-wide", "sensor", g.sensor, "cpu", cpu, "err", err)
			}
			fd, err = perfEventOpen(&attr, -1, cpu, -1, 0)
			if err != nil {
				for _, f := range perCPU {
					_ = f.Close()
				}
				return errs.New(errs.Monitor, "start", err)
			}
		}
		f := os.NewFile(uintptr(fd), fmt.Sprintf("perf-%s-cpu%d", g.name, cpu))
		_ = perfIoctl(fd, ioctlPerfEventReset)
		_ = perfIoctl(fd, ioctlPerfEventEnable)
		perCPU[cpu] = f
	}
	g.fds[tid] = perCPU
	g.markStarted(tid)
	return nil
}

func (g *GenericPerf) Value(tid int) (float64, error) {
	perCPU, ok := g.fds[tid]
	if !ok {
		return 0, errs.New(errs.Monitor, "value", fmt.Errorf("tid %d not started", tid))
	}
	var sum uint64
	for _, f := range perCPU {
		v, err := readCounter(f)
		if err != nil {
			return 0, errs.New(errs.Monitor, "value", err)
		}
		sum += v
	}
	return float64(sum), nil
}

func (g *GenericPerf) Stop(tid int) (float64, error) {
	v, err := g.Value(tid)
	g.Clear(tid)
	return v, err
}

func (g *GenericPerf) Clear(tid int) {
	if perCPU, ok := g.fds[tid]; ok {
		for _, f := range perCPU {
			_ = f.Close()
		}
		delete(g.fds, tid)
	}
	g.markStopped(tid)
}
