// Package watchdog wires one target's Configuration, OsServices,
// ObservedProcess, ControlStrategy, PerformanceMonitors and sampling/
// migration pipeline into a single supervised run, per spec §3's
// ownership model and §9's "process-scoped initialised-once services
// created explicitly by main" redesign of the source's globals.
// Construction order and teardown follow the teacher's Orchestrator.Run
// (internal/orchestrator/orchestrator.go): derive a cancellable context,
// install signal handling, run the supervised work, always tear down.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	historyfile "github.com/caps-tum/autopin-plus-sub000/internal/history"
	"github.com/caps-tum/autopin-plus-sub000/internal/config"
	"github.com/caps-tum/autopin-plus-sub000/internal/datalogger"
	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"github.com/caps-tum/autopin-plus-sub000/internal/migration"
	"github.com/caps-tum/autopin-plus-sub000/internal/monitor"
	"github.com/caps-tum/autopin-plus-sub000/internal/osservices"
	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
	"github.com/caps-tum/autopin-plus-sub000/internal/process"
	"github.com/caps-tum/autopin-plus-sub000/internal/sampling"
	"github.com/caps-tum/autopin-plus-sub000/internal/strategy"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// Watchdog owns exactly one target for its full lifetime: one
// ObservedProcess, one ControlStrategy, its PerformanceMonitors, and (if
// tracing is enabled) one SamplingEngine/MigrationController pair.
type Watchdog struct {
	name string
	cfg  *config.Configuration
	topo *topology.Topology
	log  *slog.Logger

	errCtx *errs.Context

	svc      *osservices.Services
	observed *process.ObservedProcess
	strat    strategy.Strategy
	monitors map[string]monitor.Monitor
	loggers  []*datalogger.External

	engine *sampling.Engine
	ctrl   *migration.Controller

	historySavePath string

	fatal   chan *errs.Report
	stopped chan struct{}
}

// New constructs a Watchdog for name from cfg, but performs no I/O: call
// Run to attach/spawn and start the supervised pipeline.
func New(name string, cfg *config.Configuration, topo *topology.Topology, log *slog.Logger) *Watchdog {
	w := &Watchdog{
		name:     name,
		cfg:      cfg,
		topo:     topo,
		log:      log,
		monitors: make(map[string]monitor.Monitor),
		fatal:    make(chan *errs.Report, 1),
		stopped:  make(chan struct{}),
	}
	w.errCtx = errs.NewContext(name, func(r *errs.Report) {
		select {
		case w.fatal <- r:
		default:
		}
	})
	return w
}

// Run attaches to or spawns the target, builds its monitors and
// strategy, then blocks until the observed process exits, a fatal
// Report fires, or ctx is cancelled. It always tears down cleanly.
func (w *Watchdog) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := w.build(); err != nil {
		return err
	}
	defer w.teardown()

	if err := w.start(); err != nil {
		return err
	}

	select {
	case r := <-w.fatal:
		w.log.Error("watchdog terminating on fatal report", "watchdog", w.name, "report", r.Error())
		return r
	case <-runCtx.Done():
		return nil
	case <-w.waitExit():
		return nil
	}
}

func (w *Watchdog) waitExit() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if w.observed == nil {
			return
		}
		_, _ = osservices.Wait4(w.observed.RootPid())
	}()
	return done
}

// Build constructs every component from configuration without
// attaching or spawning the target. Exported for introspection tooling
// and tests that need a fully wired Watchdog without running it; Run
// calls this internally before start.
func (w *Watchdog) Build() error {
	return w.build()
}

// build constructs every component from configuration; it performs no
// process attach/spawn yet.
func (w *Watchdog) build() error {
	w.svc = osservices.New("")

	if err := w.buildMonitors(); err != nil {
		return err
	}

	w.buildDataLoggers()

	pcfg := process.Config{
		Trace:             w.cfg.GetBool("Trace", false),
		CommChanTimeout:   time.Duration(w.cfg.GetInt("CommChanTimeout", 60)) * time.Second,
		NotifyIntervalSec: w.cfg.GetInt("notification_interval", 0),
	}
	if commChan := w.cfg.Get("CommChan", ""); commChan != "" && commChan != "false" {
		if commChan == "true" {
			pcfg.CommChanPath = "/tmp/autopind-" + w.name + ".sock"
		} else {
			pcfg.CommChanPath = commChan
		}
	}
	w.observed = process.New(w.svc, pcfg)
	w.observed.OnWarning(func(err error) {
		if r, ok := err.(*errs.Report); ok {
			w.errCtx.Report(r.Kind, r.Opt, r.Err)
		} else {
			w.errCtx.Report(errs.System, "observed_process", err)
		}
	})

	strat, err := w.buildStrategy()
	if err != nil {
		return err
	}
	w.strat = strat

	w.observed.OnTaskCreated(func(tid int) { w.strat.OnTaskCreated(w.observed.RootPid(), tid) })
	w.observed.OnTaskTerminated(w.strat.OnTaskTerminated)
	w.observed.OnPhaseChanged(w.strat.OnPhaseChanged)
	w.observed.OnUserMessage(w.strat.OnUserMessage)

	w.historySavePath = w.cfg.Get("PinningHistory.save", "")
	return nil
}

func (w *Watchdog) buildMonitors() error {
	for _, name := range w.cfg.GetList("PerformanceMonitors") {
		m, err := w.buildOneMonitor(name)
		if err != nil {
			return errs.New(errs.Monitor, "init", fmt.Errorf("monitor %q: %w", name, err))
		}
		w.monitors[name] = m
	}
	return nil
}

// buildDataLoggers constructs one External logger per "external" entry
// in the DataLoggers list (spec §6); entries of any other type are
// skipped without an error. A logger's command is validated by its
// Init, called from start.
func (w *Watchdog) buildDataLoggers() {
	var all []monitor.Monitor
	for _, m := range w.monitors {
		all = append(all, m)
	}
	for _, typ := range w.cfg.GetList("DataLoggers") {
		if typ != "external" {
			continue
		}
		w.loggers = append(w.loggers, datalogger.NewExternal(all, w.log))
	}
}

func (w *Watchdog) buildOneMonitor(name string) (monitor.Monitor, error) {
	typ := w.cfg.Get(name+".type", "")
	dir := parseDirection(w.cfg.Get(name+".valtype", "UNKNOWN"))

	switch typ {
	case "random":
		min, _ := strconv.ParseFloat(w.cfg.Get(name+".rand_min", "0"), 64)
		max, _ := strconv.ParseFloat(w.cfg.Get(name+".rand_max", "1"), 64)
		return monitor.NewRandom(name, min, max, 1, dir), nil
	case "clustsafe":
		outlet := w.cfg.GetInt(name+".outlet", 0)
		ttl := time.Duration(w.cfg.GetInt(name+".ttl_ms", 500)) * time.Millisecond
		return monitor.NewEnergyMeter(name, w.cfg.Get(name+".addr", ""), w.cfg.Get(name+".password", ""), outlet, ttl, dir), nil
	case "gperf":
		sensor, err := monitor.ParseSensor(w.cfg.Get(name+".sensor", w.cfg.Get(name+".event_type", "cpu-cycles")))
		if err != nil {
			return nil, err
		}
		var processors []int
		for _, tok := range strings.Split(w.cfg.Get(name+".processors", ""), ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if p, err := strconv.Atoi(tok); err == nil {
				processors = append(processors, p)
			}
		}
		return monitor.NewGenericPerf(name, sensor, processors, dir, w.log), nil
	case "perf":
		sensor, err := monitor.ParseSensor(w.cfg.Get(name+".event_type", w.cfg.Get(name+".sensor", "cpu-cycles")))
		if err != nil {
			return nil, err
		}
		return monitor.NewLegacyPerf(name, sensor, dir), nil
	default:
		return nil, fmt.Errorf("unknown monitor type %q", typ)
	}
}

func parseDirection(s string) pinning.Direction {
	switch strings.ToUpper(s) {
	case "MAX":
		return pinning.Max
	case "MIN":
		return pinning.Min
	default:
		return pinning.Unknown
	}
}

func (w *Watchdog) buildStrategy() (strategy.Strategy, error) {
	pid := w.targetPid()
	warn := func(tid int, err error) {
		w.errCtx.Report(errs.System, "set_affinity", fmt.Errorf("tid %d: %w", tid, err))
	}

	switch w.cfg.Get("ControlStrategy", "noop") {
	case "compact":
		return strategy.NewCompact(w.topo, pid, warn), nil
	case "scatter":
		return strategy.NewScatter(w.topo, pid, warn), nil
	case "noop":
		var all []monitor.Monitor
		for _, m := range w.monitors {
			all = append(all, m)
		}
		return strategy.NewNoop(w.topo, all), nil
	case "history":
		path := w.cfg.Get("PinningHistory.load", "")
		initTime := time.Duration(w.cfg.GetInt("init_time", 0)) * time.Second
		return strategy.NewHistory(w.topo, pid, path, initTime, nil, warn), nil
	case "autopin1":
		selected, err := w.selectedMonitor()
		if err != nil {
			return nil, err
		}
		skip := map[int]bool{}
		for _, tok := range w.cfg.GetList("skip") {
			if n, err := strconv.Atoi(tok); err == nil {
				skip[n] = true
			}
		}
		var schedule [][]int
		for _, line := range w.cfg.GetList("schedule") {
			var cores []int
			for _, tok := range strings.Split(line, ":") {
				if n, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
					cores = append(cores, n)
				}
			}
			schedule = append(schedule, cores)
		}
		acfg := strategy.Autopin1Config{
			Schedule:    schedule,
			Skip:        skip,
			OpenMPICC:   w.cfg.GetBool("openmp_icc", false),
			WarmupTime:  time.Duration(w.cfg.GetInt("warmup_time", 0)) * time.Second,
			MeasureTime: time.Duration(w.cfg.GetInt("measure_time", 0)) * time.Second,
			Monitor:     selected,
		}
		return strategy.NewAutopin1(w.topo, pid, acfg, nil), nil
	default:
		return nil, errs.New(errs.BadConfig, "control_strategy", fmt.Errorf("unknown ControlStrategy %q", w.cfg.Get("ControlStrategy", "")))
	}
}

// selectedMonitor resolves Autopin1's single driving monitor: the first
// entry of PerformanceMonitors.
func (w *Watchdog) selectedMonitor() (monitor.Monitor, error) {
	names := w.cfg.GetList("PerformanceMonitors")
	if len(names) == 0 {
		return nil, errs.New(errs.BadConfig, "required", fmt.Errorf("autopin1 requires at least one PerformanceMonitors entry"))
	}
	m, ok := w.monitors[names[0]]
	if !ok {
		return nil, fmt.Errorf("monitor %q not built", names[0])
	}
	return m, nil
}

func (w *Watchdog) targetPid() int {
	if v := w.cfg.Get("Attach", ""); v != "" {
		if pid, err := strconv.Atoi(v); err == nil {
			return pid
		}
	}
	return 0
}

// start attaches to or spawns the target and kicks off the strategy and
// (when tracing) the sampling/migration pipeline.
func (w *Watchdog) start() error {
	if err := w.strat.Init(); err != nil {
		return errs.New(errs.Strategy, "init", err)
	}

	if exec := w.cfg.Get("Exec", ""); exec != "" {
		parts := strings.Fields(exec)
		if len(parts) == 0 {
			return errs.New(errs.BadConfig, "required", fmt.Errorf("empty Exec"))
		}
		if _, err := w.observed.Spawn(parts[0], parts[1:]); err != nil {
			return errs.New(errs.Process, "spawn", err)
		}
	} else if attach := w.cfg.Get("Attach", ""); attach != "" {
		if pid, err := strconv.Atoi(attach); err == nil {
			if err := w.observed.AttachByPid(pid); err != nil {
				return err
			}
		} else if err := w.observed.AttachByName(attach); err != nil {
			return err
		}
	} else {
		return errs.New(errs.BadConfig, "required", fmt.Errorf("neither Exec nor Attach configured"))
	}

	if w.cfg.GetBool("Trace", false) {
		w.startSampling()
	}

	for _, l := range w.loggers {
		if err := l.Init(w.cfg); err != nil {
			return errs.New(errs.System, "data_logger", err)
		}
	}

	if auto, ok := w.strat.(*strategy.Autopin1); ok {
		go auto.Run()
	}
	if hist, ok := w.strat.(*strategy.History); ok {
		go hist.Run()
	}

	return nil
}

func (w *Watchdog) startSampling() {
	cfg := sampling.Config{
		ObservedPid:          w.observed.RootPid(),
		PageSize:             4096,
		NodeCount:            w.topo.NodeCount(),
		CoreToNode:           w.topo.NodeOfCore,
		Log:                  w.log,
		PageFaultFallbackObj: w.cfg.Get("PageFaultFallbackObj", ""),
	}
	for _, core := range w.coreList() {
		cfg.Cores = append(cfg.Cores, core)
	}
	w.engine = sampling.NewEngine(cfg, func(err error) {
		w.errCtx.Report(errs.System, "sampling", err)
	})
	if err := w.engine.Open(); err != nil {
		w.errCtx.Report(errs.System, "sampling_open", err)
		return
	}
	go w.engine.Run()

	w.ctrl = migration.New(migration.Config{
		Pid: w.observed.RootPid(),
		Log: w.log,
	}, w.engine, migration.NewSyscallMover())

	go w.runMigrationLoop()
}

func (w *Watchdog) runMigrationLoop() {
	for {
		select {
		case <-w.stopped:
			return
		default:
		}
		w.ctrl.Sense(context.Background())
		select {
		case <-w.stopped:
			return
		default:
		}
		if _, err := w.ctrl.DecideAndMigrate(); err != nil {
			w.errCtx.Report(errs.System, "migrate", err)
		}
	}
}

func (w *Watchdog) coreList() []int {
	var out []int
	for _, node := range w.topo.Nodes() {
		out = append(out, w.topo.CoresOfNode(node)...)
	}
	return out
}

// Name returns this watchdog's target name.
func (w *Watchdog) Name() string { return w.name }

// CurrentPinning returns the strategy's current pinning snapshot, or the
// empty Pinning if the strategy has not been built yet.
func (w *Watchdog) CurrentPinning() pinning.Pinning {
	if w.strat == nil {
		return pinning.Pinning{}
	}
	return w.strat.CurrentPinning()
}

// History returns the strategy's PinningHistory, or nil if not built.
func (w *Watchdog) History() *pinning.History {
	if w.strat == nil {
		return nil
	}
	return w.strat.History()
}

// ProcessTree rebuilds the observed process's task tree, or an error if
// the watchdog has not attached yet.
func (w *Watchdog) ProcessTree() (*process.Tree, error) {
	if w.observed == nil {
		return nil, fmt.Errorf("watchdog %q: not attached", w.name)
	}
	return w.observed.ProcessTree()
}

// MonitorValue reads monitor name's current value for tid.
func (w *Watchdog) MonitorValue(name string, tid int) (float64, error) {
	m, ok := w.monitors[name]
	if !ok {
		return 0, fmt.Errorf("watchdog %q: no monitor named %q", w.name, name)
	}
	return m.Value(tid)
}

// MonitoredTasks lists the tids monitor name currently tracks.
func (w *Watchdog) MonitoredTasks(name string) ([]int, error) {
	m, ok := w.monitors[name]
	if !ok {
		return nil, fmt.Errorf("watchdog %q: no monitor named %q", w.name, name)
	}
	return m.MonitoredTasks(), nil
}

// MonitorNames lists every configured monitor's logical name.
func (w *Watchdog) MonitorNames() []string {
	out := make([]string, 0, len(w.monitors))
	for name := range w.monitors {
		out = append(out, name)
	}
	return out
}

// MigrationCandidateCount reports the number of pages currently queued
// for migration by the sampling engine, or 0 if sampling is not active.
func (w *Watchdog) MigrationCandidateCount() int {
	if w.engine == nil {
		return 0
	}
	return len(w.engine.MigrationCandidates())
}

// teardown tears down every owned component, in reverse construction
// order, and saves pinning history if PinningHistory.save was set.
func (w *Watchdog) teardown() {
	close(w.stopped)
	for _, l := range w.loggers {
		l.Stop()
	}
	if w.engine != nil {
		w.engine.Stop()
	}
	if w.observed != nil {
		w.observed.Detach()
	}
	for _, m := range w.monitors {
		for _, tid := range m.MonitoredTasks() {
			m.Clear(tid)
		}
	}
	if w.historySavePath != "" && w.strat != nil {
		meta := historyfile.Metadata{ControlStrategyType: w.cfg.Get("ControlStrategy", "")}
		if err := historyfile.Save(w.historySavePath, w.strat.History(), w.topo.CoreCount(), meta); err != nil {
			w.log.Warn("save pinning history failed", "watchdog", w.name, "err", err)
		}
	}
}
