// Package datalogger implements the DataLogger variant of spec §4 /
// §9: a tagged base (name, shared monitor list) with one concrete
// variant, External, which spawns a configurable program and feeds it
// periodic performance data, grounded on the original's
// Logger::External::Main (_examples/original_source/src/AutopinPlus/
// Logger/External/Main.cpp) and on the teacher's process-group spawn
// idiom (internal/osservices.Spawn).
package datalogger

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/caps-tum/autopin-plus-sub000/internal/config"
	"github.com/caps-tum/autopin-plus-sub000/internal/monitor"
)

// External spawns external.command and writes it one tab-separated line
// per monitored task every external.interval, matching the original's
// "name\ttid\telapsed_seconds\tvalue\tunit" wire format.
type External struct {
	monitors []monitor.Monitor
	log      *slog.Logger

	command    []string
	interval   time.Duration
	systemwide bool

	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu      sync.Mutex
	start   time.Time
	stopCh  chan struct{}
	stopped sync.WaitGroup
}

// NewExternal creates an External data logger feeding monitors.
func NewExternal(monitors []monitor.Monitor, log *slog.Logger) *External {
	return &External{
		monitors: monitors,
		log:      log,
		command:  []string{"cat"},
		interval: 100 * time.Millisecond,
	}
}

// Name returns this data logger's configuration name, fixed to
// "external" per spec (the original hardcodes the same name on its
// DataLogger base).
func (e *External) Name() string { return "external" }

// Init reads external.command/.interval/.systemwide from cfg, spawns
// the command, and starts the periodic logging timer. A command that
// fails to start is a bad-config error, matching the original's
// init()'s BAD_CONFIG report on startup failure.
func (e *External) Init(cfg *config.Configuration) error {
	if raw := cfg.Get("external.command", ""); raw != "" {
		if fields := strings.Fields(raw); len(fields) > 0 {
			e.command = fields
		}
	}
	e.interval = time.Duration(cfg.GetInt("external.interval", 100)) * time.Millisecond
	e.systemwide = cfg.GetBool("external.systemwide", false)

	e.cmd = exec.Command(e.command[0], e.command[1:]...)
	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("external data logger: stdin pipe: %w", err)
	}
	e.stdin = stdin

	if e.log != nil {
		e.cmd.Stdout = logWriter{log: e.log, prefix: "stdout"}
		e.cmd.Stderr = logWriter{log: e.log, prefix: "stderr"}
	}

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("external data logger: start %q: %w", e.command[0], err)
	}

	e.start = time.Now()
	e.stopCh = make(chan struct{})
	e.stopped.Add(1)
	go e.run()
	return nil
}

func (e *External) run() {
	defer e.stopped.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.logDataPoint()
		}
	}
}

// logDataPoint emits one line per monitored task across every monitor.
// A non-blocking TryLock mirrors the original's QMutex::tryLock: if a
// previous tick is still writing, this tick is simply dropped rather
// than queued.
func (e *External) logDataPoint() {
	if !e.mu.TryLock() {
		return
	}
	defer e.mu.Unlock()

	elapsed := time.Since(e.start).Seconds()
	for _, m := range e.monitors {
		for _, tid := range m.MonitoredTasks() {
			unit := m.Unit()
			if unit == "" {
				unit = "none"
			}
			val, err := m.Value(tid)
			if err != nil {
				continue
			}
			fmt.Fprintf(e.stdin, "%s\t%d\t%.3f\t%.6f\t%s\n", m.Name(), tid, elapsed, val, unit)
			if e.systemwide {
				break
			}
		}
	}
}

// Stop terminates the periodic timer and the spawned command.
func (e *External) Stop() {
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	e.stopped.Wait()
	if e.stdin != nil {
		e.stdin.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
		_, _ = e.cmd.Process.Wait()
	}
}

// logWriter forwards a spawned data logger's stdout/stderr to the
// watchdog's structured logger, matching the original's "[stdout]"/
// "[stderr]" line-prefixed context.info calls.
type logWriter struct {
	log    *slog.Logger
	prefix string
}

func (w logWriter) Write(p []byte) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(p)))
	for scanner.Scan() {
		w.log.Info("data logger output", "stream", w.prefix, "line", scanner.Text())
	}
	return len(p), nil
}
