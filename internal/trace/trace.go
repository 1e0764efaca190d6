// Package trace implements the dedicated ptrace worker of spec §4.3: it
// attaches to every task of an observed process tree, enabling
// trace-fork/vfork/clone so the kernel stops the tracer on every new
// task, and emits exactly one TaskCreated/TaskTerminated event per
// observed kernel event. Ptrace state is per-OS-thread in Linux, so the
// wait loop runs on a goroutine locked to its OS thread for its entire
// life, matching spec §5's "TraceEngine thread" model.
package trace

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// EventKind distinguishes the two events the engine emits.
type EventKind int

const (
	TaskCreated EventKind = iota
	TaskTerminated
)

// Event is a single lifecycle notification, totally ordered per spec §5.
type Event struct {
	Kind EventKind
	Tid  int
}

// traceOptions enables trace-fork/vfork/clone and exit tracing so the
// tracer is stopped on every new task and on task exit.
const traceOptions = unix.PTRACE_O_TRACEFORK | unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACECLONE | unix.PTRACE_O_TRACEEXIT

// Engine is the dedicated tracer worker.
type Engine struct {
	events chan Event

	mu    sync.Mutex
	known map[int]bool // tasks we have successfully PTRACE_ATTACHed

	exitRequested atomic.Bool
	done          chan struct{}

	warn func(tid int, err error)
}

// New creates an Engine. warn, if non-nil, receives a non-fatal warning
// whenever a single task cannot be attached/traced (spec §4.3's "skip
// that task with a warning").
func New(warn func(tid int, err error)) *Engine {
	return &Engine{
		events: make(chan Event, 256),
		known:  make(map[int]bool),
		done:   make(chan struct{}),
		warn:   warn,
	}
}

// Events returns the channel downstream consumers drain; it is closed
// once the engine's run loop returns.
func (e *Engine) Events() <-chan Event { return e.events }

// Attach starts the tracer, blocking until every tid in initialTasks has
// been attached (or skipped with a warning). Failing to attach to root
// fails the whole attach per spec §4.3.
func (e *Engine) Attach(root int, initialTasks []int) error {
	attachErrs := 0
	for _, tid := range initialTasks {
		if err := e.attachTask(tid); err != nil {
			attachErrs++
			if e.warn != nil {
				e.warn(tid, err)
			}
			if tid == root {
				return fmt.Errorf("attach root task %d: %w", root, err)
			}
		}
	}
	go e.run()
	return nil
}

func (e *Engine) attachTask(tid int) error {
	if err := unix.PtraceAttach(tid); err != nil {
		return err
	}
	var status unix.WaitStatus
	if _, err := unix.Wait4(tid, &status, 0, nil); err != nil {
		return err
	}
	if err := unix.PtraceSetOptions(tid, traceOptions); err != nil {
		return err
	}
	e.mu.Lock()
	e.known[tid] = true
	e.mu.Unlock()
	if err := unix.PtraceCont(tid, 0); err != nil {
		return err
	}
	return nil
}

// RequestExit asks the run loop to stop; it is observed at the next
// one-second wake-up per spec §4.3/§5.
func (e *Engine) RequestExit() {
	e.exitRequested.Store(true)
}

// Detach signals shutdown and waits for the run loop to return.
func (e *Engine) Detach() {
	e.RequestExit()
	<-e.done
}

// run is the blocking wait loop. It must stay on one OS thread for its
// whole life because ptrace tracer/tracee relationships are per-thread.
func (e *Engine) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.done)
	defer close(e.events)

	tick := time.NewTimer(time.Second)
	defer tick.Stop()

	type waitResult struct {
		tid    int
		status unix.WaitStatus
		err    error
	}
	results := make(chan waitResult, 1)

	// One Wait4(-1, ...) call is ever in flight: it blocks until some
	// tracee changes state, and handleStop below reposts it. Spawning a
	// fresh one per tick would leak a blocked goroutine/OS thread every
	// second a watchdog sits idle.
	wait := func() {
		go func() {
			var status unix.WaitStatus
			tid, err := unix.Wait4(-1, &status, unix.WALL, nil)
			results <- waitResult{tid, status, err}
		}()
	}
	wait()

	for {
		if e.exitRequested.Load() {
			return
		}

		select {
		case r := <-results:
			if r.err == nil {
				e.handleStop(r.tid, r.status)
			}
			wait()
		case <-tick.C:
			tick.Reset(time.Second)
		}
	}
}

func (e *Engine) handleStop(tid int, status unix.WaitStatus) {
	if status.Exited() || status.Signaled() {
		e.mu.Lock()
		wasKnown := e.known[tid]
		delete(e.known, tid)
		e.mu.Unlock()
		if wasKnown {
			e.events <- Event{Kind: TaskTerminated, Tid: tid}
		}
		return
	}

	e.mu.Lock()
	_, alreadyKnown := e.known[tid]
	if !alreadyKnown {
		e.known[tid] = true
	}
	e.mu.Unlock()

	if !alreadyKnown {
		e.events <- Event{Kind: TaskCreated, Tid: tid}
	}

	// Resume the stopped task; PTRACE_EVENT_EXIT notifications and
	// signal-delivery-stops are both handled by a plain continue here,
	// since we only care about creation/termination bookkeeping.
	_ = unix.PtraceCont(tid, 0)
}
