package process

import (
	"fmt"
	"time"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"github.com/caps-tum/autopin-plus-sub000/internal/osservices"
	"github.com/caps-tum/autopin-plus-sub000/internal/trace"
)

// Wire event ids recognised on the comm channel, per spec §6.
const (
	wireAppReady    uint64 = 0x0001
	wireAppInterval uint64 = 0x0010
	wireAppNewPhase uint64 = 0x0100
	wireAppUser     uint64 = 0x1000
)

// Config is the subset of per-target configuration ObservedProcess
// needs to start.
type Config struct {
	Trace             bool
	CommChanPath      string // empty means comm channel disabled
	CommChanTimeout   time.Duration
	NotifyIntervalSec int
}

// ObservedProcess owns exactly one ProcessTree and drives its tracer and
// comm channel, per spec §4.4.
type ObservedProcess struct {
	os     *osservices.Services
	engine *trace.Engine

	rootPid int
	phase   int
	cfg     Config

	onTaskCreated    func(tid int)
	onTaskTerminated func(tid int)
	onPhaseChanged   func(phase int)
	onUserMessage    func(arg uint64, val float64)
	onWarning        func(err error)
}

// New creates an ObservedProcess bound to an OsServices instance.
func New(svc *osservices.Services, cfg Config) *ObservedProcess {
	return &ObservedProcess{os: svc, cfg: cfg}
}

// OnTaskCreated registers the strategy-observable TaskCreated slot.
func (o *ObservedProcess) OnTaskCreated(f func(tid int)) { o.onTaskCreated = f }

// OnTaskTerminated registers the TaskTerminated slot.
func (o *ObservedProcess) OnTaskTerminated(f func(tid int)) { o.onTaskTerminated = f }

// OnPhaseChanged registers the PhaseChanged slot.
func (o *ObservedProcess) OnPhaseChanged(f func(phase int)) { o.onPhaseChanged = f }

// OnUserMessage registers the pass-through UserMessage slot.
func (o *ObservedProcess) OnUserMessage(f func(arg uint64, val float64)) { o.onUserMessage = f }

// OnWarning registers a sink for non-fatal errors surfaced during
// tracing/comm handling.
func (o *ObservedProcess) OnWarning(f func(err error)) { o.onWarning = f }

func (o *ObservedProcess) warn(err error) {
	if o.onWarning != nil {
		o.onWarning(err)
	}
}

// AttachByPid attaches to an already-running process by numeric pid.
func (o *ObservedProcess) AttachByPid(pid int) error {
	o.rootPid = pid
	return o.start()
}

// AttachByName resolves name via OsServices.PidOf; an ambiguous name
// (more than one match) is fatal per spec §4.4.
func (o *ObservedProcess) AttachByName(name string) error {
	pids, err := o.os.PidOf(name)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		return errs.New(errs.Process, "not_found", fmt.Errorf("no process named %q", name))
	}
	if len(pids) > 1 {
		return errs.New(errs.Process, "not_found", fmt.Errorf("ambiguous process name %q: %d matches", name, len(pids)))
	}
	for pid := range pids {
		o.rootPid = pid
	}
	return o.start()
}

// Spawn starts a new process from a command line and attaches to it.
func (o *ObservedProcess) Spawn(name string, args []string) (*osservices.SpawnedProcess, error) {
	sp, err := osservices.Spawn(name, args)
	if err != nil {
		return nil, err
	}
	o.rootPid = sp.Pid
	if err := o.start(); err != nil {
		return nil, err
	}
	return sp, nil
}

// start runs the ordered startup sequence of spec §4.4: open the
// optional comm channel, start the tracer when enabled, wait for the
// application to connect up to the configured timeout, then emit a
// synthetic TaskCreated(root_pid).
func (o *ObservedProcess) start() error {
	if o.cfg.CommChanPath != "" {
		if err := o.os.InitCommChannel(o.cfg.CommChanPath); err != nil {
			return errs.New(errs.Comm, "connect", err)
		}
	}

	if o.cfg.Trace {
		tasks, err := o.os.ThreadsOf(o.rootPid)
		if err != nil {
			return errs.New(errs.ProcTrace, "observed_process", err)
		}
		var tids []int
		for tid := range tasks {
			tids = append(tids, tid)
		}
		eng, err := o.os.Attach(o.rootPid, tids, func(tid int, err error) {
			o.warn(errs.New(errs.ProcTrace, "cannot_trace", err))
		})
		if err != nil {
			return errs.New(errs.ProcTrace, "observed_process", err)
		}
		o.engine = eng
		go o.pumpTraceEvents()
	}

	if o.cfg.CommChanPath != "" {
		timeout := o.cfg.CommChanTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		accepted := make(chan error, 1)
		go func() { accepted <- o.os.AcceptCommChannel() }()
		select {
		case err := <-accepted:
			if err != nil {
				return errs.New(errs.Comm, "connect", err)
			}
			_ = o.os.SendMsg(osservices.Msg{EventID: wireAppReady})
			if o.cfg.NotifyIntervalSec > 0 {
				_ = o.os.SendMsg(osservices.Msg{EventID: wireAppInterval, Arg: uint64(o.cfg.NotifyIntervalSec)})
			}
			go o.pumpCommMessages()
		case <-time.After(timeout):
			return errs.New(errs.Comm, "connect", fmt.Errorf("timed out waiting for comm channel connect"))
		}
	}

	if o.onTaskCreated != nil {
		o.onTaskCreated(o.rootPid)
	}
	return nil
}

func (o *ObservedProcess) pumpTraceEvents() {
	for ev := range o.engine.Events() {
		switch ev.Kind {
		case trace.TaskCreated:
			if o.onTaskCreated != nil {
				o.onTaskCreated(ev.Tid)
			}
		case trace.TaskTerminated:
			if o.onTaskTerminated != nil {
				o.onTaskTerminated(ev.Tid)
			}
		}
	}
}

func (o *ObservedProcess) pumpCommMessages() {
	for {
		msg, err := o.os.ReceiveMsg()
		if err != nil {
			return
		}
		switch msg.EventID {
		case wireAppNewPhase:
			o.phase = int(msg.Arg)
			if o.onPhaseChanged != nil {
				o.onPhaseChanged(o.phase)
			}
		case wireAppUser:
			if o.onUserMessage != nil {
				o.onUserMessage(msg.Arg, msg.Val)
			}
		}
	}
}

// Detach stops the tracer and tears down the comm channel.
func (o *ObservedProcess) Detach() {
	if o.engine != nil {
		o.os.Detach(o.engine)
	}
	_ = o.os.TearDownCommChannel()
}

// RootPid returns the observed process's root pid.
func (o *ObservedProcess) RootPid() int { return o.rootPid }

// Phase returns the current execution phase, last set by a NewPhase
// comm-channel message.
func (o *ObservedProcess) Phase() int { return o.phase }

// ProcessTree rebuilds an immutable tree snapshot via breadth-first
// traversal from the root, per spec §4.4: tasks of a pid become that
// node's tids; children-of(pid) become sub-nodes.
func (o *ObservedProcess) ProcessTree() (*Tree, error) {
	root := newNode(o.rootPid)
	tree := &Tree{RootPid: o.rootPid, Nodes: map[int]*TreeNode{o.rootPid: root}}

	queue := []*TreeNode{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		tids, err := o.os.ThreadsOf(node.Pid)
		if err != nil {
			o.warn(err)
		} else {
			node.Tids = tids
		}

		children, err := o.os.ChildrenOf(node.Pid)
		if err != nil {
			o.warn(err)
			continue
		}
		for childPid := range children {
			child := newNode(childPid)
			node.Children[childPid] = child
			tree.Nodes[childPid] = child
			queue = append(queue, child)
		}
	}
	return tree, nil
}
