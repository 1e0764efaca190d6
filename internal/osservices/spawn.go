package osservices

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
	"github.com/caps-tum/autopin-plus-sub000/internal/trace"
	"golang.org/x/sys/unix"
)

// gracePeriod is how long Stop waits after SIGINT before escalating to
// SIGKILL, matching the teacher's BCCExecutor.Run escalation timeout
// (internal/executor/executor.go).
const gracePeriod = 5 * time.Second

// SpawnedProcess is a process started under our own process group, ready
// to be ptrace-attached before it execs its target image.
type SpawnedProcess struct {
	cmd *exec.Cmd
	Pid int
}

// Spawn starts command under its own process group with PTRACE_TRACEME
// set (SysProcAttr.Ptrace), so the child stops with SIGTRAP at its exec
// before running any target code, mirroring the teacher's exec.Command +
// SysProcAttr{Setpgid: true} pattern (internal/executor/executor.go)
// generalized so the watchdog can attach before the target begins
// executing user code.
func Spawn(name string, args []string) (*SpawnedProcess, error) {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Ptrace:  true,
	}
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, errs.New(errs.Process, "spawn", err)
	}
	return &SpawnedProcess{cmd: cmd, Pid: cmd.Process.Pid}, nil
}

// Attach wires a trace.Engine to an already-running (or just-spawned)
// root pid and its currently known tasks.
func (s *Services) Attach(root int, initialTasks []int, warn func(tid int, err error)) (*trace.Engine, error) {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	eng := trace.New(warn)
	if err := eng.Attach(root, initialTasks); err != nil {
		return nil, errs.New(errs.ProcTrace, "attach_root", err)
	}
	return eng, nil
}

// Detach stops a trace.Engine, releasing all tracees.
func (s *Services) Detach(eng *trace.Engine) {
	eng.Detach()
}

// Wait4 blocks until pid changes state, used by Spawn callers that need
// to release an initial PTRACE_TRACEME stop before the engine takes over.
func Wait4(pid int) (unix.WaitStatus, error) {
	var status unix.WaitStatus
	_, err := unix.Wait4(pid, &status, 0, nil)
	if err != nil {
		return 0, errs.New(errs.Process, "wait4", err)
	}
	return status, nil
}

// Stop sends SIGINT to the process group, escalating to SIGKILL after
// gracePeriod if the process has not exited, matching the teacher's
// BCCExecutor signal-escalation goroutines exactly.
func (s *SpawnedProcess) Stop() error {
	pgid, err := syscall.Getpgid(s.Pid)
	if err != nil {
		pgid = s.Pid
	}

	done := make(chan struct{})
	go func() {
		_, _ = s.cmd.Process.Wait()
		close(done)
	}()

	_ = syscall.Kill(-pgid, syscall.SIGINT)

	select {
	case <-done:
		return nil
	case <-time.After(gracePeriod):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-done
		return nil
	}
}
