// Package osservices wraps the OS boundary: process spawn, ptrace
// attach/detach, CPU affinity, /proc scraping, and the UNIX comm
// channel, per spec §4.2. It follows the teacher's procfs-scraping idiom
// (internal/collector/process.go: os.ReadDir + strconv.Atoi + manual
// /proc/<pid>/stat field parsing) generalized from "read metrics" to
// "read process/thread topology".
package osservices

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
)

// Services is the OS-boundary wrapper owned by one Watchdog.
type Services struct {
	procRoot string

	procMu   sync.Mutex // serializes /proc scans, per spec §5
	attachMu sync.Mutex // serializes tracer attach, per spec §5

	comm *commChannel
}

// New creates a Services bound to procRoot (default "/proc", overridable
// for tests exactly like the teacher's CollectConfig.ProcRoot).
func New(procRoot string) *Services {
	if procRoot == "" {
		procRoot = "/proc"
	}
	return &Services{procRoot: procRoot}
}

// PidOf resolves a process name to the set of matching pids by scanning
// /proc/<pid>/comm. An ambiguous name (more than one match) is reported
// by the caller, not here — this just returns every match.
func (s *Services) PidOf(name string) (map[int]bool, error) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return nil, errs.New(errs.System, "read_proc", err)
	}
	out := make(map[int]bool)
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(s.procRoot, e.Name(), "comm"))
		if err != nil {
			continue // task exited mid-scan: non-fatal, spec §4.2
		}
		if strings.TrimSpace(string(comm)) == name {
			out[pid] = true
		}
	}
	return out, nil
}

// CmdOf returns the command line of pid, joined with spaces.
func (s *Services) CmdOf(pid int) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.procRoot, strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return "", errs.New(errs.System, "cmd_of", err)
	}
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	return strings.Join(parts, " "), nil
}

// ThreadsOf returns the tids of pid by listing /proc/<pid>/task.
func (s *Services) ThreadsOf(pid int) (map[int]bool, error) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.procRoot, strconv.Itoa(pid), "task"))
	if err != nil {
		return nil, errs.New(errs.System, "get_threads", err)
	}
	out := make(map[int]bool, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		out[tid] = true
	}
	return out, nil
}

// ChildrenOf returns every pid whose parent is pid, by scanning
// /proc/*/stat field 4 (ppid).
func (s *Services) ChildrenOf(pid int) (map[int]bool, error) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	entries, err := os.ReadDir(s.procRoot)
	if err != nil {
		return nil, errs.New(errs.System, "read_proc", err)
	}
	out := make(map[int]bool)
	for _, e := range entries {
		childPid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		fields, err := readStatFields(filepath.Join(s.procRoot, e.Name(), "stat"))
		if err != nil {
			continue
		}
		if len(fields) > 1 {
			ppid, err := strconv.Atoi(fields[1])
			if err == nil && ppid == pid {
				out[childPid] = true
			}
		}
	}
	return out, nil
}

// TaskSortKey returns the task's creation timestamp, field 22 (0-indexed
// 19 after comm) of /proc/<tid>/stat, used for deterministic peer-task
// ordering per spec §4.2.
func (s *Services) TaskSortKey(tid int) (int64, error) {
	fields, err := readStatFields(filepath.Join(s.procRoot, strconv.Itoa(tid), "stat"))
	if err != nil {
		return 0, errs.New(errs.System, "task_sort_key", err)
	}
	// fields here are the whitespace-split tokens AFTER the ")" closing
	// comm, so field index 0 is state, and starttime is the 22nd /proc
	// stat field overall == index 19 in this post-comm slice.
	const startTimeIdx = 19
	if len(fields) <= startTimeIdx {
		return 0, errs.New(errs.System, "task_sort_key", fmt.Errorf("short stat line"))
	}
	v, err := strconv.ParseInt(fields[startTimeIdx], 10, 64)
	if err != nil {
		return 0, errs.New(errs.System, "task_sort_key", err)
	}
	return v, nil
}

// readStatFields parses /proc/<pid>/stat, splitting out "(comm)" (which
// may itself contain spaces and parens) and returning [state, ppid, ...]
// as the whitespace-split remainder, matching the teacher's
// internal/collector/process.go parsing idiom exactly.
func readStatFields(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := string(data)
	commEnd := strings.LastIndex(s, ")")
	if commEnd < 0 {
		return nil, fmt.Errorf("malformed stat: %q", path)
	}
	return strings.Fields(s[commEnd+2:]), nil
}
