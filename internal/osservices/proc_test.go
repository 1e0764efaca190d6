package osservices

import (
	"os"
	"path/filepath"
	"testing"
)

func fakeProc(t *testing.T, pid int, comm string, ppid int, startTime int64) string {
	t.Helper()
	root := filepath.Join(t.TempDir())
	dir := filepath.Join(root, itoa(pid))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// field layout after "(comm) ": state ppid pgrp session tty tpgid flags
	// minflt cminflt majflt cmajflt utime stime cutime cstime priority
	// nice threads itrealvalue starttime ...
	stat := itoa(pid) + " (" + comm + ") R " + itoa(ppid) +
		" 1 1 0 -1 0 0 0 0 0 0 0 0 0 0 0 1 0 " + itoa64(startTime) + "\n"
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func itoa(n int) string   { return itoa64(int64(n)) }
func itoa64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestChildrenOf(t *testing.T) {
	root := fakeProc(t, 100, "parent", 1, 1000)
	// add a second pid under the same root as a child of 100
	dir := filepath.Join(root, "200")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte("200 (child) R 100 1 1 0 -1 0 0 0 0 0 0 0 0 0 0 0 1 0 1001\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(root)
	children, err := s.ChildrenOf(100)
	if err != nil {
		t.Fatalf("ChildrenOf: %v", err)
	}
	if !children[200] {
		t.Errorf("expected 200 to be a child of 100, got %v", children)
	}
}

func TestTaskSortKey(t *testing.T) {
	root := fakeProc(t, 100, "proc", 1, 42)
	s := New(root)
	key, err := s.TaskSortKey(100)
	if err != nil {
		t.Fatalf("TaskSortKey: %v", err)
	}
	if key != 42 {
		t.Errorf("TaskSortKey = %d, want 42", key)
	}
}
