// Package migration implements the two-phase sense/migrate pipeline of
// spec §4.7: accumulate PEBS remote-access candidates, resolve each
// page's destination NUMA node, and call move_pages to relocate it.
// Grounded directly on other_examples' intel-cri-resource-manager
// pagemigrate/demoter.go, which is the only repo in the corpus that
// calls move_pages for exactly this purpose (a two-call query-then-move
// pattern, chunked by a maximum batch size) — this package keeps that
// shape but fixes the destination-node array addressing per the
// specification's corrected semantics (see movePages' doc comment).
package migration

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// movePagesSyscallNo is the x86_64 move_pages(2) syscall number. There
// is no golang.org/x/sys/unix wrapper for move_pages (only for its
// simpler mbind/set_mempolicy cousins), so it is invoked directly, the
// same way the corpus's other raw-syscall NUMA code does (the cgo
// wrapper in other_examples' marchproxy numa-manager is not reused: cgo
// is foreign to this corpus's otherwise pure-Go idiom).
const movePagesSyscallNo = 279

const (
	mpolMFMove     = 1 << 1 // MPOL_MF_MOVE
	mpolMFMoveAll  = 1 << 2 // MPOL_MF_MOVE_ALL
)

// PageMover issues move_pages queries and migrations. Implemented
// directly against the kernel; a fake is substituted in tests.
type PageMover interface {
	// Query resolves the current NUMA node of each page in addrs for
	// pid, without migrating anything (nodes argument is null at the
	// syscall level).
	Query(pid int, addrs []uintptr) (nodes []int, err error)
	// Move migrates each page in addrs to the corresponding entry of
	// dest, returning the resulting node (or a negative errno) per page.
	Move(pid int, addrs []uintptr, dest []int) (status []int, err error)
}

// syscallMover is the real PageMover, talking to the kernel via
// move_pages(2).
type syscallMover struct{}

// NewSyscallMover returns the production PageMover.
func NewSyscallMover() PageMover { return syscallMover{} }

func (syscallMover) Query(pid int, addrs []uintptr) ([]int, error) {
	return movePages(pid, addrs, nil)
}

func (syscallMover) Move(pid int, addrs []uintptr, dest []int) ([]int, error) {
	return movePages(pid, addrs, dest)
}

// movePages wraps the move_pages(2) syscall. When dest is nil, it is a
// query: the kernel reports each page's current node without moving
// it. When dest is non-nil, dest[k] is the destination node for
// addrs[k] — the NATURAL, spec-required addressing. (The source this
// specification was distilled from allocated a nodes array sized
// number_pages2move but wrote the destination for batch index k to
// nodes[k+1], leaving nodes[0] uninitialised; that off-by-one is not
// reproduced here.)
func movePages(pid int, addrs []uintptr, dest []int) ([]int, error) {
	count := len(addrs)
	if count == 0 {
		return nil, nil
	}
	if dest != nil && len(dest) != count {
		return nil, fmt.Errorf("migration: dest length %d != addrs length %d", len(dest), count)
	}

	pages := make([]uint64, count)
	for i, a := range addrs {
		pages[i] = uint64(a)
	}

	var nodesPtr unsafe.Pointer
	var nodesBuf []int32
	if dest != nil {
		nodesBuf = make([]int32, count)
		for i, d := range dest {
			nodesBuf[i] = int32(d) // nodes[k] addresses addrs[k] directly
		}
		nodesPtr = unsafe.Pointer(&nodesBuf[0])
	}

	status := make([]int32, count)

	_, _, errno := unix.Syscall6(
		movePagesSyscallNo,
		uintptr(pid),
		uintptr(count),
		uintptr(unsafe.Pointer(&pages[0])),
		uintptr(nodesPtr),
		uintptr(unsafe.Pointer(&status[0])),
		uintptr(mpolMFMove),
	)
	if errno != 0 {
		return nil, fmt.Errorf("move_pages: %w", errno)
	}

	out := make([]int, count)
	for i, s := range status {
		out[i] = int(s)
	}
	return out, nil
}
