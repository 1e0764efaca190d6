package migration

import (
	"testing"

	"github.com/caps-tum/autopin-plus-sub000/internal/sampling"
)

// fakeMover tracks the current node of each address in a map, so tests
// can assert the exact destination move_pages was asked to perform.
type fakeMover struct {
	home map[uintptr]int
	lastMoveDest map[uintptr]int
}

func newFakeMover(home map[uintptr]int) *fakeMover {
	return &fakeMover{home: home, lastMoveDest: make(map[uintptr]int)}
}

func (f *fakeMover) Query(pid int, addrs []uintptr) ([]int, error) {
	out := make([]int, len(addrs))
	for i, a := range addrs {
		if d, ok := f.lastMoveDest[a]; ok {
			out[i] = d
		} else {
			out[i] = f.home[a]
		}
	}
	return out, nil
}

func (f *fakeMover) Move(pid int, addrs []uintptr, dest []int) ([]int, error) {
	status := make([]int, len(addrs))
	for i, a := range addrs {
		f.lastMoveDest[a] = dest[i]
		status[i] = dest[i]
	}
	return status, nil
}

func nodeOfCoreFixture(cpu int) int {
	if cpu == 0 {
		return 0
	}
	return 1
}

// TestMigrationDecisionScenarioS3 reproduces spec §8 scenario S3: two
// nodes, one page with 3 samples from node 0 and 7 from node 1, current
// home node 0. With significance threshold 0, the page is migrated to
// node 1; with threshold 8, it is dropped.
func TestMigrationDecisionScenarioS3(t *testing.T) {
	engine := sampling.NewEngine(sampling.Config{ObservedPid: 100, NodeCount: 2, CoreToNode: nodeOfCoreFixture, PageSize: 4096}, nil)
	const page = uintptr(0x4000)
	for i := 0; i < 3; i++ {
		engine.Stats().AddMemAccess(uint64(page), 0)
	}
	for i := 0; i < 7; i++ {
		engine.Stats().AddMemAccess(uint64(page), 1)
	}
	engine.AddPageToMove(uint64(page))

	mover := newFakeMover(map[uintptr]int{page: 0})
	ctrl := New(Config{Pid: 100, TargetNodes: []int{1}}, engine, mover)

	report, err := ctrl.DecideAndMigrate()
	if err != nil {
		t.Fatalf("DecideAndMigrate: %v", err)
	}
	if report.Dropped != 0 || report.Migrated != 1 {
		t.Errorf("report = %+v, want page migrated to node 1", report)
	}
	if mover.lastMoveDest[page] != 1 {
		t.Errorf("destination node = %d, want 1", mover.lastMoveDest[page])
	}
}

func TestMigrationDecisionDroppedBySignificance(t *testing.T) {
	engine := sampling.NewEngine(sampling.Config{ObservedPid: 100, NodeCount: 2, CoreToNode: nodeOfCoreFixture, PageSize: 4096}, nil)
	const page = uintptr(0x4000)
	for i := 0; i < 3; i++ {
		engine.Stats().AddMemAccess(uint64(page), 0)
	}
	for i := 0; i < 7; i++ {
		engine.Stats().AddMemAccess(uint64(page), 1)
	}
	engine.AddPageToMove(uint64(page))

	mover := newFakeMover(map[uintptr]int{page: 0})
	ctrl := New(Config{Pid: 100, SignificanceThreshold: 8, TargetNodes: []int{1}}, engine, mover)

	report, err := ctrl.DecideAndMigrate()
	if err != nil {
		t.Fatalf("DecideAndMigrate: %v", err)
	}
	if report.Dropped != 1 || report.Migrated != 0 {
		t.Errorf("report = %+v, want dropped by significance threshold", report)
	}
	if _, moved := mover.lastMoveDest[page]; moved {
		t.Errorf("page should not have been migrated")
	}
}

func TestMigrationDropsWhenDestEqualsHome(t *testing.T) {
	engine := sampling.NewEngine(sampling.Config{ObservedPid: 100, NodeCount: 2, CoreToNode: nodeOfCoreFixture, PageSize: 4096}, nil)
	const page = uintptr(0x8000)
	for i := 0; i < 5; i++ {
		engine.Stats().AddMemAccess(uint64(page), 0)
	}
	engine.AddPageToMove(uint64(page))

	mover := newFakeMover(map[uintptr]int{page: 0})
	ctrl := New(Config{Pid: 100}, engine, mover)

	report, err := ctrl.DecideAndMigrate()
	if err != nil {
		t.Fatalf("DecideAndMigrate: %v", err)
	}
	if report.Dropped != 1 {
		t.Errorf("report = %+v, want dropped (dest == home)", report)
	}
}
