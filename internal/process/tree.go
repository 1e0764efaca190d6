// Package process implements ObservedProcess and its ProcessTree
// snapshot (spec §3, §4.4): attaching to or spawning a target, driving
// its tracer, and rebuilding an immutable breadth-first view of its
// pid/tid structure. Grounded on the teacher's orchestrator.go "registry
// + goroutine dispatch + join" idiom, generalized from parallel collector
// dispatch to sequential process-tree discovery.
package process

// TreeNode is one process in a ProcessTree: its own tids plus its
// children, keyed by pid.
type TreeNode struct {
	Pid      int
	Tids     map[int]bool
	Children map[int]*TreeNode
}

func newNode(pid int) *TreeNode {
	return &TreeNode{Pid: pid, Tids: make(map[int]bool), Children: make(map[int]*TreeNode)}
}

// Tree is a rooted, immutable snapshot keyed by pid. A tid appears in
// exactly one node.
type Tree struct {
	RootPid int
	Nodes   map[int]*TreeNode
}

// AllTids returns every tid across the whole tree.
func (t *Tree) AllTids() []int {
	var out []int
	for _, n := range t.Nodes {
		for tid := range n.Tids {
			out = append(out, tid)
		}
	}
	return out
}

// Contains reports whether pid is part of the tree.
func (t *Tree) Contains(pid int) bool {
	_, ok := t.Nodes[pid]
	return ok
}
