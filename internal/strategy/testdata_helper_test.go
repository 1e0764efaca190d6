package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

// twoNodeFourCoreTopology builds the spec §8 S1/S2 fixture: 2 nodes of 4
// cores each, distance 10 within a node and 21 across nodes.
func twoNodeFourCoreTopology(t *testing.T) *topology.Topology {
	t.Helper()
	root := t.TempDir()
	write := func(path, content string) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(root, "online"), "0-1\n")
	write(filepath.Join(root, "node0", "cpulist"), "0-3\n")
	write(filepath.Join(root, "node1", "cpulist"), "4-7\n")
	write(filepath.Join(root, "node0", "distance"), "10 21\n")
	write(filepath.Join(root, "node1", "distance"), "21 10\n")

	topo, err := topology.Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return topo
}
