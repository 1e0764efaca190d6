package watchdog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caps-tum/autopin-plus-sub000/internal/config"
	"github.com/caps-tum/autopin-plus-sub000/internal/logging"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
)

func fixtureTopology(t *testing.T) *topology.Topology {
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
	write(filepath.Join(root, "online"), "0\n")
	write(filepath.Join(root, "node0", "cpulist"), "0-3\n")
	write(filepath.Join(root, "node0", "distance"), "10\n")
	topo, err := topology.Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return topo
}

// TestBuildNoopWithRandomMonitor exercises Watchdog.build end-to-end for
// a config that never touches real hardware: ControlStrategy=noop and a
// Random monitor.
func TestBuildNoopWithRandomMonitor(t *testing.T) {
	cfg := config.New()
	cfg.Set("ControlStrategy", "noop")
	cfg.Set("PerformanceMonitors", "m1")
	cfg.Set("m1.type", "random")
	cfg.Set("m1.valtype", "MAX")
	cfg.Set("m1.rand_min", "0")
	cfg.Set("m1.rand_max", "10")

	w := New("t1", cfg, fixtureTopology(t), logging.New(logging.Config{}))
	if err := w.build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(w.monitors) != 1 {
		t.Fatalf("monitors = %d, want 1", len(w.monitors))
	}
	if w.strat == nil {
		t.Fatal("strategy not built")
	}
}

func TestBuildUnknownControlStrategyFails(t *testing.T) {
	cfg := config.New()
	cfg.Set("ControlStrategy", "bogus")

	w := New("t2", cfg, fixtureTopology(t), logging.New(logging.Config{}))
	if err := w.build(); err == nil {
		t.Fatal("expected error for unknown ControlStrategy")
	}
}
