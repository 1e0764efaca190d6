package mcpsrv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/caps-tum/autopin-plus-sub000/internal/config"
	"github.com/caps-tum/autopin-plus-sub000/internal/logging"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
	"github.com/caps-tum/autopin-plus-sub000/internal/watchdog"
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

func builtRegistry(t *testing.T, name string) *watchdog.Registry {
	t.Helper()
	cfg := config.New()
	cfg.Set("ControlStrategy", "noop")
	cfg.Set("PerformanceMonitors", "m1")
	cfg.Set("m1.type", "random")
	cfg.Set("m1.valtype", "MAX")

	w := watchdog.New(name, cfg, fixtureTopology(t), logging.New(logging.Config{}))
	if err := w.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	reg := watchdog.NewRegistry()
	reg.Add(w)
	return reg
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) string {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %v", res.Content)
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestListWatchdogs(t *testing.T) {
	reg := builtRegistry(t, "target1")
	out := callTool(t, handleListWatchdogs(reg), nil)

	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(names) != 1 || names[0] != "target1" {
		t.Fatalf("names = %v, want [target1]", names)
	}
}

func TestGetPinningUnknownTarget(t *testing.T) {
	reg := builtRegistry(t, "target1")
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{"name": "nope"}
	res, err := handleGetPinning(reg)(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool-level error for unknown target")
	}
}

func TestGetMonitorValues(t *testing.T) {
	reg := builtRegistry(t, "target1")
	out := callTool(t, handleGetMonitorValues(reg), map[string]interface{}{"name": "target1"})
	if !strings.Contains(out, "m1") {
		t.Fatalf("monitor values output = %q, want to contain m1", out)
	}
}
