package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/caps-tum/autopin-plus-sub000/internal/watchdog"
)

func handleListWatchdogs(reg *watchdog.Registry) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names := reg.Names()
		sort.Strings(names)
		jsonData, err := json.MarshalIndent(names, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

func handleGetPinning(reg *watchdog.Registry) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := getArgs(request)
		name := stringArg(args, "name", "")
		w, err := reg.Get(name)
		if err != nil {
			return errResult(err.Error()), nil
		}

		p := w.CurrentPinning()
		occupied := map[int]string{}
		for tid := range allKnownTids(w) {
			core := p.CoreOf(tid)
			if core >= 0 {
				occupied[core] = fmt.Sprintf("%d", tid)
			}
		}

		summary := map[string]interface{}{
			"name":     name,
			"encoded":  p.Encode(),
			"occupied": occupied,
		}
		jsonData, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

// allKnownTids walks the observed process tree to recover the tid set a
// Pinning's CoreOf lookups can be run against; get_pinning has no other
// source for "which tids exist" since Pinning itself only tracks
// assigned slots, not the full task universe.
func allKnownTids(w *watchdog.Watchdog) map[int]bool {
	out := map[int]bool{}
	tree, err := w.ProcessTree()
	if err != nil {
		return out
	}
	for _, tid := range tree.AllTids() {
		out[tid] = true
	}
	return out
}

func handleGetProcessTree(reg *watchdog.Registry) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := getArgs(request)
		name := stringArg(args, "name", "")
		w, err := reg.Get(name)
		if err != nil {
			return errResult(err.Error()), nil
		}

		tree, err := w.ProcessTree()
		if err != nil {
			return errResult(err.Error()), nil
		}

		type node struct {
			Pid  int   `json:"pid"`
			Tids []int `json:"tids"`
		}
		var nodes []node
		for pid, n := range tree.Nodes {
			var tids []int
			for tid := range n.Tids {
				tids = append(tids, tid)
			}
			sort.Ints(tids)
			nodes = append(nodes, node{Pid: pid, Tids: tids})
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Pid < nodes[j].Pid })

		summary := map[string]interface{}{
			"root_pid": tree.RootPid,
			"nodes":    nodes,
		}
		jsonData, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

func handleGetHistory(reg *watchdog.Registry) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := getArgs(request)
		name := stringArg(args, "name", "")
		w, err := reg.Get(name)
		if err != nil {
			return errResult(err.Error()), nil
		}

		hist := w.History()
		if hist == nil {
			return errResult(fmt.Sprintf("watchdog %q: no history available", name)), nil
		}

		type bestEntry struct {
			Phase   int     `json:"phase"`
			Value   float64 `json:"value"`
			Pinning string  `json:"pinning"`
		}
		var entries []bestEntry
		for _, phase := range hist.Phases() {
			best, ok := hist.Best(phase)
			if !ok {
				continue
			}
			entries = append(entries, bestEntry{Phase: phase, Value: best.Value, Pinning: best.Pinning.Encode()})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Phase < entries[j].Phase })

		jsonData, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

func handleGetMonitorValues(reg *watchdog.Registry) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := getArgs(request)
		name := stringArg(args, "name", "")
		w, err := reg.Get(name)
		if err != nil {
			return errResult(err.Error()), nil
		}

		type taskValue struct {
			Tid   int     `json:"tid"`
			Value float64 `json:"value"`
		}
		result := map[string][]taskValue{}
		names := w.MonitorNames()
		sort.Strings(names)
		for _, mon := range names {
			tids, err := w.MonitoredTasks(mon)
			if err != nil {
				continue
			}
			sort.Ints(tids)
			var values []taskValue
			for _, tid := range tids {
				v, err := w.MonitorValue(mon, tid)
				if err != nil {
					continue
				}
				values = append(values, taskValue{Tid: tid, Value: v})
			}
			result[mon] = values
		}

		jsonData, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}
}

func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}
