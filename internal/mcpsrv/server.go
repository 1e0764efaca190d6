// Package mcpsrv exposes read-only introspection over running
// Watchdogs via the Model Context Protocol, adapted from the teacher's
// internal/mcp (server.go/handlers.go): same mark3labs/mcp-go
// server/stdio wiring, narrowed to a closed set of inspection tools
// instead of collection tools.
package mcpsrv

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/caps-tum/autopin-plus-sub000/internal/watchdog"
)

// Server wraps the MCP server instance bound to a Registry of running
// Watchdogs.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server exposing reg's watchdogs.
func NewServer(version string, reg *watchdog.Registry) *Server {
	s := server.NewMCPServer("autopind", version, server.WithLogging())
	registerTools(s, reg)
	return &Server{mcpServer: s}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func registerTools(s *server.MCPServer, reg *watchdog.Registry) {
	listTool := mcp.NewTool("list_watchdogs",
		mcp.WithDescription("List every currently running target name."),
	)
	s.AddTool(listTool, handleListWatchdogs(reg))

	pinningTool := mcp.NewTool("get_pinning",
		mcp.WithDescription("Return the current CPU pinning (encoded core list, and core -> tid) for a target."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Target name, from list_watchdogs.")),
	)
	s.AddTool(pinningTool, handleGetPinning(reg))

	treeTool := mcp.NewTool("get_process_tree",
		mcp.WithDescription("Return the observed process tree (root pid, and each pid with its tids) for a target."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Target name, from list_watchdogs.")),
	)
	s.AddTool(treeTool, handleGetProcessTree(reg))

	historyTool := mcp.NewTool("get_history",
		mcp.WithDescription("Return the recorded PinningHistory best-per-phase entries for a target."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Target name, from list_watchdogs.")),
	)
	s.AddTool(historyTool, handleGetHistory(reg))

	monitorsTool := mcp.NewTool("get_monitor_values",
		mcp.WithDescription("Return each configured PerformanceMonitor's current value per monitored task, for a target."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Target name, from list_watchdogs.")),
	)
	s.AddTool(monitorsTool, handleGetMonitorValues(reg))
}
