// autopind — NUMA-aware thread pinning and page migration controller.
//
// Attaches to or spawns target processes, drives a ControlStrategy over
// their threads, and optionally migrates their hot pages between NUMA
// nodes based on hardware sampling.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caps-tum/autopin-plus-sub000/internal/config"
	historyfile "github.com/caps-tum/autopin-plus-sub000/internal/history"
	"github.com/caps-tum/autopin-plus-sub000/internal/logging"
	"github.com/caps-tum/autopin-plus-sub000/internal/mcpsrv"
	"github.com/caps-tum/autopin-plus-sub000/internal/output"
	"github.com/caps-tum/autopin-plus-sub000/internal/topology"
	"github.com/caps-tum/autopin-plus-sub000/internal/watchdog"
)

var version = "0.1.0"

// usageError marks an error that should exit with code 2 (spec §6); any
// other error exits with code 1.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	rootCmd := &cobra.Command{
		Use:           "autopind",
		Short:         "NUMA-aware thread pinning and page migration controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Print version and exit")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Println("autopind", version)
			os.Exit(0)
		}
		return nil
	}
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.AddCommand(newRunCmd(), newHistoryCmd(), newCapabilitiesCmd(), newMCPCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "autopind:", err)
		var uerr *usageError
		if isUsageError(err, &uerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func isUsageError(err error, target **usageError) bool {
	for err != nil {
		if u, ok := err.(*usageError); ok {
			*target = u
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// newRunCmd builds the default `run` subcommand: one Watchdog per -c
// target config, torn down together on SIGINT/SIGTERM, per spec §6's
// CLI surface and §5's cancellation policy.
func newRunCmd() *cobra.Command {
	var (
		daemon       bool
		configPaths  []string
		globalConfig string
		servemcp     bool
		quiet        bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Attach to or spawn targets and start their control strategies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				globalConfig = args[0]
			}
			if len(configPaths) == 0 {
				return &usageError{fmt.Errorf("at least one -c/--config is required")}
			}
			progress := output.NewVerboseProgress(!quiet, verbose)

			log, err := buildLogger(globalConfig)
			if err != nil {
				return err
			}

			topo, err := topology.Load("/sys/devices/system/node")
			if err != nil {
				return fmt.Errorf("load NUMA topology: %w", err)
			}
			progress.Debug("topology loaded: %d nodes, %d cores", topo.NodeCount(), topo.CoreCount())

			reg := watchdog.NewRegistry()
			var watchdogs []*watchdog.Watchdog
			for _, path := range configPaths {
				cfg, err := config.Parse(path)
				if err != nil {
					return fmt.Errorf("target %q: %w", path, err)
				}
				name := targetName(path)
				w := watchdog.New(name, cfg, topo, log)
				reg.Add(w)
				watchdogs = append(watchdogs, w)
				progress.Log("target %q loaded from %s", name, path)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var mcpErr error
			if servemcp {
				mcpCtx, mcpCancel := context.WithCancel(ctx)
				defer mcpCancel()
				go func() {
					srv := mcpsrv.NewServer(version, reg)
					mcpErr = srv.Start(mcpCtx)
				}()
				progress.Log("MCP introspection server listening on stdio")
			}

			if daemon {
				log.Info("running in daemon mode", "targets", len(watchdogs))
			}
			progress.Log("starting %d target(s)", len(watchdogs))

			var wg sync.WaitGroup
			runErrs := make([]error, len(watchdogs))
			for i, w := range watchdogs {
				wg.Add(1)
				go func(i int, w *watchdog.Watchdog) {
					defer wg.Done()
					runErrs[i] = w.Run(ctx)
				}(i, w)
			}
			wg.Wait()

			for _, err := range runErrs {
				if err != nil {
					return err
				}
			}
			return mcpErr
		},
	}

	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Run without foreground interaction")
	cmd.Flags().StringArrayVarP(&configPaths, "config", "c", nil, "Per-target configuration file (repeatable)")
	cmd.Flags().BoolVar(&servemcp, "mcp", false, "Also serve MCP introspection tools over stdio while running")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	cmd.Flags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug progress output")
	return cmd
}

// targetName derives a registry name from a config file path: its base
// name without extension.
func targetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func buildLogger(globalConfigPath string) (*slog.Logger, error) {
	cfg := config.New()
	if globalConfigPath != "" {
		parsed, err := config.Parse(globalConfigPath)
		if err != nil {
			return nil, fmt.Errorf("global config %q: %w", globalConfigPath, err)
		}
		cfg = parsed
	}
	return logging.New(logging.Config{
		Type: cfg.Get("log.type", "stdout"),
		File: cfg.Get("log.file", ""),
	}), nil
}

// newHistoryCmd prints the best-per-phase pinning of a saved XML
// pinning-history file (spec §6), for inspection outside a running
// Watchdog.
func newHistoryCmd() *cobra.Command {
	var coreCount int
	var outPath string

	type bestEntry struct {
		Phase   int     `json:"phase"`
		Value   float64 `json:"value"`
		Pinning string  `json:"pinning"`
	}

	cmd := &cobra.Command{
		Use:   "history <file.xml>",
		Short: "Print the best-per-phase pinning recorded in a history file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cores := coreCount
			if cores == 0 {
				topo, err := topology.Load("/sys/devices/system/node")
				if err != nil {
					return fmt.Errorf("infer core count: %w (pass --cores explicitly)", err)
				}
				cores = topo.CoreCount()
			}
			hist, _, err := historyfile.Load(args[0], cores)
			if err != nil {
				return err
			}
			var entries []bestEntry
			for _, phase := range hist.Phases() {
				best, ok := hist.Best(phase)
				if !ok {
					continue
				}
				entries = append(entries, bestEntry{Phase: phase, Value: best.Value, Pinning: best.Pinning.Encode()})
			}
			return output.WriteJSON(entries, outPath)
		},
	}
	cmd.Flags().IntVar(&coreCount, "cores", 0, "Core count to allocate the decoded pinning for (0 = infer from host NUMA topology)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

// newCapabilitiesCmd reports the NUMA topology this host exposes, the
// closest diagnostic analogue to teacher's `capabilities` subcommand.
func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Show NUMA topology detected on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := topology.Load("/sys/devices/system/node")
			if err != nil {
				return err
			}
			fmt.Printf("nodes: %d\n", topo.NodeCount())
			fmt.Printf("cores: %d\n", topo.CoreCount())
			for _, node := range topo.Nodes() {
				fmt.Printf("  node %d: cores %v\n", node, topo.CoresOfNode(node))
			}
			return nil
		},
	}
}

// newMCPCmd starts a standalone MCP server with an empty Registry for
// discovery purposes; combine `run --mcp` to introspect live targets
// from the same process.
func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start a Model Context Protocol (MCP) introspection server over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := watchdog.NewRegistry()
			srv := mcpsrv.NewServer(version, reg)
			return srv.Start(ctx)
		},
	}
}
