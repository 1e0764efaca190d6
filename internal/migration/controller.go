package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/caps-tum/autopin-plus-sub000/internal/sampling"
)

// Config configures one MigrationController.
type Config struct {
	Pid                 int
	SensePeriod         time.Duration // default 10s, per spec §4.7
	MaxSingleMigrate    int           // MAX_SINGLE_MIGRATE batch size
	SignificanceThreshold uint64      // 0 disables the filter
	TargetNodes         []int         // nodes counted as "successfully moved"
	Log                 *slog.Logger
}

// Report summarises one sense/migrate pass.
type Report struct {
	Candidates int
	Migrated   int
	Dropped    int
	Failed     int
}

// Controller drives the sense -> decide-and-migrate pipeline of spec
// §4.7 against one SamplingEngine.
type Controller struct {
	cfg    Config
	engine *sampling.Engine
	mover  PageMover
}

// New creates a Controller. mover is usually NewSyscallMover(); tests
// substitute a fake.
func New(cfg Config, engine *sampling.Engine, mover PageMover) *Controller {
	if cfg.MaxSingleMigrate <= 0 {
		cfg.MaxSingleMigrate = 512
	}
	if cfg.SensePeriod <= 0 {
		cfg.SensePeriod = 10 * time.Second
	}
	return &Controller{cfg: cfg, engine: engine, mover: mover}
}

// Sense is Phase 1: let the SamplingEngine accumulate for the configured
// sensing period, or until ctx is cancelled (observed process exit).
func (c *Controller) Sense(ctx context.Context) {
	select {
	case <-time.After(c.cfg.SensePeriod):
	case <-ctx.Done():
	}
}

// DecideAndMigrate is Phase 2: pauses sampling, resolves each
// candidate's destination node, migrates the survivors in batches of at
// most MaxSingleMigrate, counts how many ended up on a target node, then
// resumes sampling for a remeasure phase.
func (c *Controller) DecideAndMigrate() (Report, error) {
	c.engine.PauseForMigration()
	defer c.engine.ResumeSampling()

	candidates := c.engine.MigrationCandidates()
	report := Report{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return report, nil
	}

	addrs := make([]uintptr, len(candidates))
	for i, p := range candidates {
		addrs[i] = uintptr(p)
	}

	currentNodes, err := c.mover.Query(c.cfg.Pid, addrs)
	if err != nil {
		c.warnf("query current residency: %v", err)
		return report, err
	}

	var migrateAddrs []uintptr
	var migrateDest []int
	stats := c.engine.Stats()

	for i, page := range candidates {
		ps, ok := stats.Get(page)
		if !ok {
			c.warnf("candidate page %x missing from access table, skipping", page)
			continue
		}
		home := currentNodes[i]
		dest, winner := argmaxTieHome(ps.PerNode, home)
		if dest == home {
			report.Dropped++
			continue
		}
		if c.cfg.SignificanceThreshold > 0 && winner < c.cfg.SignificanceThreshold {
			report.Dropped++
			continue
		}
		migrateAddrs = append(migrateAddrs, addrs[i])
		migrateDest = append(migrateDest, dest)
	}

	for start := 0; start < len(migrateAddrs); start += c.cfg.MaxSingleMigrate {
		end := start + c.cfg.MaxSingleMigrate
		if end > len(migrateAddrs) {
			end = len(migrateAddrs)
		}
		if _, err := c.mover.Move(c.cfg.Pid, migrateAddrs[start:end], migrateDest[start:end]); err != nil {
			c.warnf("move_pages batch [%d:%d]: %v", start, end, err)
			report.Failed += end - start
		}
	}

	if len(migrateAddrs) > 0 {
		finalNodes, err := c.mover.Query(c.cfg.Pid, migrateAddrs)
		if err != nil {
			c.warnf("post-migration query: %v", err)
		} else {
			targetSet := make(map[int]bool, len(c.cfg.TargetNodes))
			for _, n := range c.cfg.TargetNodes {
				targetSet[n] = true
			}
			for _, n := range finalNodes {
				if len(targetSet) == 0 || targetSet[n] {
					report.Migrated++
				}
			}
		}
	}

	return report, nil
}

func (c *Controller) warnf(format string, args ...any) {
	if c.cfg.Log != nil {
		c.cfg.Log.Warn("migration: " + fmt.Sprintf(format, args...))
	}
}

// argmaxTieHome returns the node with the highest count, ties broken
// toward home, per spec §4.7, plus the winning count.
func argmaxTieHome(perNode []uint64, home int) (dest int, winnerCount uint64) {
	dest = home
	if home >= 0 && home < len(perNode) {
		winnerCount = perNode[home]
	}
	for node, count := range perNode {
		if count > winnerCount {
			dest = node
			winnerCount = count
		}
	}
	return dest, winnerCount
}
