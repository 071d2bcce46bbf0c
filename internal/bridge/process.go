package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats summarises a pane's process tree.
type ProcessStats struct {
	Target     string    `json:"target"`
	PID        int       `json:"pid"`
	Command    string    `json:"command"`
	Processes  int       `json:"processes"`
	CPUPercent float64   `json:"cpuPercent"`
	RSS        uint64    `json:"rss"`
	StartedAt  time.Time `json:"startedAt"`
}

// maxTreeDepth bounds the child walk below the pane process.
const maxTreeDepth = 10

// Status reports resource usage for the session's first pane and all of
// its descendants.
func (b *TmuxBridge) Status(ctx context.Context, name string) (*ProcessStats, error) {
	panes, err := b.Panes(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(panes) == 0 {
		return nil, fmt.Errorf("%w: %s has no panes", ErrNoSession, name)
	}
	stats, err := TreeStats(ctx, panes[0].PanePID)
	if err != nil {
		return nil, err
	}
	stats.Target = panes[0].Target
	return stats, nil
}

// TreeStats aggregates CPU and memory for pid and its descendants. Command
// names the descendant with the largest resident set, which for a pane is
// normally the game server rather than the wrapping shell.
func TreeStats(ctx context.Context, pid int) (*ProcessStats, error) {
	root, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}

	stats := &ProcessStats{PID: pid}
	if created, err := root.CreateTimeWithContext(ctx); err == nil {
		stats.StartedAt = time.UnixMilli(created)
	}

	var largest uint64
	var walk func(p *process.Process, depth int)
	walk = func(p *process.Process, depth int) {
		stats.Processes++
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			stats.CPUPercent += cpu
		}
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			stats.RSS += mem.RSS
			if mem.RSS >= largest {
				largest = mem.RSS
				if name, err := p.NameWithContext(ctx); err == nil {
					stats.Command = name
				}
			}
		}
		if depth >= maxTreeDepth {
			return
		}
		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			return
		}
		for _, c := range children {
			walk(c, depth+1)
		}
	}
	walk(root, 0)

	return stats, nil
}
