package daemon

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/gitvan/gitvan/daemon/worker"
	"github.com/gitvan/gitvan/pack/cache"
)

// Status is a point-in-time view of the daemon for the status command.
type Status struct {
	State         State        `json:"state"`
	PID           int          `json:"pid"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Head          string       `json:"head,omitempty"`
	Branch        string       `json:"branch,omitempty"`
	Workers       worker.Stats `json:"workers"`
	Cache         cache.Stats  `json:"cache"`
	MemoryUsedMB  float64      `json:"memory_used_mb"`
	MemoryPercent float64      `json:"memory_percent"`
	CPUPercent    float64      `json:"cpu_percent"`
}

// Status snapshots the daemon and its host process. Resource metrics are
// best effort; a failing probe leaves its fields zero.
func (d *Daemon) Status(ctx context.Context) *Status {
	d.mu.Lock()
	s := &Status{
		State: d.state,
		PID:   os.Getpid(),
		Cache: d.cache.Stats(),
	}
	if d.state == StateRunning {
		s.UptimeSeconds = int64(time.Since(d.startedAt).Seconds())
	}
	pool := d.pool
	d.mu.Unlock()

	if pool != nil {
		s.Workers = pool.Stats()
	}
	if head, err := d.runner.RevParse(ctx, d.ec, "HEAD"); err == nil {
		s.Head = head
	}
	if branch, err := d.runner.CurrentBranch(ctx, d.ec); err == nil {
		s.Branch = branch
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			s.MemoryUsedMB = float64(info.RSS) / 1024 / 1024
		}
		if pct, err := proc.CPUPercent(); err == nil {
			s.CPUPercent = pct
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryPercent = vm.UsedPercent
	}
	return s
}
