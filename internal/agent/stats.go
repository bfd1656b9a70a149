package agent

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// Sampler takes one telemetry reading of the host
type Sampler interface {
	Sample(ctx context.Context) models.StatSample
}

// StatsCollector samples host utilisation. Each metric that cannot be read
// is left at zero and logged; Sample never fails.
type StatsCollector struct {
	agentID  string
	diskPath string
	logger   *slog.Logger

	cpuPercent  func(ctx context.Context) (float64, error)
	memPercent  func(ctx context.Context) (float64, error)
	diskPercent func(ctx context.Context, path string) (float64, error)
	uptime      func(ctx context.Context) (uint64, error)
}

// NewStatsCollector creates a collector and primes the CPU counters so the
// first Sample reports usage since construction instead of blocking.
func NewStatsCollector(agentID string, logger *slog.Logger) *StatsCollector {
	c := &StatsCollector{
		agentID:     agentID,
		diskPath:    rootPath(runtime.GOOS),
		logger:      logger,
		cpuPercent:  cpuPercent,
		memPercent:  memPercent,
		diskPercent: diskPercent,
		uptime:      host.UptimeWithContext,
	}

	if _, err := c.cpuPercent(context.Background()); err != nil {
		logger.Warn("CPU baseline unavailable", "error", err)
	}
	return c
}

// Sample returns the current reading
func (c *StatsCollector) Sample(ctx context.Context) models.StatSample {
	sample := models.StatSample{AgentID: c.agentID}

	if v, err := c.cpuPercent(ctx); err != nil {
		c.logger.Warn("Failed to read CPU usage", "error", err)
	} else {
		sample.CPUPercent = v
	}

	if v, err := c.memPercent(ctx); err != nil {
		c.logger.Warn("Failed to read memory usage", "error", err)
	} else {
		sample.RAMPercent = v
	}

	if v, err := c.diskPercent(ctx, c.diskPath); err != nil {
		c.logger.Warn("Failed to read disk usage", "path", c.diskPath, "error", err)
	} else {
		sample.DiskPercent = v
	}

	if secs, err := c.uptime(ctx); err != nil {
		c.logger.Warn("Failed to read uptime", "error", err)
	} else {
		sample.UptimeHours = secs / 3600
	}

	return sample
}

func rootPath(goos string) string {
	if goos == "windows" {
		return `C:\`
	}
	return "/"
}

// cpuPercent returns aggregate usage since the previous call
func cpuPercent(ctx context.Context) (float64, error) {
	values, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	return values[0], nil
}

func memPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func diskPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}
