package commands

import (
	"context"
	"sort"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// DefaultProcessLimit is how many processes get_processes reports
const DefaultProcessLimit = 20

// procHandle is the part of a gopsutil process the lister reads
type procHandle interface {
	NameWithContext(ctx context.Context) (string, error)
	CPUPercentWithContext(ctx context.Context) (float64, error)
	MemoryPercentWithContext(ctx context.Context) (float32, error)
}

type procEntry struct {
	pid    int32
	handle procHandle
}

// ProcessLister enumerates running processes
type ProcessLister struct {
	list func(ctx context.Context) ([]procEntry, error)
}

// NewProcessLister creates a lister backed by the host process table
func NewProcessLister() *ProcessLister {
	return &ProcessLister{list: hostProcesses}
}

func hostProcesses(ctx context.Context) ([]procEntry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]procEntry, 0, len(procs))
	for _, p := range procs {
		entries = append(entries, procEntry{pid: p.Pid, handle: p})
	}
	return entries, nil
}

// Top returns up to limit processes ordered by CPU usage. Processes that
// exit or deny access while being read are skipped.
func (l *ProcessLister) Top(ctx context.Context, limit int) ([]models.ProcessInfo, error) {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}

	entries, err := l.list(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]models.ProcessInfo, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		info, ok := readProcess(ctx, e)
		if ok {
			infos = append(infos, info)
		}
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CPUPercent > infos[j].CPUPercent
	})
	if len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

func readProcess(ctx context.Context, e procEntry) (models.ProcessInfo, bool) {
	name, err := e.handle.NameWithContext(ctx)
	if err != nil {
		return models.ProcessInfo{}, false
	}
	cpu, err := e.handle.CPUPercentWithContext(ctx)
	if err != nil {
		return models.ProcessInfo{}, false
	}
	mem, err := e.handle.MemoryPercentWithContext(ctx)
	if err != nil {
		return models.ProcessInfo{}, false
	}
	return models.ProcessInfo{
		PID:           e.pid,
		Name:          name,
		CPUPercent:    cpu,
		MemoryPercent: mem,
	}, true
}

// terminateProcess asks the process with pid to exit
func terminateProcess(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}
