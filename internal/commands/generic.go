package commands

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/mskumargvd/arushi-cloud/internal/blocklist"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// Command keys
const (
	CmdPingGoogle     = "ping_google"
	CmdCheckLogs      = "check_logs"
	CmdGetLogs        = "get_logs"
	CmdPkgUpdate      = "pkg_update"
	CmdUptime         = "uptime"
	CmdGetProcesses   = "get_processes"
	CmdKillProcess    = "kill_process"
	CmdBlockApp       = "block_app"
	CmdUnblockApp     = "unblock_app"
	CmdGetBlockedApps = "get_blocked_apps"
	CmdBackupConfig   = "backup_config"
	CmdBlockIP        = "block_ip"
)

var knownCommands = map[string]bool{
	CmdPingGoogle: true, CmdCheckLogs: true, CmdGetLogs: true, CmdPkgUpdate: true,
	CmdUptime: true, CmdGetProcesses: true, CmdKillProcess: true, CmdBlockApp: true,
	CmdUnblockApp: true, CmdGetBlockedApps: true, CmdBackupConfig: true, CmdBlockIP: true,
}

// Generic implements the commands every platform supports, shaped by a
// platform Profile. Blocking an app here only records it locally.
type Generic struct {
	profile      Profile
	runner       Runner
	processes    *ProcessLister
	blocked      *blocklist.Store
	processLimit int
	selfPID      int
	logger       *slog.Logger

	uptime    func(ctx context.Context) (uint64, error)
	terminate func(ctx context.Context, pid int32) error
}

// NewGeneric creates the generic handler
func NewGeneric(profile Profile, runner Runner, blocked *blocklist.Store, processLimit int, logger *slog.Logger) *Generic {
	if processLimit <= 0 {
		processLimit = DefaultProcessLimit
	}
	return &Generic{
		profile:      profile,
		runner:       runner,
		processes:    NewProcessLister(),
		blocked:      blocked,
		processLimit: processLimit,
		selfPID:      os.Getpid(),
		logger:       logger,
		uptime:       host.UptimeWithContext,
		terminate:    terminateProcess,
	}
}

// Handle implements Handler
func (g *Generic) Handle(ctx context.Context, req models.CommandRequest) (models.CommandResult, bool) {
	payload := Payload(req.Payload)

	switch req.Command {
	case CmdPingGoogle:
		return g.run(ctx, g.profile.Ping), true
	case CmdCheckLogs, CmdGetLogs:
		return g.run(ctx, g.profile.Logs), true
	case CmdPkgUpdate:
		if len(g.profile.PkgUpdate) == 0 {
			return Success(g.profile.PkgAdvisory), true
		}
		return g.run(ctx, g.profile.PkgUpdate), true
	case CmdUptime:
		return g.hostUptime(ctx), true
	case CmdGetProcesses:
		return g.getProcesses(ctx), true
	case CmdKillProcess:
		return g.killProcess(ctx, payload), true
	case CmdBlockApp:
		return g.blockApp(payload), true
	case CmdUnblockApp:
		return g.unblockApp(payload), true
	case CmdGetBlockedApps:
		return Success(g.blocked.List()), true
	default:
		return models.CommandResult{}, false
	}
}

func (g *Generic) run(ctx context.Context, argv []string) models.CommandResult {
	if len(argv) == 0 {
		return Failure("not supported on %s", g.profile.Platform)
	}
	output, err := g.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return Failure("%v", err)
	}
	return Success(output)
}

func (g *Generic) hostUptime(ctx context.Context) models.CommandResult {
	secs, err := g.uptime(ctx)
	if err != nil {
		return Failure("failed to read uptime: %v", err)
	}
	return Success(FormatUptime(time.Duration(secs) * time.Second))
}

func (g *Generic) getProcesses(ctx context.Context) models.CommandResult {
	procs, err := g.processes.Top(ctx, g.processLimit)
	if err != nil {
		return Failure("failed to list processes: %v", err)
	}
	return Success(procs)
}

func (g *Generic) killProcess(ctx context.Context, payload Payload) models.CommandResult {
	pid, ok := payload.Int("pid")
	if !ok || pid <= 0 || pid > math.MaxInt32 {
		return Failure("no valid pid given")
	}
	if pid == g.selfPID {
		return Failure("safety: refusing to kill the agent's own process (pid %d)", pid)
	}

	if err := g.terminate(ctx, int32(pid)); err != nil {
		return Failure("failed to kill process %d: %v", pid, err)
	}
	g.logger.Info("Process terminated", "pid", pid)
	return Success(fmt.Sprintf("Killed process %d", pid))
}

func (g *Generic) blockApp(payload Payload) models.CommandResult {
	app := payload.String("app")
	if err := validateAppName(app); err != nil {
		return Failure("%v", err)
	}
	if err := g.blocked.Add(app); err != nil {
		return Failure("%v", err)
	}
	return Success(fmt.Sprintf("Marked %s as blocked (no network enforcement on %s)", app, g.profile.Platform))
}

func (g *Generic) unblockApp(payload Payload) models.CommandResult {
	app := payload.String("app")
	if app == "" {
		return Failure("no app given")
	}
	if err := g.blocked.Remove(app); err != nil {
		return Failure("%v", err)
	}
	return Success(fmt.Sprintf("Unblocked %s", app))
}

// FormatUptime renders d as "up 2 days, 3 hours, 4 minutes"
func FormatUptime(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	return "up " + strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
