package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mskumargvd/arushi-cloud/internal/agent"
	"github.com/mskumargvd/arushi-cloud/internal/auth"
	"github.com/mskumargvd/arushi-cloud/internal/blocklist"
	"github.com/mskumargvd/arushi-cloud/internal/commands"
	"github.com/mskumargvd/arushi-cloud/internal/firewall"
	"github.com/mskumargvd/arushi-cloud/internal/logging"
	"github.com/mskumargvd/arushi-cloud/internal/metrics"
	"github.com/mskumargvd/arushi-cloud/internal/status"
	"github.com/mskumargvd/arushi-cloud/internal/threat"
	"github.com/mskumargvd/arushi-cloud/internal/transport"
	"github.com/mskumargvd/arushi-cloud/pkg/config"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
	"github.com/mskumargvd/arushi-cloud/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, logLevel, statusAddr string

	flagSet := pflag.NewFlagSet("arushi-agent", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "agent.yaml", "path to the agent configuration file")
	flagSet.StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flagSet.StringVar(&statusAddr, "status-addr", "", "override status.addr (\"off\" disables the endpoint)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	platform := models.DetectPlatform(runtime.GOOS)

	cfg, err := config.LoadOrSetup(configPath, platform, config.NewPrompter(os.Stdin, os.Stdout))
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if statusAddr != "" {
		cfg.Status.Addr = statusAddr
	}

	logger := logging.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format, cfg.Agent.ID)
	slog.SetDefault(logger)

	hostname, err := os.Hostname()
	if err != nil {
		logger.Warn("Could not read hostname", "error", err)
	}
	hostname = utils.FirstNonEmpty(hostname, "unknown")
	identity := models.AgentIdentity{ID: cfg.Agent.ID, Platform: platform, Hostname: hostname}

	if err := utils.EnsureDir(cfg.Agent.DataDir); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}

	issuer, err := auth.NewIssuer(cfg.Server.Secret, cfg.Connection.TokenTTL)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ws, err := transport.NewWebSocket(transport.Config{
		ServerURL:      cfg.Server.URL,
		Identity:       identity,
		Tokens:         issuer,
		ConnectTimeout: cfg.Connection.ConnectTimeout,
	}, logging.Component(logger, "transport"))
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	m := metrics.NewMetrics()

	blocked, err := blocklist.Load(cfg.BlocklistPath())
	if err != nil {
		return fmt.Errorf("blocked apps: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdLogger := logging.Component(logger, "commands")
	generic := commands.NewGeneric(
		commands.ProfileFor(platform),
		commands.NewExecRunner(cfg.Commands.ExecTimeout),
		blocked,
		cfg.Commands.ProcessLimit,
		cmdLogger,
	)

	var fw *commands.Firewall
	if platform == models.PlatformFreeBSD {
		api := firewall.NewClient(firewall.Config{
			BaseURL: cfg.Firewall.URL,
			Key:     cfg.Firewall.Key,
			Secret:  cfg.Firewall.Secret,
			Timeout: cfg.Firewall.Timeout,
		})
		fw = commands.NewFirewall(api, cfg.Firewall.Alias, blocked, cfg.BackupDir(), cmdLogger)
		if err := fw.Reconcile(ctx); err != nil {
			logger.Warn("Could not reconcile blocked apps with the firewall", "error", err)
		}
	}
	executor := commands.ForPlatform(platform, generic, fw, cmdLogger)

	supervisor := agent.NewSupervisor(agent.Config{
		Identity:          identity,
		HeartbeatInterval: cfg.Connection.HeartbeatInterval,
		RetryInterval:     cfg.Connection.RetryInterval,
		FlushPause:        cfg.Connection.FlushPause,
		BufferCapacity:    cfg.Connection.BufferCapacity,
	}, ws, agent.NewStatsCollector(cfg.Agent.ID, logging.Component(logger, "stats")), executor, m, logging.Component(logger, "supervisor"))

	tailer := threat.NewTailer(threat.Config{
		EvePath:     cfg.Threat.EvePath,
		Poll:        cfg.Threat.Poll,
		MinInterval: cfg.Threat.SynthMinInterval,
		MaxInterval: cfg.Threat.SynthMaxInterval,
		Scale: threat.Scale{
			Min:               cfg.Threat.SeverityMin,
			Max:               cfg.Threat.SeverityMax,
			LowerIsMoreSevere: cfg.LowerSeverityIsWorse(),
		},
	}, ws, m, logging.Component(logger, "threat"))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tailer.Run(ctx); err != nil {
			logger.Error("Threat tailer stopped", "error", err)
		}
	}()

	if cfg.StatusEnabled() {
		srv := status.NewServer(cfg.Status.Addr, supervisor, blocked, tailer.Mode(), m, logging.Component(logger, "status"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				logger.Error("Status endpoint stopped", "error", err)
			}
		}()
	}

	logger.Info("Arushi agent starting",
		"platform", platform,
		"hostname", hostname,
		"server", ws.URL(),
		"threat_mode", tailer.Mode(),
		"firewall", fw != nil,
	)

	err = supervisor.Run(ctx)
	stop()
	wg.Wait()

	logger.Info("Arushi agent stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
