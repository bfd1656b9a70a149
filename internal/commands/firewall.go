package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mskumargvd/arushi-cloud/internal/blocklist"
	"github.com/mskumargvd/arushi-cloud/internal/firewall"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
	"github.com/mskumargvd/arushi-cloud/pkg/utils"
)

const (
	// BlockDescriptionPrefix marks resolver overrides created by the agent
	BlockDescriptionPrefix = "Arushi Block: "

	// firewallLogLimit caps the rows returned by check_logs
	firewallLogLimit = 50
)

// FirewallAPI is the appliance API used by the Firewall handler
type FirewallAPI interface {
	FirewallLog(ctx context.Context, limit int) ([]firewall.LogRow, error)
	DownloadBackup(ctx context.Context) ([]byte, error)
	AddToAlias(ctx context.Context, alias, address string) error
	AddHostOverride(ctx context.Context, domain, description string) error
	SearchHostOverrides(ctx context.Context) ([]firewall.HostOverride, error)
	DeleteHostOverride(ctx context.Context, uuid string) error
	ReconfigureResolver(ctx context.Context) error
}

// BlockReport is the result of block_app on a firewall
type BlockReport struct {
	App     string   `json:"app"`
	Blocked int      `json:"blocked"`
	Errors  []string `json:"errors"`
}

// UnblockReport is the result of unblock_app on a firewall
type UnblockReport struct {
	App     string   `json:"app"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors"`
}

// BackupReport is the result of backup_config
type BackupReport struct {
	Bytes      int    `json:"bytes"`
	SavedTo    string `json:"saved_to,omitempty"`
	Compressed int    `json:"compressed_bytes,omitempty"`
}

// Firewall handles the commands a firewall appliance enforces through its
// API. Everything else is left to the next handler.
type Firewall struct {
	api       FirewallAPI
	alias     string
	blocked   *blocklist.Store
	backupDir string
	logger    *slog.Logger
	now       func() time.Time
}

// NewFirewall creates the firewall handler. Backups are kept in backupDir
// unless it is empty.
func NewFirewall(api FirewallAPI, alias string, blocked *blocklist.Store, backupDir string, logger *slog.Logger) *Firewall {
	if alias == "" {
		alias = "ARUSHI_BLOCKLIST"
	}
	return &Firewall{
		api:       api,
		alias:     alias,
		blocked:   blocked,
		backupDir: backupDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle implements Handler
func (f *Firewall) Handle(ctx context.Context, req models.CommandRequest) (models.CommandResult, bool) {
	payload := Payload(req.Payload)

	switch req.Command {
	case CmdCheckLogs, CmdGetLogs:
		return f.logs(ctx), true
	case CmdBackupConfig:
		return f.backup(ctx), true
	case CmdBlockIP:
		return f.blockIP(ctx, payload), true
	case CmdBlockApp:
		return f.blockApp(ctx, payload), true
	case CmdUnblockApp:
		return f.unblockApp(ctx, payload), true
	default:
		return models.CommandResult{}, false
	}
}

func (f *Firewall) logs(ctx context.Context) models.CommandResult {
	rows, err := f.api.FirewallLog(ctx, firewallLogLimit)
	if err != nil {
		f.apiFailed("firewall log", err)
		return Failure("%v", err)
	}
	return Success(rows)
}

// apiFailed logs an appliance error, flagging credential problems
func (f *Firewall) apiFailed(op string, err error) {
	if firewall.IsUnauthorized(err) {
		f.logger.Error("Firewall rejected the API credentials, check firewall.key and firewall.secret",
			"op", op, "status", firewall.StatusCode(err))
		return
	}
	f.logger.Warn("Firewall API call failed", "op", op, "status", firewall.StatusCode(err), "error", err)
}

func (f *Firewall) backup(ctx context.Context) models.CommandResult {
	data, err := f.api.DownloadBackup(ctx)
	if err != nil {
		f.apiFailed("backup", err)
		return Failure("backup failed: %v", err)
	}

	report := BackupReport{Bytes: len(data)}
	if f.backupDir != "" {
		path, size, err := f.saveBackup(data)
		if err != nil {
			f.logger.Warn("Failed to keep local backup copy", "error", err)
		} else {
			report.SavedTo = path
			report.Compressed = size
		}
	}

	f.logger.Info("Configuration backup retrieved",
		"size", utils.FormatBytes(uint64(report.Bytes)),
		"stored", utils.FormatBytes(uint64(report.Compressed)),
		"saved_to", report.SavedTo)
	return Success(report)
}

func (f *Firewall) saveBackup(data []byte) (string, int, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return "", 0, err
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()

	path := filepath.Join(f.backupDir, utils.TimestampedName("config", "xml.zst", f.now()))
	if err := utils.WriteFileAtomic(path, compressed, 0600); err != nil {
		return "", 0, err
	}
	return path, len(compressed), nil
}

func (f *Firewall) blockIP(ctx context.Context, payload Payload) models.CommandResult {
	ip := payload.String("ip")
	if ip == "" {
		return Failure("no ip given")
	}
	if net.ParseIP(ip) == nil {
		if _, _, err := net.ParseCIDR(ip); err != nil {
			return Failure("invalid ip address: %s", ip)
		}
	}

	if err := f.api.AddToAlias(ctx, f.alias, ip); err != nil {
		f.apiFailed("alias add", err)
		return Failure("block failed: %v", err)
	}
	f.logger.Info("Address added to blocklist", "ip", ip, "alias", f.alias)
	return Success(fmt.Sprintf("IP %s added to %s", ip, f.alias))
}

// blockApp sinkholes every domain of the app. Domains fail independently
// and the app is recorded once at least one domain is blocked.
func (f *Firewall) blockApp(ctx context.Context, payload Payload) models.CommandResult {
	app := payload.String("app")
	if err := validateAppName(app); err != nil {
		return Failure("%v", err)
	}
	domains := payload.Strings("domains")
	if len(domains) == 0 {
		return Failure("no domains given for %s", app)
	}

	report := BlockReport{App: app, Errors: []string{}}
	description := BlockDescriptionPrefix + app
	for _, domain := range domains {
		if err := validateDomain(domain); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", domain, err))
			continue
		}
		if err := f.api.AddHostOverride(ctx, domain, description); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", domain, err))
			continue
		}
		report.Blocked++
	}

	if err := f.api.ReconfigureResolver(ctx); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("reconfigure: %v", err))
	}

	if report.Blocked == 0 {
		return Failure("failed to block %s: %s", app, strings.Join(report.Errors, "; "))
	}

	if err := f.blocked.Add(app); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	f.logger.Info("App blocked", "app", app, "domains", report.Blocked, "errors", len(report.Errors))
	return Success(report)
}

// unblockApp deletes the app's overrides. The app leaves the local set
// even when the appliance cannot be reached.
func (f *Firewall) unblockApp(ctx context.Context, payload Payload) models.CommandResult {
	app := payload.String("app")
	if app == "" {
		return Failure("no app given")
	}
	domains := make(map[string]bool)
	for _, d := range payload.Strings("domains") {
		domains[d] = true
	}

	removeErr := f.blocked.Remove(app)

	overrides, err := f.api.SearchHostOverrides(ctx)
	if err != nil {
		f.apiFailed("search host overrides", err)
		return Failure("unblock failed: %v", err)
	}

	report := UnblockReport{App: app, Errors: []string{}}
	description := BlockDescriptionPrefix + app
	for _, o := range overrides {
		if strings.TrimSpace(o.Description) != description {
			continue
		}
		if len(domains) > 0 && !domains[o.Domain] {
			continue
		}
		if err := f.api.DeleteHostOverride(ctx, o.UUID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", o.Domain, err))
			continue
		}
		report.Removed++
	}

	if err := f.api.ReconfigureResolver(ctx); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("reconfigure: %v", err))
	}
	if removeErr != nil {
		report.Errors = append(report.Errors, removeErr.Error())
	}

	f.logger.Info("App unblocked", "app", app, "removed", report.Removed)
	return Success(report)
}

// Reconcile replaces the local block list with the apps that still have
// agent-created overrides on the appliance
func (f *Firewall) Reconcile(ctx context.Context) error {
	overrides, err := f.api.SearchHostOverrides(ctx)
	if err != nil {
		return fmt.Errorf("failed to list host overrides: %w", err)
	}

	seen := make(map[string]bool)
	var apps []string
	for _, o := range overrides {
		if !strings.HasPrefix(o.Description, BlockDescriptionPrefix) {
			continue
		}
		app := strings.TrimSpace(strings.TrimPrefix(o.Description, BlockDescriptionPrefix))
		if app != "" && !seen[app] {
			seen[app] = true
			apps = append(apps, app)
		}
	}

	local := f.blocked.Len()
	if err := f.blocked.Replace(apps); err != nil {
		return err
	}
	f.logger.Info("Block list reconciled with firewall", "local", local, "firewall", len(apps))
	return nil
}
