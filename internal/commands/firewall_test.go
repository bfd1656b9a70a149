package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mskumargvd/arushi-cloud/internal/firewall"
	"github.com/mskumargvd/arushi-cloud/internal/logging"
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// fakeFirewallAPI is an in-memory appliance
type fakeFirewallAPI struct {
	mu sync.Mutex

	rows        int
	logErr      error
	backup      []byte
	aliasErr    error
	failDomains map[string]bool
	searchErr   error
	deleteErr   error

	aliases      map[string][]string
	overrides    []firewall.HostOverride
	reconfigures int
	nextID       int
}

func (f *fakeFirewallAPI) FirewallLog(ctx context.Context, limit int) ([]firewall.LogRow, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	n := f.rows
	if n > limit {
		n = limit
	}
	rows := make([]firewall.LogRow, n)
	for i := range rows {
		rows[i] = firewall.LogRow{"rnr": i}
	}
	return rows, nil
}

func (f *fakeFirewallAPI) DownloadBackup(ctx context.Context) ([]byte, error) {
	if f.backup == nil {
		return []byte("<opnsense/>"), nil
	}
	return f.backup, nil
}

func (f *fakeFirewallAPI) AddToAlias(ctx context.Context, alias, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.aliasErr != nil {
		return f.aliasErr
	}
	if f.aliases == nil {
		f.aliases = make(map[string][]string)
	}
	f.aliases[alias] = append(f.aliases[alias], address)
	return nil
}

func (f *fakeFirewallAPI) AddHostOverride(ctx context.Context, domain, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDomains[domain] {
		return &firewall.APIError{StatusCode: 500, Body: "boom"}
	}
	f.nextID++
	f.overrides = append(f.overrides, firewall.HostOverride{
		UUID:        fmt.Sprintf("u-%d", f.nextID),
		Domain:      domain,
		Server:      firewall.SinkholeAddress,
		Description: description,
	})
	return nil
}

func (f *fakeFirewallAPI) SearchHostOverrides(ctx context.Context) ([]firewall.HostOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]firewall.HostOverride(nil), f.overrides...), nil
}

func (f *fakeFirewallAPI) DeleteHostOverride(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, o := range f.overrides {
		if o.UUID == uuid {
			f.overrides = append(f.overrides[:i], f.overrides[i+1:]...)
			return nil
		}
	}
	return &firewall.APIError{StatusCode: 404, Body: "not found"}
}

func (f *fakeFirewallAPI) ReconfigureResolver(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconfigures++
	return nil
}

func newTestFirewall(t *testing.T, api *fakeFirewallAPI) *Firewall {
	t.Helper()
	return NewFirewall(api, "ARUSHI_BLOCKLIST", newTestStore(t), t.TempDir(), logging.Discard())
}

func blockReq(app string, domains ...string) models.CommandRequest {
	list := make([]any, len(domains))
	for i, d := range domains {
		list[i] = d
	}
	return models.CommandRequest{Command: CmdBlockApp, Payload: map[string]any{"app": app, "domains": list}}
}

func TestBlockAppPartialSuccess(t *testing.T) {
	api := &fakeFirewallAPI{failDomains: map[string]bool{"cdn.tiktok.com": true}}
	fw := newTestFirewall(t, api)

	result, ok := fw.Handle(context.Background(), blockReq("tiktok", "tiktok.com", "cdn.tiktok.com", "tiktokv.com"))
	require.True(t, ok)
	require.False(t, result.Failed(), result.Error)

	report, isReport := result.Output.(BlockReport)
	require.True(t, isReport)
	assert.Equal(t, 2, report.Blocked)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "cdn.tiktok.com")
	assert.Contains(t, report.Errors[0], "API Error 500")

	assert.True(t, fw.blocked.Contains("tiktok"))
	assert.Equal(t, 1, api.reconfigures)
	for _, o := range api.overrides {
		assert.Equal(t, "Arushi Block: tiktok", o.Description)
		assert.Equal(t, "0.0.0.0", o.Server)
	}
}

func TestBlockAppAllDomainsFail(t *testing.T) {
	api := &fakeFirewallAPI{failDomains: map[string]bool{"a.com": true, "b.com": true}}
	fw := newTestFirewall(t, api)

	result, _ := fw.Handle(context.Background(), blockReq("games", "a.com", "b.com"))
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "failed to block games")
	assert.False(t, fw.blocked.Contains("games"))
}

func TestBlockAppNeedsDomains(t *testing.T) {
	fw := newTestFirewall(t, &fakeFirewallAPI{})

	result, _ := fw.Handle(context.Background(), blockReq("games"))
	assert.True(t, result.Failed())
	assert.False(t, fw.blocked.Contains("games"))
}

func TestUnblockApp(t *testing.T) {
	api := &fakeFirewallAPI{}
	fw := newTestFirewall(t, api)
	ctx := context.Background()

	fw.Handle(ctx, blockReq("tiktok", "tiktok.com", "tiktokv.com"))
	fw.Handle(ctx, blockReq("tik", "tiktok.com"))
	require.Len(t, api.overrides, 3)

	result, ok := fw.Handle(ctx, models.CommandRequest{
		Command: CmdUnblockApp,
		Payload: map[string]any{"app": "tiktok", "domains": []any{"tiktok.com", "tiktokv.com"}},
	})
	require.True(t, ok)
	require.False(t, result.Failed(), result.Error)

	report := result.Output.(UnblockReport)
	assert.Equal(t, 2, report.Removed)
	assert.Empty(t, report.Errors)

	// The override of a different app sharing a domain is left alone
	require.Len(t, api.overrides, 1)
	assert.Equal(t, "Arushi Block: tik", api.overrides[0].Description)
	assert.False(t, fw.blocked.Contains("tiktok"))
	assert.True(t, fw.blocked.Contains("tik"))
}

func TestUnblockAppRemovesLocallyWhenAPIDown(t *testing.T) {
	api := &fakeFirewallAPI{}
	fw := newTestFirewall(t, api)
	require.NoError(t, fw.blocked.Add("tiktok"))

	api.searchErr = errors.New("connection failed: dial tcp: refused")
	result, _ := fw.Handle(context.Background(), models.CommandRequest{
		Command: CmdUnblockApp,
		Payload: map[string]any{"app": "tiktok"},
	})

	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "unblock failed")
	assert.False(t, fw.blocked.Contains("tiktok"))
}

func TestBlockIP(t *testing.T) {
	api := &fakeFirewallAPI{}
	fw := newTestFirewall(t, api)
	ctx := context.Background()

	result, _ := fw.Handle(ctx, models.CommandRequest{Command: CmdBlockIP, Payload: map[string]any{"ip": "203.0.113.9"}})
	require.False(t, result.Failed(), result.Error)
	assert.Equal(t, []string{"203.0.113.9"}, api.aliases["ARUSHI_BLOCKLIST"])

	result, _ = fw.Handle(ctx, models.CommandRequest{Command: CmdBlockIP, Payload: map[string]any{"ip": "198.51.100.0/24"}})
	assert.False(t, result.Failed(), result.Error)

	result, _ = fw.Handle(ctx, models.CommandRequest{Command: CmdBlockIP, Payload: map[string]any{"ip": "not-an-ip"}})
	assert.Equal(t, "invalid ip address: not-an-ip", result.Error)

	result, _ = fw.Handle(ctx, models.CommandRequest{Command: CmdBlockIP, Payload: map[string]any{}})
	assert.Equal(t, "no ip given", result.Error)

	api.aliasErr = &firewall.APIError{StatusCode: 400, Body: "alias not found"}
	result, _ = fw.Handle(ctx, models.CommandRequest{Command: CmdBlockIP, Payload: map[string]any{"ip": "203.0.113.10"}})
	assert.Equal(t, "block failed: API Error 400: alias not found", result.Error)
}

func TestFirewallLogs(t *testing.T) {
	api := &fakeFirewallAPI{rows: 120}
	fw := newTestFirewall(t, api)

	result, ok := fw.Handle(context.Background(), models.CommandRequest{Command: CmdGetLogs})
	require.True(t, ok)
	rows := result.Output.([]firewall.LogRow)
	assert.Len(t, rows, 50)

	api.logErr = &firewall.APIError{StatusCode: 401, Body: "unauthorized"}
	result, _ = fw.Handle(context.Background(), models.CommandRequest{Command: CmdCheckLogs})
	assert.Equal(t, "API Error 401: unauthorized", result.Error)
}

func TestBackupConfigKeepsCompressedCopy(t *testing.T) {
	config := []byte("<opnsense><system><hostname>fw</hostname></system></opnsense>")
	fw := newTestFirewall(t, &fakeFirewallAPI{backup: config})
	fw.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }

	result, ok := fw.Handle(context.Background(), models.CommandRequest{Command: CmdBackupConfig})
	require.True(t, ok)
	require.False(t, result.Failed(), result.Error)

	report := result.Output.(BackupReport)
	assert.Equal(t, len(config), report.Bytes)
	assert.Contains(t, report.SavedTo, "config-20260301-123000.xml.zst")

	compressed, err := os.ReadFile(report.SavedTo)
	require.NoError(t, err)
	assert.Equal(t, len(compressed), report.Compressed)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	restored, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)
	assert.Equal(t, config, restored)
}

func TestGetBlockedAppsFallsThrough(t *testing.T) {
	fw := newTestFirewall(t, &fakeFirewallAPI{})
	_, ok := fw.Handle(context.Background(), models.CommandRequest{Command: CmdGetBlockedApps})
	assert.False(t, ok)
}

func TestReconcile(t *testing.T) {
	api := &fakeFirewallAPI{overrides: []firewall.HostOverride{
		{UUID: "1", Domain: "tiktok.com", Description: "Arushi Block: tiktok"},
		{UUID: "2", Domain: "tiktokv.com", Description: "Arushi Block: tiktok"},
		{UUID: "3", Domain: "roblox.com", Description: "Arushi Block: roblox"},
		{UUID: "4", Domain: "intranet.lan", Description: "manual entry"},
	}}
	fw := newTestFirewall(t, api)
	require.NoError(t, fw.blocked.Add("stale-app"))

	require.NoError(t, fw.Reconcile(context.Background()))
	assert.Equal(t, []string{"roblox", "tiktok"}, fw.blocked.List())
}

func TestReconcileKeepsLocalSetWhenAPIDown(t *testing.T) {
	api := &fakeFirewallAPI{searchErr: errors.New("connection failed")}
	fw := newTestFirewall(t, api)
	require.NoError(t, fw.blocked.Add("tiktok"))

	assert.Error(t, fw.Reconcile(context.Background()))
	assert.Equal(t, []string{"tiktok"}, fw.blocked.List())
}
