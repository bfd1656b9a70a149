package firewall

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mskumargvd/arushi-cloud/pkg/utils"
)

const (
	// maxBackupSize bounds a configuration download
	maxBackupSize = 64 * 1024 * 1024
	maxBodySize   = 8 * 1024 * 1024

	// SinkholeAddress is where blocked domains resolve to
	SinkholeAddress = "0.0.0.0"
)

// Config holds firewall API settings
type Config struct {
	BaseURL string
	Key     string
	Secret  string
	Timeout time.Duration
}

// Client talks to the firewall appliance REST API. The appliance uses a
// self-signed certificate, so TLS verification is disabled.
type Client struct {
	baseURL string
	key     string
	secret  string
	http    *http.Client

	maxBackup int64
}

// HostOverride is a resolver host override entry
type HostOverride struct {
	UUID        string `json:"uuid"`
	Enabled     string `json:"enabled,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Domain      string `json:"domain"`
	Server      string `json:"server,omitempty"`
	Description string `json:"description"`
}

// LogRow is one firewall log entry as returned by the appliance
type LogRow map[string]any

// NewClient creates a firewall API client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true,
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		key:     config.Key,
		secret:  config.Secret,
		http: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		maxBackup: maxBackupSize,
	}
}

// FirewallLog returns at most limit of the newest firewall log rows
func (c *Client) FirewallLog(ctx context.Context, limit int) ([]LogRow, error) {
	var resp struct {
		Rows []LogRow `json:"rows"`
	}
	if err := c.getJSON(ctx, "/diagnostics/log/core/firewall", &resp); err != nil {
		return nil, err
	}

	rows := resp.Rows
	if rows == nil {
		rows = []LogRow{}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// DownloadBackup retrieves the appliance configuration
func (c *Client) DownloadBackup(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/core/backup/download", nil, c.maxBackup)
}

// AddToAlias adds an address to the named alias
func (c *Client) AddToAlias(ctx context.Context, alias, address string) error {
	var resp struct {
		Status string `json:"status"`
	}
	path := "/firewall/alias_util/add/" + url.PathEscape(alias)
	if err := c.postJSON(ctx, path, map[string]string{"address": address}, &resp); err != nil {
		return err
	}
	if strings.EqualFold(resp.Status, "failed") {
		return fmt.Errorf("%w: alias %s", ErrRejected, alias)
	}
	return nil
}

// AddHostOverride maps domain to the sinkhole address
func (c *Client) AddHostOverride(ctx context.Context, domain, description string) error {
	body := map[string]any{
		"host_override": map[string]string{
			"enabled":     "1",
			"domain":      domain,
			"server":      SinkholeAddress,
			"description": description,
		},
	}

	var resp struct {
		Result      string         `json:"result"`
		Validations map[string]any `json:"validations"`
	}
	if err := c.postJSON(ctx, "/unbound/settings/addHostOverride", body, &resp); err != nil {
		return err
	}
	if strings.EqualFold(resp.Result, "failed") {
		return fmt.Errorf("%w: %v", ErrRejected, resp.Validations)
	}
	return nil
}

// SearchHostOverrides lists all resolver host overrides
func (c *Client) SearchHostOverrides(ctx context.Context) ([]HostOverride, error) {
	var resp struct {
		Rows []HostOverride `json:"rows"`
	}
	if err := c.getJSON(ctx, "/unbound/settings/searchHostOverride", &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// DeleteHostOverride removes the override with the given uuid
func (c *Client) DeleteHostOverride(ctx context.Context, uuid string) error {
	return c.postJSON(ctx, "/unbound/settings/delHostOverride/"+url.PathEscape(uuid), nil, nil)
}

// ReconfigureResolver applies pending resolver changes
func (c *Client) ReconfigureResolver(ctx context.Context) error {
	return c.postJSON(ctx, "/unbound/service/reconfigure", nil, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil, maxBodySize)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		// The appliance expects a JSON body on every POST
		body = strings.NewReader("{}")
	}

	data, err := c.do(ctx, http.MethodPost, path, body, maxBodySize)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	// One byte past the limit tells a full body from a cut one
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	tooLarge := int64(len(data)) > limit
	if tooLarge {
		data = data[:limit]
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: %s is over %s", ErrResponseTooLarge, path, utils.FormatBytes(uint64(limit)))
	}
	return data, nil
}
