package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingRequired is returned when a required setting is absent
var ErrMissingRequired = errors.New("missing required configuration")

// AgentConfig holds complete agent configuration
type AgentConfig struct {
	Agent      AgentSettings      `yaml:"agent"`
	Server     ServerSettings     `yaml:"server"`
	Connection ConnectionSettings `yaml:"connection"`
	Commands   CommandSettings    `yaml:"commands"`
	Firewall   FirewallSettings   `yaml:"firewall"`
	Threat     ThreatSettings     `yaml:"threat"`
	Status     StatusSettings     `yaml:"status"`
	Logging    LoggingSettings    `yaml:"logging"`
}

type AgentSettings struct {
	ID      string `yaml:"id"`
	DataDir string `yaml:"data_dir"`
}

type ServerSettings struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

type ConnectionSettings struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	FlushPause        time.Duration `yaml:"flush_pause"`
	BufferCapacity    int           `yaml:"buffer_capacity"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

type CommandSettings struct {
	ExecTimeout  time.Duration `yaml:"exec_timeout"`
	ProcessLimit int           `yaml:"process_limit"`
}

// FirewallSettings configure the firewall appliance API. Only used on the
// firewall-capable (FreeBSD) variant.
type FirewallSettings struct {
	URL     string        `yaml:"url"`
	Key     string        `yaml:"key"`
	Secret  string        `yaml:"secret"`
	Alias   string        `yaml:"alias"`
	Timeout time.Duration `yaml:"timeout"`
}

type ThreatSettings struct {
	EvePath           string        `yaml:"eve_path"`
	Poll              bool          `yaml:"poll"`
	SynthMinInterval  time.Duration `yaml:"synth_min_interval"`
	SynthMaxInterval  time.Duration `yaml:"synth_max_interval"`
	SeverityMin       int           `yaml:"severity_min"`
	SeverityMax       int           `yaml:"severity_max"`
	LowerIsMoreSevere *bool         `yaml:"lower_is_more_severe"`
}

type StatusSettings struct {
	Addr string `yaml:"addr"`
}

type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${NAME} references to variables that are set.
// Everything else, including a bare $ inside a typed secret, is kept as is.
func expandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRef.FindSubmatch(ref)[1])
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return ref
	})
}

// LoadAgentConfig loads agent configuration from a file
func LoadAgentConfig(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	data = expandEnv(data)

	config := &AgentConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	setAgentDefaults(config)

	return config, nil
}

func setAgentDefaults(c *AgentConfig) {
	if c.Agent.DataDir == "" {
		c.Agent.DataDir = "."
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = 5 * time.Second
	}
	if c.Connection.RetryInterval == 0 {
		c.Connection.RetryInterval = 5 * time.Second
	}
	if c.Connection.FlushPause == 0 {
		c.Connection.FlushPause = 100 * time.Millisecond
	}
	if c.Connection.BufferCapacity == 0 {
		c.Connection.BufferCapacity = 720
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = 10 * time.Second
	}
	if c.Connection.TokenTTL == 0 {
		c.Connection.TokenTTL = 24 * time.Hour
	}
	if c.Commands.ExecTimeout == 0 {
		c.Commands.ExecTimeout = 10 * time.Second
	}
	if c.Commands.ProcessLimit == 0 {
		c.Commands.ProcessLimit = 20
	}
	if c.Firewall.URL == "" {
		c.Firewall.URL = "https://localhost/api"
	}
	if c.Firewall.Alias == "" {
		c.Firewall.Alias = "ARUSHI_BLOCKLIST"
	}
	if c.Firewall.Timeout == 0 {
		c.Firewall.Timeout = 5 * time.Second
	}
	if c.Threat.EvePath == "" {
		c.Threat.EvePath = "/var/log/suricata/eve.json"
	}
	if c.Threat.SynthMinInterval == 0 {
		c.Threat.SynthMinInterval = 2 * time.Second
	}
	if c.Threat.SynthMaxInterval == 0 {
		c.Threat.SynthMaxInterval = 8 * time.Second
	}
	if c.Threat.SeverityMin == 0 {
		c.Threat.SeverityMin = 1
	}
	if c.Threat.SeverityMax == 0 {
		c.Threat.SeverityMax = 3
	}
	if c.Threat.LowerIsMoreSevere == nil {
		lower := true
		c.Threat.LowerIsMoreSevere = &lower
	}
	if c.Status.Addr == "" {
		c.Status.Addr = "127.0.0.1:9273"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the settings the agent cannot run without
func (c *AgentConfig) Validate() error {
	if strings.TrimSpace(c.Server.URL) == "" {
		return fmt.Errorf("%w: server.url", ErrMissingRequired)
	}
	if strings.TrimSpace(c.Server.Secret) == "" {
		return fmt.Errorf("%w: server.secret", ErrMissingRequired)
	}
	if c.Agent.ID == "" {
		return fmt.Errorf("%w: agent.id", ErrMissingRequired)
	}
	if c.Connection.BufferCapacity < 1 {
		return fmt.Errorf("connection.buffer_capacity must be positive")
	}
	if c.Threat.SynthMinInterval > c.Threat.SynthMaxInterval {
		return fmt.Errorf("threat.synth_min_interval must not exceed threat.synth_max_interval")
	}
	if c.Threat.SeverityMin > c.Threat.SeverityMax {
		return fmt.Errorf("threat.severity_min must not exceed threat.severity_max")
	}
	return nil
}

// LowerSeverityIsWorse reports the configured severity direction
func (c *AgentConfig) LowerSeverityIsWorse() bool {
	return c.Threat.LowerIsMoreSevere == nil || *c.Threat.LowerIsMoreSevere
}

// StatusEnabled reports whether the local status endpoint should listen
func (c *AgentConfig) StatusEnabled() bool {
	return c.Status.Addr != "" && !strings.EqualFold(c.Status.Addr, "off")
}

// BlocklistPath is where the blocked application set is persisted
func (c *AgentConfig) BlocklistPath() string {
	return filepath.Join(c.Agent.DataDir, "blocked_apps.json")
}

// BackupDir is where configuration backups are kept
func (c *AgentConfig) BackupDir() string {
	return filepath.Join(c.Agent.DataDir, "backups")
}

// SaveConfig saves a configuration to a file. The file holds secrets and
// is written owner-readable only.
func SaveConfig(path string, config *AgentConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultAgentConfig returns a default agent configuration
func DefaultAgentConfig() *AgentConfig {
	config := &AgentConfig{}
	setAgentDefaults(config)
	return config
}
