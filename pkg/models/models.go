package models

import (
	"strings"
)

// Platform is the operating system family the agent runs on
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformLinux   Platform = "linux"
	PlatformFreeBSD Platform = "freebsd"
	PlatformDarwin  Platform = "darwin"
	PlatformUnknown Platform = "unknown"
)

// DetectPlatform maps a GOOS value to a Platform
func DetectPlatform(goos string) Platform {
	switch strings.ToLower(goos) {
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	case "freebsd":
		return PlatformFreeBSD
	case "darwin":
		return PlatformDarwin
	default:
		return PlatformUnknown
	}
}

// AgentIdentity identifies this agent to the management server.
// It is created once on first run and never changes afterwards.
type AgentIdentity struct {
	ID       string   `json:"id"`
	Platform Platform `json:"platform"`
	Hostname string   `json:"hostname"`
}

// StatSample is one telemetry reading of the host
type StatSample struct {
	CPUPercent  float64 `json:"cpu"`
	RAMPercent  float64 `json:"ram"`
	DiskPercent float64 `json:"disk"`
	UptimeHours uint64  `json:"uptime"`
	AgentID     string  `json:"id"`
}

// CommandRequest is a command dispatched by the server
type CommandRequest struct {
	Command string         `json:"command"`
	Payload map[string]any `json:"payload,omitempty"`
	ID      string         `json:"id"`
}

// CommandResult is the outcome of a CommandRequest. Output is either a
// string or a structured value; Error is set when the command failed.
type CommandResult struct {
	CorrelationID string `json:"correlation_id"`
	Output        any    `json:"output,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Failed reports whether the result carries an error
func (r CommandResult) Failed() bool {
	return r.Error != ""
}

// ThreatEvent is a security alert forwarded to the server
type ThreatEvent struct {
	SrcIP     string `json:"src_ip"`
	DestIP    string `json:"dest_ip"`
	Protocol  string `json:"proto"`
	Signature string `json:"signature"`
	Severity  int    `json:"severity"`
	Level     string `json:"level,omitempty"`
}

// ProcessInfo represents a running process
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
}

// ConnectionState is the state of the link to the management server
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)
