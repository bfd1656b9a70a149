package commands

import (
	"github.com/mskumargvd/arushi-cloud/pkg/models"
)

// Profile describes how the generic commands are carried out on one
// platform. A nil PkgUpdate means the platform has no package manager the
// agent drives, and PkgAdvisory is returned instead.
type Profile struct {
	Platform    models.Platform
	Ping        []string
	Logs        []string
	PkgUpdate   []string
	PkgAdvisory string
}

const pingTarget = "8.8.8.8"

// ProfileFor returns the command profile of a platform
func ProfileFor(platform models.Platform) Profile {
	switch platform {
	case models.PlatformWindows:
		return Profile{
			Platform: platform,
			Ping:     []string{"ping", "-n", "4", pingTarget},
			Logs: []string{"powershell", "-NoProfile", "-Command",
				"Get-EventLog -LogName System -Newest 20 | Format-Table -AutoSize"},
			PkgAdvisory: "Package updates are managed by Windows Update on this host",
		}

	case models.PlatformFreeBSD:
		return Profile{
			Platform:  platform,
			Ping:      []string{"ping", "-c", "4", pingTarget},
			Logs:      []string{"tail", "-n", "20", "/var/log/messages"},
			PkgUpdate: []string{"pkg", "update"},
		}

	case models.PlatformDarwin:
		return Profile{
			Platform:    platform,
			Ping:        []string{"ping", "-c", "4", pingTarget},
			Logs:        []string{"tail", "-n", "20", "/var/log/system.log"},
			PkgAdvisory: "Package updates are managed by Software Update on this host",
		}

	default:
		return Profile{
			Platform:  platform,
			Ping:      []string{"ping", "-c", "4", pingTarget},
			Logs:      []string{"tail", "-n", "20", "/var/log/syslog"},
			PkgUpdate: []string{"apt", "update"},
		}
	}
}
