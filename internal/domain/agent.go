package domain

import (
	"fmt"
	"path/filepath"
)

// AgentRecord is the inventory service's view of one collector.
type AgentRecord struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	IsDown      bool   `json:"isDown"`
	Platform    string `json:"platform"`
}

// PlatformKind is the OS family a collector can be installed on.
type PlatformKind int

const (
	PlatformUnsupported PlatformKind = iota
	PlatformLinux
	PlatformWindows
)

func (k PlatformKind) String() string {
	switch k {
	case PlatformLinux:
		return "linux"
	case PlatformWindows:
		return "windows"
	default:
		return "unsupported"
	}
}

// ParsePlatformKind maps a GOOS value to a PlatformKind.
func ParsePlatformKind(goos string) PlatformKind {
	switch goos {
	case "linux":
		return PlatformLinux
	case "windows":
		return PlatformWindows
	default:
		return PlatformUnsupported
	}
}

// Platform describes the host the installer runs on.
type Platform struct {
	Kind PlatformKind
	// Arch is 32 or 64, taken from the native pointer width.
	Arch int
}

// Installation is the local side of a collector.
type Installation struct {
	InstallDir string
	Platform   Platform
}

const installerPrefix = "logicmonitorsetup"

// BinaryPath returns where the installer for collector id is cached.
func (i Installation) BinaryPath(id int) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("collector id %d is not assigned", id)
	}
	name := fmt.Sprintf("%s%d_%d.bin", installerPrefix, id, i.Platform.Arch)
	return filepath.Join(i.InstallDir, name), nil
}

// AgentDir is the directory the installer unpacks the collector into.
func (i Installation) AgentDir() string {
	return filepath.Join(i.InstallDir, "agent")
}

// UninstallerPath is the script shipped with an installed collector.
func (i Installation) UninstallerPath() string {
	return filepath.Join(i.AgentDir(), "bin", "uninstall.pl")
}

// ServiceStatus is the state reported by the OS service manager.
type ServiceStatus string

const (
	ServiceRunning ServiceStatus = "running"
	ServiceStopped ServiceStatus = "stopped"
)

// Collector OS services.
const (
	AgentService    = "logicmonitor-agent"
	WatchdogService = "logicmonitor-watchdog"
)
