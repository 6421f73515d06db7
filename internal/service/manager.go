package service

import (
	"fmt"
	"os"

	"github.com/logicmonitor/collector-agent/internal/system"
)

// systemdRunDir exists only when systemd is the running init system.
var systemdRunDir = "/run/systemd/system"

// NewManager returns the Manager for backend: "systemd", "sysv", or "auto"
// which picks systemd when it is the running init system.
func NewManager(backend string, runner system.Runner) (Manager, error) {
	switch backend {
	case "systemd":
		return NewSystemd(), nil
	case "sysv":
		return NewSysV(runner), nil
	case "auto", "":
		if info, err := os.Stat(systemdRunDir); err == nil && info.IsDir() {
			return NewSystemd(), nil
		}
		return NewSysV(runner), nil
	default:
		return nil, fmt.Errorf("unknown service backend %q", backend)
	}
}
