package domain

import (
	"errors"
	"fmt"
	"strings"
)

type RPCErrorKind int

const (
	RPCTransport RPCErrorKind = iota + 1
	RPCRemoteRejected
	RPCDecodeFailure
	RPCInvalidRequest
)

func (k RPCErrorKind) String() string {
	switch k {
	case RPCTransport:
		return "transport"
	case RPCRemoteRejected:
		return "remote rejected"
	case RPCDecodeFailure:
		return "decode failure"
	case RPCInvalidRequest:
		return "invalid request"
	default:
		return "unknown"
	}
}

// ErrRPC is returned for every failed call to the inventory service.
type ErrRPC struct {
	Kind   RPCErrorKind
	Action string
	// Status and Msg are set for RPCRemoteRejected.
	Status int
	Msg    string
	Err    error
}

func (e ErrRPC) Error() string {
	switch {
	case e.Kind == RPCRemoteRejected:
		return fmt.Sprintf("rpc %s: %s (status %d): %s", e.Action, e.Kind, e.Status, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("rpc %s: %s: %v", e.Action, e.Kind, e.Err)
	default:
		return fmt.Sprintf("rpc %s: %s", e.Action, e.Kind)
	}
}

func (e ErrRPC) Unwrap() error {
	return e.Err
}

// IsRemoteStatus reports whether err is a remote rejection with the given
// status code, or whose message contains one of the given fragments.
func IsRemoteStatus(err error, status int, fragments ...string) bool {
	var rpcErr ErrRPC
	if !errors.As(err, &rpcErr) || rpcErr.Kind != RPCRemoteRejected {
		return false
	}
	if rpcErr.Status == status {
		return true
	}
	msg := strings.ToLower(rpcErr.Msg)
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

type InstallErrorKind int

const (
	InstallUnsupportedPlatform InstallErrorKind = iota + 1
	InstallDownloadFailed
	InstallerFailed
	InstallUninstallerMissing
	InstallUninstallFailed
)

func (k InstallErrorKind) String() string {
	switch k {
	case InstallUnsupportedPlatform:
		return "unsupported platform"
	case InstallDownloadFailed:
		return "download failed"
	case InstallerFailed:
		return "installer failed"
	case InstallUninstallerMissing:
		return "uninstaller missing"
	case InstallUninstallFailed:
		return "uninstall failed"
	default:
		return "unknown"
	}
}

// ErrInstall reports an installer or uninstaller outcome.
type ErrInstall struct {
	Kind InstallErrorKind
	Path string
	// Code is the process exit code for InstallerFailed and InstallUninstallFailed.
	Code int
	Err  error
}

func (e ErrInstall) Error() string {
	msg := "install: " + e.Kind.String()
	if e.Path != "" {
		msg += " [" + e.Path + "]"
	}
	if e.Kind == InstallerFailed || e.Kind == InstallUninstallFailed {
		msg += fmt.Sprintf(": exit code %d", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ErrInstall) Unwrap() error {
	return e.Err
}

type ServiceErrorKind int

const (
	ServicePlatformUnsupported ServiceErrorKind = iota + 1
	ServiceCommandFailed
	ServiceStatusQueryFailed
)

func (k ServiceErrorKind) String() string {
	switch k {
	case ServicePlatformUnsupported:
		return "platform unsupported"
	case ServiceCommandFailed:
		return "command failed"
	case ServiceStatusQueryFailed:
		return "status query failed"
	default:
		return "unknown"
	}
}

// ErrService reports a failed service control operation.
type ErrService struct {
	Kind    ServiceErrorKind
	Service string
	Op      string
	Code    int
	Err     error
}

func (e ErrService) Error() string {
	msg := "service"
	if e.Service != "" {
		msg += " " + e.Service
	}
	if e.Op != "" {
		msg += " " + e.Op
	}
	msg += ": " + e.Kind.String()
	if e.Kind == ServiceCommandFailed {
		msg += fmt.Sprintf(" (exit code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ErrService) Unwrap() error {
	return e.Err
}
