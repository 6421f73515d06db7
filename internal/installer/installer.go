// Package installer downloads, caches and runs the collector installer.
package installer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/logicmonitor/collector-agent/internal/domain"
	"github.com/logicmonitor/collector-agent/internal/rpc"
	"github.com/logicmonitor/collector-agent/internal/system"
)

const actionDownload = "logicmonitorsetup"

// Installer places a collector on this host.
type Installer struct {
	rpc      rpc.Caller
	runner   system.Runner
	platform domain.Platform
	logger   *slog.Logger
}

func NewInstaller(caller rpc.Caller, runner system.Runner, platform domain.Platform, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		rpc:      caller,
		runner:   runner,
		platform: platform,
		logger:   logger,
	}
}

// EnsureInstalled makes sure the installer for rec is cached under dir and
// that the collector is installed. It returns the installer path; when the
// installer exits non-zero the path is returned together with an ErrInstall
// of kind InstallerFailed.
func (i *Installer) EnsureInstalled(ctx context.Context, rec *domain.AgentRecord, dir string) (string, error) {
	if err := i.checkPlatform(); err != nil {
		return "", err
	}
	if rec == nil {
		return "", errors.New("install: no collector is associated with this host")
	}

	inst := domain.Installation{InstallDir: dir, Platform: i.platform}
	path, err := inst.BinaryPath(rec.ID)
	if err != nil {
		return "", fmt.Errorf("install: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("install: create install dir: %w", err)
	}

	cached, err := isCached(path)
	if err != nil {
		return "", fmt.Errorf("install: %w", err)
	}
	if cached {
		i.logger.Debug("installer cached", "path", path)
	} else {
		if err := i.download(ctx, rec.ID, path); err != nil {
			return "", err
		}
	}

	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("install: chmod %s: %w", path, err)
	}

	if i.installed(inst, rec) {
		i.logger.Info("collector already installed", "dir", inst.AgentDir())
		return path, nil
	}

	i.logger.Info("running collector installer", "path", path)
	res, err := i.runner.Run(ctx, path, i.silentFlag())
	if err != nil {
		return path, domain.ErrInstall{Kind: domain.InstallerFailed, Path: path, Code: -1, Err: err}
	}
	if res.ExitCode != 0 {
		i.logger.Warn("collector installer failed",
			"path", path,
			"code", res.ExitCode,
			"output", string(res.Output),
		)
		return path, domain.ErrInstall{Kind: domain.InstallerFailed, Path: path, Code: res.ExitCode}
	}

	i.logger.Info("collector installed", "dir", inst.AgentDir())
	return path, nil
}

// Uninstall runs the uninstaller shipped with the collector installed in dir.
func (i *Installer) Uninstall(ctx context.Context, dir string) error {
	inst := domain.Installation{InstallDir: dir, Platform: i.platform}
	path := inst.UninstallerPath()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrInstall{Kind: domain.InstallUninstallerMissing, Path: path}
		}
		return fmt.Errorf("uninstall: stat %s: %w", path, err)
	}

	i.logger.Info("running collector uninstaller", "path", path)
	res, err := i.runner.Run(ctx, path)
	if err != nil {
		return domain.ErrInstall{Kind: domain.InstallUninstallFailed, Path: path, Code: -1, Err: err}
	}
	if res.ExitCode != 0 {
		i.logger.Warn("collector uninstaller failed",
			"path", path,
			"code", res.ExitCode,
			"output", string(res.Output),
		)
		return domain.ErrInstall{Kind: domain.InstallUninstallFailed, Path: path, Code: res.ExitCode}
	}

	i.logger.Info("collector uninstalled", "dir", dir)
	return nil
}

func (i *Installer) checkPlatform() error {
	if i.platform.Kind == domain.PlatformUnsupported {
		return domain.ErrInstall{Kind: domain.InstallUnsupportedPlatform}
	}
	if i.platform.Arch != 32 && i.platform.Arch != 64 {
		return domain.ErrInstall{
			Kind: domain.InstallUnsupportedPlatform,
			Err:  fmt.Errorf("unsupported pointer width %d", i.platform.Arch),
		}
	}
	return nil
}

// installed reports whether dir already holds a collector for this platform.
// A record that does not report a platform yet is taken as matching.
func (i *Installer) installed(inst domain.Installation, rec *domain.AgentRecord) bool {
	info, err := os.Stat(inst.AgentDir())
	if err != nil || !info.IsDir() {
		return false
	}
	return rec.Platform == "" || strings.EqualFold(rec.Platform, i.platform.Kind.String())
}

func (i *Installer) silentFlag() string {
	if i.platform.Kind == domain.PlatformWindows {
		return "/q"
	}
	return "-y"
}

func (i *Installer) download(ctx context.Context, id int, path string) error {
	i.logger.Info("downloading collector installer", "id", id, "arch", i.platform.Arch)

	body, err := i.rpc.Call(ctx, actionDownload, map[string]string{
		"id":   strconv.Itoa(id),
		"arch": strconv.Itoa(i.platform.Arch),
	})
	if err != nil {
		return domain.ErrInstall{Kind: domain.InstallDownloadFailed, Path: path, Err: err}
	}
	if err := checkPayload(body); err != nil {
		return domain.ErrInstall{Kind: domain.InstallDownloadFailed, Path: path, Err: err}
	}
	if err := writeAtomic(path, body); err != nil {
		return domain.ErrInstall{Kind: domain.InstallDownloadFailed, Path: path, Err: err}
	}

	i.logger.Info("collector installer saved", "path", path, "bytes", len(body))
	return nil
}

// checkPayload rejects empty bodies and JSON envelopes served in place of
// the installer.
func checkPayload(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return errors.New("empty installer payload")
	}
	if trimmed[0] != '{' {
		return nil
	}
	var doc struct {
		Status *int `json:"status"`
	}
	if json.Unmarshal(trimmed, &doc) != nil || doc.Status == nil {
		return nil
	}
	if _, err := rpc.Decode[any](actionDownload, trimmed); err != nil {
		return err
	}
	return errors.New("server answered with a JSON document instead of an installer")
}

func isCached(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat %s: %w", path, err)
	case !info.Mode().IsRegular():
		return false, fmt.Errorf("%s exists and is not a regular file", path)
	default:
		return info.Size() > 0, nil
	}
}

// writeAtomic writes data next to path and renames it into place so a
// partial download is never mistaken for a cached installer.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
