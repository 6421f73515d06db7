package paths

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Resolve returns preferred when its directory can be created, otherwise
// ~/.lmcollector/<fallbackRel>.
func Resolve(preferred, fallbackRel string, logger *slog.Logger) string {
	if err := os.MkdirAll(preferred, 0o755); err == nil {
		return preferred
	}

	home, err := os.UserHomeDir()
	fallbackDir := "."
	if err == nil && home != "" {
		fallbackDir = filepath.Join(home, ".lmcollector")
	} else {
		logger.Warn("home dir unavailable, using current directory for fallback storage")
	}

	fallbackPath := filepath.Join(fallbackDir, fallbackRel)
	if mkErr := os.MkdirAll(fallbackPath, 0o755); mkErr != nil {
		logger.Error("failed to create fallback dir", "path", fallbackPath, "err", mkErr)
		return preferred
	}

	logger.Warn("using fallback path", "path", fallbackPath, "preferred", preferred)
	return fallbackPath
}
