package jobs

import (
	"log/slog"

	"github.com/dukerupert/courier/internal/storage"
)

// CleanupWorkspace removes a run's staged uploads. It is meant to be
// deferred by the run so it also executes on abort and panic; failures are
// logged only.
func CleanupWorkspace(dir *storage.RunDir, logger *slog.Logger) {
	if dir == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := dir.Remove(); err != nil {
		logger.Error("failed to clean up run workspace",
			"path", dir.Path(),
			"error", err,
		)
		return
	}
	logger.Debug("run workspace removed", "path", dir.Path())
}
