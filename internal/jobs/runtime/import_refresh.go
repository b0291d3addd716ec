package runtime

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"greenweb/internal/config"
	"greenweb/internal/importer"
	"greenweb/internal/support"
)

const (
	importRefreshLockKey  = "greenweb:leader:import_refresh"
	importRefreshFallback = 24 * time.Hour
)

// StartImportRefreshRoutine re-runs every enabled importer on the configured timer.
func StartImportRefreshRoutine(ctx context.Context) {
	support.StartPeriodic(ctx, support.PeriodicTask{
		Name:     "import_refresh",
		LockKey:  importRefreshLockKey,
		Initial:  config.GetImportRefreshInterval(),
		Fallback: importRefreshFallback,
		Updates:  config.ImportRefreshIntervalUpdates(),
		Run: func(ctx context.Context, reason string) {
			results := importer.RunAll(ctx)
			log.Info("Importer refresh finished", "reason", reason, "succeeded", len(results))
		},
	})
}
