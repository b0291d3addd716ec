package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"greenweb/internal/config"
	"greenweb/internal/export"
	"greenweb/internal/support"
)

const (
	exportLockKey  = "greenweb:leader:green_domain_export"
	exportFallback = 24 * time.Hour
)

// StartGreenDomainExportRoutine uploads a green domain snapshot on the export timer.
// Runs are skipped while exports are disabled in the settings.
func StartGreenDomainExportRoutine(ctx context.Context) {
	support.StartPeriodic(ctx, support.PeriodicTask{
		Name:     "green_domain_export",
		LockKey:  exportLockKey,
		Initial:  config.GetExportInterval(),
		Fallback: exportFallback,
		Updates:  config.ExportIntervalUpdates(),
		Run: func(ctx context.Context, reason string) {
			if reason == "startup" {
				return
			}
			if _, err := RunGreenDomainExport(ctx, false); err != nil && !errors.Is(err, ErrExportDisabled) {
				log.Error("Green domain export failed", "reason", reason, "error", err)
			}
		},
	})
}

var ErrExportDisabled = errors.New("green domain export is disabled")

// RunGreenDomainExport builds an exporter from the current settings and runs it.
// force ignores the enabled flag, for admin triggered exports.
func RunGreenDomainExport(ctx context.Context, force bool) (export.Summary, error) {
	cfg := config.GetConfig()
	if !force && !cfg.Export.Enabled {
		log.Debug("Green domain export skipped: disabled")
		return export.Summary{}, ErrExportDisabled
	}

	exporter, err := export.NewFromConfig(ctx, cfg)
	if err != nil {
		return export.Summary{}, err
	}
	return exporter.Export(ctx)
}
