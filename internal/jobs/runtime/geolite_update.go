package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"greenweb/internal/config"
	"greenweb/internal/geolite"
	"greenweb/internal/support"
)

const (
	geoLiteUpdateLockKey       = "greenweb:leader:geolite_update"
	geoLiteUpdateFallbackEvery = 24 * time.Hour
)

// StartGeoLiteUpdateRoutine keeps the ASN database fresh on the leader instance.
func StartGeoLiteUpdateRoutine(ctx context.Context, updater *geolite.Updater) {
	support.StartPeriodic(ctx, support.PeriodicTask{
		Name:     "geolite_update",
		LockKey:  geoLiteUpdateLockKey,
		Initial:  config.GetGeoLiteUpdateInterval(),
		Fallback: geoLiteUpdateFallbackEvery,
		Updates:  config.GeoLiteUpdateIntervalUpdates(),
		Run: func(ctx context.Context, reason string) {
			RunGeoLiteUpdate(ctx, updater, reason, reason == "startup" && !updater.Available())
		},
	})
}

// RunGeoLiteUpdate runs the updater on demand. When force is false the update
// is only executed if auto updates are enabled.
func RunGeoLiteUpdate(ctx context.Context, updater *geolite.Updater, reason string, force bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if updater == nil {
		return
	}

	if !force && !config.GetConfig().GeoLite.AutoUpdate {
		log.Debug("GeoLite update skipped: auto update disabled", "reason", reason)
		return
	}

	updated, err := updater.Update(ctx)
	switch {
	case errors.Is(err, geolite.ErrNoAPIKey):
		log.Debug("GeoLite update skipped: API key missing", "reason", reason)
	case err != nil:
		log.Error("GeoLite update failed", "reason", reason, "error", err)
	case updated:
		log.Info("GeoLite ASN database updated", "reason", reason)
	}
}
