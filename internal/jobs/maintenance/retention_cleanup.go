package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"greenweb/internal/database"
	"greenweb/internal/support"
)

const (
	envCleanupInterval         = "RETENTION_CLEAN_INTERVAL"
	envGreencheckRetention     = "GREENCHECK_LOG_RETENTION"
	envGreenDomainRetention    = "GREEN_DOMAIN_RETENTION"
	defaultCleanupInterval     = time.Hour
	defaultGreencheckRetention = 30 * 24 * time.Hour
	retentionCleanupLockKey    = "greenweb:leader:retention_cleanup"
)

// Retention holds how long each table keeps its rows. Zero disables pruning.
type Retention struct {
	Greenchecks  time.Duration
	GreenDomains time.Duration
}

// RetentionFromEnv reads the retention windows. Green domain rows are kept
// forever unless GREEN_DOMAIN_RETENTION is set, since they feed the export.
func RetentionFromEnv() Retention {
	return Retention{
		Greenchecks:  support.GetEnvDuration(envGreencheckRetention, defaultGreencheckRetention),
		GreenDomains: support.GetEnvDuration(envGreenDomainRetention, 0),
	}
}

func StartRetentionCleanupRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, retentionCleanupLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runRetentionCleanupLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Retention cleanup routine stopped", "error", err)
	}
}

func runRetentionCleanupLoop(ctx context.Context) {
	interval := support.GetEnvDuration(envCleanupInterval, defaultCleanupInterval)
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	RunRetentionCleanup(ctx, RetentionFromEnv(), time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RunRetentionCleanup(ctx, RetentionFromEnv(), time.Now().UTC())
		}
	}
}

// RunRetentionCleanup prunes rows older than the configured windows relative to now.
func RunRetentionCleanup(ctx context.Context, retention Retention, now time.Time) (checksRemoved, domainsRemoved int64) {
	start := time.Now()

	if retention.Greenchecks > 0 {
		removed, err := database.PruneGreenchecks(ctx, now.Add(-retention.Greenchecks))
		if err != nil {
			log.Error("Failed to prune greencheck log", "error", err)
		} else {
			checksRemoved = removed
		}
	}

	if retention.GreenDomains > 0 {
		removed, err := database.PruneGreenDomains(ctx, now.Add(-retention.GreenDomains))
		if err != nil {
			log.Error("Failed to prune green domains", "error", err)
		} else {
			domainsRemoved = removed
		}
	}

	if checksRemoved == 0 && domainsRemoved == 0 {
		return
	}

	log.Info(
		"Retention cleanup completed",
		"greenchecks_removed", checksRemoved,
		"green_domains_removed", domainsRemoved,
		"duration", time.Since(start),
	)
	return
}
