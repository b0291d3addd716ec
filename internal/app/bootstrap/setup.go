package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"greenweb/internal/config"
	"greenweb/internal/database"
	"greenweb/internal/geolite"
	"greenweb/internal/greencheck"
	"greenweb/internal/jobs/maintenance"
	jobruntime "greenweb/internal/jobs/runtime"
)

// Services are the long lived components built at startup.
type Services struct {
	Checker *greencheck.Checker
	GeoLite *geolite.Reader
	Updater *geolite.Updater
}

// Setup loads settings, connects the database, wires the greencheck pipeline
// and starts the background routines. They stop when ctx is cancelled.
func Setup(ctx context.Context, redisClient *redis.Client) (*Services, error) {
	config.ReadSettings()

	if _, err := database.SetupDB(); err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}
	config.SetBetweenTime()

	if redisClient != nil {
		config.EnableRedisSynchronization(ctx, redisClient)
	}

	reader, err := geolite.Open(geolite.DataDir())
	if err != nil {
		log.Warn("GeoLite ASN database not loaded, ASN matching disabled until the first update", "error", err)
	}

	var distributor *geolite.Distributor
	if redisClient != nil {
		distributor = geolite.NewDistributor(redisClient, reader)
		distributor.Start(ctx)
	}
	updater := geolite.NewUpdater(reader, distributor)

	services := &Services{
		Checker: NewChecker(config.GetConfig(), reader),
		GeoLite: reader,
		Updater: updater,
	}

	go jobruntime.StartGeoLiteUpdateRoutine(ctx, updater)
	go jobruntime.StartImportRefreshRoutine(ctx)
	go jobruntime.StartGreenDomainExportRoutine(ctx)
	go maintenance.StartRetentionCleanupRoutine(ctx)

	return services, nil
}

// NewChecker builds the tiered checker from the greencheck settings.
func NewChecker(cfg config.Config, asn greencheck.ASNLookup) *greencheck.Checker {
	settings := cfg.Greencheck
	resolver := greencheck.NewDNSResolver(settings.Nameservers, time.Duration(settings.DNSTimeout)*time.Second)

	return greencheck.New(database.GreencheckStore{}, resolver, asn,
		greencheck.WithMemoryCache(settings.MemoryCacheSize, config.GetMemoryCacheTTL()),
		greencheck.WithMaxAge(config.GetGreenDomainMaxAge),
		greencheck.WithBatchConcurrency(settings.BatchConcurrency),
		greencheck.WithMaxBatchSize(settings.MaxBatchSize),
	)
}
