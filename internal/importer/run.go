package importer

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/charmbracelet/log"

	"greenweb/internal/config"
	"greenweb/internal/database"
	"greenweb/internal/domain"
	"greenweb/internal/metrics"
)

var (
	ErrMissingProvider = errors.New("importer: provider does not exist")
	ErrEmptyDataset    = errors.New("importer: dataset contains no networks")
	ErrUnknownImporter = errors.New("importer: unknown importer")
)

// Result is what one import run wrote.
type Result struct {
	Importer   string                       `json:"importer"`
	ProviderID uint64                       `json:"provider_id"`
	Networks   database.NetworkUpsertResult `json:"-"`
	Duration   time.Duration                `json:"-"`
}

// Run fetches src, parses it and upserts the networks for the source's
// provider in one transaction. A failed fetch aborts before any write.
func Run(ctx context.Context, src Source) (Result, error) {
	started := time.Now()
	result := Result{Importer: src.Name(), ProviderID: src.ProviderID()}

	networks, err := fetchNetworks(ctx, src)
	if err != nil {
		metrics.ImporterRuns.WithLabelValues(src.Name(), "failed").Inc()
		return result, err
	}

	ranges := make([]domain.IPRange, 0, len(networks.V4)+len(networks.V6))
	for _, prefix := range concatPrefixes(networks.V4, networks.V6) {
		ranges = append(ranges, domain.NewIPRangeFromPrefix(src.ProviderID(), prefix))
	}

	upserted, err := database.UpsertProviderNetworks(ctx, src.ProviderID(), ranges, networks.ASNs)
	if err != nil {
		metrics.ImporterRuns.WithLabelValues(src.Name(), "failed").Inc()
		if errors.Is(err, database.ErrProviderNotFound) {
			return result, fmt.Errorf("%w: %s expects provider %d", ErrMissingProvider, src.Name(), src.ProviderID())
		}
		return result, fmt.Errorf("%s: store networks: %w", src.Name(), err)
	}

	result.Networks = upserted
	result.Duration = time.Since(started)

	metrics.ImporterRuns.WithLabelValues(src.Name(), "succeeded").Inc()
	metrics.ImporterNetworks.WithLabelValues(src.Name(), "created").Add(float64(upserted.Created()))
	metrics.ImporterNetworks.WithLabelValues(src.Name(), "updated").Add(float64(upserted.Updated()))

	log.Info("Import completed",
		"importer", src.Name(),
		"provider", src.ProviderID(),
		"created", upserted.Created(),
		"updated", upserted.Updated(),
		"duration", result.Duration,
	)
	return result, nil
}

func fetchNetworks(ctx context.Context, src Source) (Networks, error) {
	entries, err := src.Fetch(ctx)
	if err != nil {
		return Networks{}, fmt.Errorf("%s: fetch dataset: %w", src.Name(), err)
	}

	networks := ParseNetworks(entries)
	if networks.Empty() {
		return Networks{}, fmt.Errorf("%w: %s", ErrEmptyDataset, src.Name())
	}
	return networks, nil
}

func concatPrefixes(lists ...[]netip.Prefix) []netip.Prefix {
	var out []netip.Prefix
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}

// RunAll runs every enabled importer in turn. A failing source is logged and
// does not stop the others.
func RunAll(ctx context.Context) []Result {
	var results []Result
	for _, src := range ConfiguredSources(config.GetConfig()) {
		if ctx.Err() != nil {
			break
		}
		result, err := Run(ctx, src)
		if err != nil {
			log.Error("Import failed", "importer", src.Name(), "error", err)
			continue
		}
		results = append(results, result)
	}
	return results
}
