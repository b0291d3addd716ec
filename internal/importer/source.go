package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"greenweb/internal/config"
)

// Source fetches the raw network entries of one provider's published dataset.
type Source interface {
	Name() string
	ProviderID() uint64
	Fetch(ctx context.Context) ([]string, error)
}

// Names of the built-in importers.
const (
	GoogleName    = "google"
	AmazonName    = "amazon"
	EquinixName   = "equinix"
	MicrosoftName = "microsoft"
)

// ConfiguredSources returns every enabled importer built from cfg, sorted by name.
func ConfiguredSources(cfg config.Config) []Source {
	imp := cfg.Importers
	var sources []Source
	if imp.Google.Enabled {
		sources = append(sources, NewGoogle(imp.Google))
	}
	if imp.Amazon.Enabled {
		sources = append(sources, NewAmazon(imp.Amazon))
	}
	if imp.Equinix.Enabled {
		sources = append(sources, NewEquinix(imp.Equinix))
	}
	if imp.Microsoft.Enabled {
		sources = append(sources, NewMicrosoft(imp.Microsoft))
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name() < sources[j].Name() })
	return sources
}

// SourceByName builds the named importer regardless of whether it is enabled,
// so an admin can trigger a one-off run.
func SourceByName(cfg config.Config, name string) (Source, error) {
	imp := cfg.Importers
	switch strings.ToLower(strings.TrimSpace(name)) {
	case GoogleName:
		return NewGoogle(imp.Google), nil
	case AmazonName:
		return NewAmazon(imp.Amazon), nil
	case EquinixName:
		return NewEquinix(imp.Equinix), nil
	case MicrosoftName:
		return NewMicrosoft(imp.Microsoft), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownImporter, name)
	}
}
