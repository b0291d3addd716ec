package dto

import (
	"greenweb/internal/importer"
)

type NetworkCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped,omitempty"`
}

// ImportResult summarises an importer run for the admin API.
type ImportResult struct {
	Importer   string        `json:"importer"`
	ProviderID uint64        `json:"provider_id"`
	IPv4       NetworkCounts `json:"ipv4"`
	IPv6       NetworkCounts `json:"ipv6"`
	ASNs       NetworkCounts `json:"asns"`
	DurationMS int64         `json:"duration_ms"`
}

func NewImportResult(r importer.Result) ImportResult {
	n := r.Networks
	return ImportResult{
		Importer:   r.Importer,
		ProviderID: r.ProviderID,
		IPv4:       NetworkCounts{Created: n.CreatedIPv4, Updated: n.UpdatedIPv4},
		IPv6:       NetworkCounts{Created: n.CreatedIPv6, Updated: n.UpdatedIPv6},
		ASNs:       NetworkCounts{Created: n.CreatedASNs, Updated: n.UpdatedASNs, Skipped: n.SkippedASNs},
		DurationMS: r.Duration.Milliseconds(),
	}
}

// CSVPreview lists what a CSV upload would create and refresh.
type CSVPreview struct {
	ProviderID uint64   `json:"provider_id"`
	Create     []string `json:"create"`
	Update     []string `json:"update"`
}

func NewCSVPreview(providerID uint64, entries []importer.PreviewEntry) CSVPreview {
	preview := CSVPreview{ProviderID: providerID, Create: []string{}, Update: []string{}}
	for _, entry := range entries {
		if entry.Exists {
			preview.Update = append(preview.Update, entry.IP)
		} else {
			preview.Create = append(preview.Create, entry.IP)
		}
	}
	return preview
}
