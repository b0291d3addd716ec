package dto

import (
	"time"

	"greenweb/internal/domain"
)

// LatestCheck is the legacy "augmented" greencheck. Provider fields are false
// instead of empty when the check was grey.
type LatestCheck struct {
	Date                string `json:"date"`
	URL                 string `json:"url"`
	HostingProviderID   any    `json:"hostingProviderId"`
	HostingProviderURL  any    `json:"hostingProviderUrl"`
	HostingProviderName any    `json:"hostingProviderName"`
	Green               bool   `json:"green"`
}

// NewLatestCheck augments check with its provider. A green check whose provider
// is gone is reported like a grey one.
func NewLatestCheck(check domain.Greencheck, provider *domain.Provider) LatestCheck {
	out := LatestCheck{
		Date:                check.CheckedAt.UTC().Format(time.DateTime),
		URL:                 check.URL,
		HostingProviderID:   false,
		HostingProviderURL:  false,
		HostingProviderName: false,
	}
	if !check.Green || provider == nil {
		return out
	}
	out.HostingProviderID = provider.ID
	out.HostingProviderURL = provider.Website
	out.HostingProviderName = provider.Name
	out.Green = true
	return out
}
