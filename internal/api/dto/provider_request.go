package dto

import (
	"greenweb/internal/domain"
)

// ProviderRequestSubmission is the accepted body for a new provider request.
// Only these fields can be set by the caller.
type ProviderRequestSubmission struct {
	Name            string   `json:"name"`
	Website         string   `json:"website"`
	Description     string   `json:"description"`
	CreatedByID     *uint64  `json:"created_by_id"`
	AuthorisedByOrg bool     `json:"authorised_by_org"`
	Services        []string `json:"services"`

	Locations []struct {
		Name    string `json:"name"`
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"locations"`
	ASNs     []uint32 `json:"asns"`
	IPRanges []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"ip_ranges"`
	Evidence []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Link        string `json:"link"`
		File        string `json:"file"`
		Type        string `json:"type"`
		Public      bool   `json:"public"`
	} `json:"evidence"`
	Consent *struct {
		DataProcessingOptIn bool `json:"data_processing_opt_in"`
		NewsletterOptIn     bool `json:"newsletter_opt_in"`
	} `json:"consent"`
}

func (s ProviderRequestSubmission) ToDomain() *domain.ProviderRequest {
	req := &domain.ProviderRequest{
		Name:            s.Name,
		Website:         s.Website,
		Description:     s.Description,
		CreatedByID:     s.CreatedByID,
		AuthorisedByOrg: s.AuthorisedByOrg,
		Services:        domain.StringList(s.Services),
	}
	for _, loc := range s.Locations {
		req.Locations = append(req.Locations, domain.ProviderRequestLocation{Name: loc.Name, City: loc.City, Country: loc.Country})
	}
	for _, asn := range s.ASNs {
		req.ASNs = append(req.ASNs, domain.ProviderRequestASN{ASN: asn})
	}
	for _, r := range s.IPRanges {
		req.IPRanges = append(req.IPRanges, domain.ProviderRequestIPRange{Start: r.Start, End: r.End})
	}
	for _, e := range s.Evidence {
		req.Evidence = append(req.Evidence, domain.ProviderRequestEvidence{
			Title:       e.Title,
			Description: e.Description,
			Link:        e.Link,
			File:        e.File,
			Type:        e.Type,
			Public:      e.Public,
		})
	}
	if s.Consent != nil {
		req.Consent = &domain.ProviderRequestConsent{
			DataProcessingOptIn: s.Consent.DataProcessingOptIn,
			NewsletterOptIn:     s.Consent.NewsletterOptIn,
		}
	}
	return req
}

// ProviderRequestInfo is returned after a request is created or changes status.
type ProviderRequestInfo struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func NewProviderRequestInfo(r *domain.ProviderRequest) ProviderRequestInfo {
	return ProviderRequestInfo{ID: r.ID, Name: r.Name, Status: string(r.Status)}
}

// StatusChange is the body of a status update.
type StatusChange struct {
	Status string `json:"status"`
}

// ApprovedProvider is returned when a request is approved.
type ApprovedProvider struct {
	RequestID  uint64 `json:"request_id"`
	ProviderID uint64 `json:"provider_id"`
	Name       string `json:"name"`
	Website    string `json:"website"`
	Country    string `json:"country"`
	City       string `json:"city"`
}

func NewApprovedProvider(requestID uint64, p *domain.Provider) ApprovedProvider {
	return ApprovedProvider{
		RequestID:  requestID,
		ProviderID: p.ID,
		Name:       p.Name,
		Website:    p.Website,
		Country:    p.Country,
		City:       p.City,
	}
}
