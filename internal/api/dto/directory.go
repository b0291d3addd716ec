package dto

import (
	"strconv"
	"time"

	"greenweb/internal/domain"
)

// DirectoryCountry is one entry of the legacy directory, keyed by ISO code.
type DirectoryCountry struct {
	ISO         string              `json:"iso"`
	TLD         string              `json:"tld"`
	CountryName string              `json:"countryname"`
	Providers   []DirectoryProvider `json:"providers,omitempty"`
}

type DirectoryProvider struct {
	ISO     string `json:"iso"`
	ID      string `json:"id"`
	Naam    string `json:"naam"`
	Website string `json:"website"`
	Partner string `json:"partner"`
}

func NewDirectoryProvider(p domain.Provider) DirectoryProvider {
	return DirectoryProvider{
		ISO:     p.Country,
		ID:      strconv.FormatUint(p.ID, 10),
		Naam:    p.Name,
		Website: p.Website,
		Partner: p.Partner,
	}
}

// ProviderDetail is the legacy provider representation. The certificate and
// energy fields are kept for old clients and are always null.
type ProviderDetail struct {
	ID             string  `json:"id"`
	Naam           string  `json:"naam"`
	Website        string  `json:"website"`
	CountryDomain  string  `json:"countrydomain"`
	Model          string  `json:"model"`
	CertURL        *string `json:"certurl"`
	ValidFrom      *string `json:"valid_from"`
	ValidTo        *string `json:"valid_to"`
	MainEnergyType *string `json:"mainenergytype"`
	EnergyProvider *string `json:"energyprovider"`
	Partner        string  `json:"partner"`
	Datacenters    []any   `json:"datacenters"`

	Services            []string             `json:"services"`
	SupportingDocuments []SupportingDocument `json:"supporting_documents"`
}

type SupportingDocument struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Type        string `json:"type"`
	ValidFrom   string `json:"valid_from"`
	ValidTo     string `json:"valid_to"`
}

func NewProviderDetail(p domain.Provider) ProviderDetail {
	detail := ProviderDetail{
		ID:                  strconv.FormatUint(p.ID, 10),
		Naam:                p.Name,
		Website:             p.Website,
		CountryDomain:       p.Country,
		Model:               p.Model,
		Partner:             p.Partner,
		Datacenters:         []any{},
		Services:            []string(p.Services),
		SupportingDocuments: make([]SupportingDocument, 0, len(p.Documents)),
	}
	if detail.Services == nil {
		detail.Services = []string{}
	}
	for _, doc := range p.Documents {
		link := doc.URL
		if link == "" {
			link = doc.Attachment
		}
		detail.SupportingDocuments = append(detail.SupportingDocuments, SupportingDocument{
			Title:       doc.Title,
			Description: doc.Description,
			Link:        link,
			Type:        doc.Type,
			ValidFrom:   doc.ValidFrom.Format(time.DateOnly),
			ValidTo:     doc.ValidTo.Format(time.DateOnly),
		})
	}
	return detail
}
