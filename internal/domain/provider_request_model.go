package domain

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// ProviderRequestStatus tracks a request through staff review.
type ProviderRequestStatus string

const (
	StatusPendingReview ProviderRequestStatus = "Pending review"
	StatusAccepted      ProviderRequestStatus = "Accepted"
	StatusRejected      ProviderRequestStatus = "Rejected"
	StatusOpen          ProviderRequestStatus = "Open"
)

// Valid reports whether s is one of the known statuses.
func (s ProviderRequestStatus) Valid() bool {
	switch s {
	case StatusPendingReview, StatusAccepted, StatusRejected, StatusOpen:
		return true
	default:
		return false
	}
}

// Evidence types accepted on a request.
const (
	EvidenceAnnualReport = "Annual report"
	EvidenceWebPage      = "Web page"
	EvidenceCertificate  = "Certificate"
	EvidenceOther        = "Other"
)

// ValidationError is returned when submitted data is rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ProviderRequest is an application submitted by an external user to be listed.
type ProviderRequest struct {
	ID              uint64                `gorm:"primaryKey;autoIncrement"`
	Name            string                `gorm:"size:255;not null"`
	Website         string                `gorm:"size:255;not null"`
	Description     string                `gorm:"type:text;not null;default:''"`
	Status          ProviderRequestStatus `gorm:"size:32;not null;index"`
	CreatedByID     *uint64               `gorm:"index"`
	AuthorisedByOrg bool                  `gorm:"not null;default:false"`
	Services        StringList            `gorm:"type:text"`

	Locations []ProviderRequestLocation `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE;"`
	ASNs      []ProviderRequestASN      `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE;"`
	IPRanges  []ProviderRequestIPRange  `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE;"`
	Evidence  []ProviderRequestEvidence `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE;"`
	Consent   *ProviderRequestConsent   `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// ProviderRequestLocation is a place where the applicant offers services.
type ProviderRequestLocation struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID uint64 `gorm:"not null;index"`
	Name      string `gorm:"size:255;not null;default:''"`
	City      string `gorm:"size:255;not null"`
	Country   string `gorm:"size:2;not null"`
}

// ProviderRequestASN is an AS number operated by the applicant.
type ProviderRequestASN struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID uint64 `gorm:"not null;index"`
	ASN       uint32 `gorm:"not null"`
}

// ProviderRequestIPRange is an address range operated by the applicant.
type ProviderRequestIPRange struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID uint64 `gorm:"not null;index"`
	Start     string `gorm:"size:45;not null"`
	End       string `gorm:"size:45;not null"`
}

// Bounds parses and validates the range.
func (r ProviderRequestIPRange) Bounds() (netip.Addr, netip.Addr, error) {
	start, err := netip.ParseAddr(strings.TrimSpace(r.Start))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, &ValidationError{Field: "ip_range.start", Reason: fmt.Sprintf("invalid address %q", r.Start)}
	}
	end, err := netip.ParseAddr(strings.TrimSpace(r.End))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, &ValidationError{Field: "ip_range.end", Reason: fmt.Sprintf("invalid address %q", r.End)}
	}
	start, end = start.Unmap(), end.Unmap()
	if start.Is4() != end.Is4() {
		return netip.Addr{}, netip.Addr{}, &ValidationError{Field: "ip_range", Reason: "start and end must be the same IP version"}
	}
	if end.Less(start) {
		return netip.Addr{}, netip.Addr{}, &ValidationError{Field: "ip_range", Reason: fmt.Sprintf("start %s is greater than end %s", start, end)}
	}
	return start, end, nil
}

// ProviderRequestEvidence certifies green energy use; it is a link or a file.
type ProviderRequestEvidence struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID   uint64 `gorm:"not null;index"`
	Title       string `gorm:"size:255;not null"`
	Description string `gorm:"type:text;not null;default:''"`
	Link        string `gorm:"size:1024;not null;default:''"`
	File        string `gorm:"size:1024;not null;default:''"`
	Type        string `gorm:"size:64;not null"`
	Public      bool   `gorm:"not null"`
}

// Validate enforces the link-or-file rule.
func (e ProviderRequestEvidence) Validate() error {
	const reason = "provide a link OR a file for this evidence"
	link := strings.TrimSpace(e.Link)
	file := strings.TrimSpace(e.File)
	switch {
	case link == "" && file == "":
		return &ValidationError{Field: "evidence", Reason: reason + ", neither was submitted"}
	case link != "" && file != "":
		return &ValidationError{Field: "evidence", Reason: reason + ", both were submitted"}
	}
	if strings.TrimSpace(e.Title) == "" {
		return &ValidationError{Field: "evidence.title", Reason: "title is required"}
	}
	return nil
}

// ProviderRequestConsent records what the applicant agreed to.
type ProviderRequestConsent struct {
	ID                  uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID           uint64 `gorm:"not null;uniqueIndex"`
	DataProcessingOptIn bool   `gorm:"not null;default:false"`
	NewsletterOptIn     bool   `gorm:"not null;default:false"`
}

// Validate checks the request and its nested records before persistence.
func (r *ProviderRequest) Validate() error {
	var errs []error

	if strings.TrimSpace(r.Name) == "" {
		errs = append(errs, &ValidationError{Field: "name", Reason: "name is required"})
	}
	if strings.TrimSpace(r.Website) == "" {
		errs = append(errs, &ValidationError{Field: "website", Reason: "website is required"})
	}
	if r.Status != "" && !r.Status.Valid() {
		errs = append(errs, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", r.Status)})
	}
	if len(r.Locations) == 0 {
		errs = append(errs, &ValidationError{Field: "locations", Reason: "at least one location is required"})
	}
	for _, loc := range r.Locations {
		if len(strings.TrimSpace(loc.Country)) != 2 {
			errs = append(errs, &ValidationError{Field: "location.country", Reason: fmt.Sprintf("expected an ISO country code, got %q", loc.Country)})
		}
	}
	seenASN := make(map[uint32]struct{}, len(r.ASNs))
	for _, asn := range r.ASNs {
		if asn.ASN == 0 {
			errs = append(errs, &ValidationError{Field: "asn", Reason: "AS number must be positive"})
			continue
		}
		if _, dup := seenASN[asn.ASN]; dup {
			errs = append(errs, &ValidationError{Field: "asn", Reason: fmt.Sprintf("AS%d listed twice", asn.ASN)})
		}
		seenASN[asn.ASN] = struct{}{}
	}
	for _, ipRange := range r.IPRanges {
		if _, _, err := ipRange.Bounds(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, evidence := range r.Evidence {
		if err := evidence.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *ProviderRequest) String() string {
	return r.Name
}
