package greencheck

import (
	"time"

	"greenweb/internal/domain"
)

// Result is the outcome of checking one domain.
type Result struct {
	URL             string
	Green           bool
	HostedByID      uint64
	HostedBy        string
	HostedByWebsite string
	Partner         string
	MatchType       string
	MatchID         uint64
	IP              string
	Modified        time.Time

	// Cached is set when the result came from a cache tier instead of a full lookup.
	Cached bool
}

// GreyResult is the placeholder for a domain with no green match.
func GreyResult(url string) Result {
	return Result{URL: url, MatchType: domain.MatchTypeNone, Modified: time.Now().UTC()}
}

func resultFromGreenDomain(row domain.GreenDomain) Result {
	return Result{
		URL:             row.URL,
		Green:           row.Green,
		HostedByID:      row.HostedByID,
		HostedBy:        row.HostedBy,
		HostedByWebsite: row.HostedByWebsite,
		Partner:         row.Partner,
		MatchType:       row.MatchType,
		MatchID:         row.MatchID,
		Modified:        row.Modified,
		Cached:          true,
	}
}

// GreenDomain converts a green result into its cache table row.
func (r Result) GreenDomain() domain.GreenDomain {
	return domain.GreenDomain{
		URL:             r.URL,
		HostedByID:      r.HostedByID,
		HostedBy:        r.HostedBy,
		HostedByWebsite: r.HostedByWebsite,
		Partner:         r.Partner,
		Green:           r.Green,
		MatchType:       r.MatchType,
		MatchID:         r.MatchID,
		Modified:        r.Modified,
	}
}
