package dto

import (
	"time"

	"greenweb/internal/domain"
	"greenweb/internal/greencheck"
)

// GreencheckResult is the public answer for one checked url.
type GreencheckResult struct {
	URL             string    `json:"url"`
	Green           bool      `json:"green"`
	HostedBy        string    `json:"hosted_by"`
	HostedByID      uint64    `json:"hosted_by_id"`
	HostedByWebsite string    `json:"hosted_by_website"`
	Partner         string    `json:"partner"`
	MatchType       string    `json:"match_type"`
	Modified        time.Time `json:"modified"`
	Data            bool      `json:"data"`
}

func NewGreencheckResult(r greencheck.Result) GreencheckResult {
	matchType := r.MatchType
	if matchType == "" {
		matchType = domain.MatchTypeNone
	}
	return GreencheckResult{
		URL:             r.URL,
		Green:           r.Green,
		HostedBy:        r.HostedBy,
		HostedByID:      r.HostedByID,
		HostedByWebsite: r.HostedByWebsite,
		Partner:         r.Partner,
		MatchType:       matchType,
		Modified:        r.Modified,
		Data:            r.Green,
	}
}

// GreencheckMulti keys results by the url string the caller sent.
type GreencheckMulti map[string]GreencheckResult

// NewGreencheckMulti pairs urls with the results of a batch check, which come
// back in the same order.
func NewGreencheckMulti(urls []string, results []greencheck.Result) GreencheckMulti {
	out := make(GreencheckMulti, len(urls))
	for i, url := range urls {
		if i >= len(results) {
			break
		}
		result := NewGreencheckResult(results[i])
		result.URL = url
		out[url] = result
	}
	return out
}
