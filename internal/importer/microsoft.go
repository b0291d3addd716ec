package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"

	"greenweb/internal/config"
)

const microsoftDateLayout = "20060102"

// Microsoft reads the Azure service tags file. It is republished weekly under
// a dated name, so Fetch walks back from today until a file exists.
type Microsoft struct {
	urlPrefix    string
	urlExtension string
	searchDays   int
	providerID   uint64
	now          func() time.Time
}

func NewMicrosoft(src config.MicrosoftSource) *Microsoft {
	return &Microsoft{
		urlPrefix:    src.URLPrefix,
		urlExtension: src.URLExtension,
		searchDays:   src.SearchDays,
		providerID:   src.ProviderID,
		now:          time.Now,
	}
}

func (m *Microsoft) Name() string       { return MicrosoftName }
func (m *Microsoft) ProviderID() uint64 { return m.providerID }

func (m *Microsoft) Fetch(ctx context.Context) ([]string, error) {
	url, body, err := m.latestDataset(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("Using Azure service tags dataset", "url", url)
	return parseMicrosoft(body)
}

func (m *Microsoft) latestDataset(ctx context.Context) (string, []byte, error) {
	today := m.now().UTC()
	for day := 0; day <= m.searchDays; day++ {
		url := FormatDateToURL(m.urlPrefix, m.urlExtension, today.AddDate(0, 0, -day))
		body, err := fetch(ctx, url)
		if err == nil {
			return url, body, nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			continue
		}
		return "", nil, err
	}
	return "", nil, fmt.Errorf("%s: no dataset published in the last %d days", MicrosoftName, m.searchDays)
}

// FormatDateToURL builds the dated dataset url, <prefix>YYYYMMDD<ext>.
func FormatDateToURL(prefix, extension string, date time.Time) string {
	return prefix + date.Format(microsoftDateLayout) + extension
}

// FormatURLToDate extracts the date from a url built by FormatDateToURL.
func FormatURLToDate(url, prefix, extension string) (time.Time, error) {
	if !strings.HasPrefix(url, prefix) || !strings.HasSuffix(url, extension) || len(url) < len(prefix)+len(extension) {
		return time.Time{}, fmt.Errorf("%s: url %q does not match the dataset pattern", MicrosoftName, url)
	}
	stamp := url[len(prefix) : len(url)-len(extension)]
	return time.Parse(microsoftDateLayout, stamp)
}

func parseMicrosoft(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: invalid JSON payload", MicrosoftName)
	}

	var entries []string
	for _, prefix := range gjson.GetBytes(body, "values.#.properties.addressPrefixes|@flatten").Array() {
		entries = append(entries, prefix.String())
	}
	return entries, nil
}
