package importer

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"unicode"

	"greenweb/internal/config"
)

// Equinix reads a plain text list where each network line starts with an
// AS number or an address, followed by a free-form label.
type Equinix struct {
	endpoint   string
	providerID uint64
}

func NewEquinix(src config.ImporterSource) *Equinix {
	return &Equinix{endpoint: src.Endpoint, providerID: src.ProviderID}
}

func (e *Equinix) Name() string       { return EquinixName }
func (e *Equinix) ProviderID() uint64 { return e.providerID }

func (e *Equinix) Fetch(ctx context.Context) ([]string, error) {
	body, err := fetch(ctx, e.endpoint)
	if err != nil {
		return nil, err
	}
	return parseEquinix(body), nil
}

func parseEquinix(body []byte) []string {
	var entries []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "AS") && !unicode.IsDigit(rune(line[0])) {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			entries = append(entries, fields[0])
		}
	}
	return entries
}
