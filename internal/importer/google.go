package importer

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"greenweb/internal/config"
)

// Google reads cloud.json, the published list of Google Cloud external ranges.
type Google struct {
	endpoint   string
	providerID uint64
}

func NewGoogle(src config.ImporterSource) *Google {
	return &Google{endpoint: src.Endpoint, providerID: src.ProviderID}
}

func (g *Google) Name() string       { return GoogleName }
func (g *Google) ProviderID() uint64 { return g.providerID }

func (g *Google) Fetch(ctx context.Context) ([]string, error) {
	body, err := fetch(ctx, g.endpoint)
	if err != nil {
		return nil, err
	}
	return parseGoogle(body)
}

func parseGoogle(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: invalid JSON payload", GoogleName)
	}

	var entries []string
	gjson.GetBytes(body, "prefixes").ForEach(func(_, prefix gjson.Result) bool {
		if v4 := prefix.Get("ipv4Prefix"); v4.Exists() {
			entries = append(entries, v4.String())
		}
		if v6 := prefix.Get("ipv6Prefix"); v6.Exists() {
			entries = append(entries, v6.String())
		}
		return true
	})
	return entries, nil
}
