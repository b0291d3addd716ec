package importer

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"greenweb/internal/config"
)

// Amazon reads ip-ranges.json covering every AWS region and service.
type Amazon struct {
	endpoint   string
	providerID uint64
}

func NewAmazon(src config.ImporterSource) *Amazon {
	return &Amazon{endpoint: src.Endpoint, providerID: src.ProviderID}
}

func (a *Amazon) Name() string       { return AmazonName }
func (a *Amazon) ProviderID() uint64 { return a.providerID }

func (a *Amazon) Fetch(ctx context.Context) ([]string, error) {
	body, err := fetch(ctx, a.endpoint)
	if err != nil {
		return nil, err
	}
	return parseAmazon(body)
}

func parseAmazon(body []byte) ([]string, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: invalid JSON payload", AmazonName)
	}

	result := gjson.GetManyBytes(body, "prefixes.#.ip_prefix", "ipv6_prefixes.#.ipv6_prefix")
	entries := make([]string, 0, len(result[0].Array())+len(result[1].Array()))
	for _, list := range result {
		for _, prefix := range list.Array() {
			entries = append(entries, prefix.String())
		}
	}
	return entries, nil
}
