package database

import (
	"context"
	"net/netip"
	"time"

	"greenweb/internal/domain"
	"greenweb/internal/greencheck"
)

// GreencheckStore backs the greencheck checker with the package database.
type GreencheckStore struct{}

var _ greencheck.Store = GreencheckStore{}

func (GreencheckStore) GreenDomain(ctx context.Context, url string, maxAge time.Duration) (*domain.GreenDomain, error) {
	return GetGreenDomain(ctx, url, maxAge)
}

func (GreencheckStore) GreenDomains(ctx context.Context, urls []string, maxAge time.Duration) (map[string]domain.GreenDomain, error) {
	return GetGreenDomains(ctx, urls, maxAge)
}

func (GreencheckStore) SaveGreenDomain(ctx context.Context, row domain.GreenDomain) error {
	return SaveGreenDomain(ctx, row)
}

func (GreencheckStore) DeleteGreenDomain(ctx context.Context, url string) error {
	return DeleteGreenDomain(ctx, url)
}

func (GreencheckStore) MatchIP(ctx context.Context, addr netip.Addr) (*greencheck.Match, error) {
	ipRange, match, err := FindActiveIPRange(ctx, addr)
	if err != nil || ipRange == nil {
		return nil, err
	}
	return &greencheck.Match{
		Type:       domain.MatchTypeIP,
		ID:         match.MatchID,
		ProviderID: ipRange.ProviderID,
		Provider:   match.Provider,
	}, nil
}

func (GreencheckStore) MatchASN(ctx context.Context, number uint32) (*greencheck.Match, error) {
	asn, match, err := FindActiveASN(ctx, number)
	if err != nil || asn == nil {
		return nil, err
	}
	return &greencheck.Match{
		Type:       domain.MatchTypeASN,
		ID:         match.MatchID,
		ProviderID: asn.ProviderID,
		Provider:   match.Provider,
	}, nil
}

func (GreencheckStore) LogCheck(ctx context.Context, check domain.Greencheck) error {
	return InsertGreencheck(ctx, check)
}
