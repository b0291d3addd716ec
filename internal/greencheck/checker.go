package greencheck

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"greenweb/internal/domain"
	"greenweb/internal/metrics"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

var ErrMissingProvider = errors.New("green match references a missing provider")

// Match is a green network that contains a looked-up address.
type Match struct {
	Type       string
	ID         uint64
	ProviderID uint64
	// Provider is nil when the owning provider no longer exists.
	Provider *domain.Provider
}

// Store is the persistence the checker reads matches from and writes results to.
// Lookups that find nothing return nil and no error.
type Store interface {
	GreenDomain(ctx context.Context, url string, maxAge time.Duration) (*domain.GreenDomain, error)
	GreenDomains(ctx context.Context, urls []string, maxAge time.Duration) (map[string]domain.GreenDomain, error)
	SaveGreenDomain(ctx context.Context, row domain.GreenDomain) error
	DeleteGreenDomain(ctx context.Context, url string) error
	MatchIP(ctx context.Context, addr netip.Addr) (*Match, error)
	MatchASN(ctx context.Context, asn uint32) (*Match, error)
	LogCheck(ctx context.Context, check domain.Greencheck) error
}

type Checker struct {
	store    Store
	resolver Resolver
	asn      ASNLookup

	memory *memoryCache
	group  singleflight.Group

	maxAge      func() time.Duration
	concurrency int
	maxBatch    int
	now         func() time.Time
}

type Option func(*Checker)

func WithMemoryCache(size int, ttl time.Duration) Option {
	return func(c *Checker) {
		c.memory = newMemoryCache(size, ttl)
	}
}

// WithMaxAge sets how old a green domain row may be before it counts as a miss.
func WithMaxAge(maxAge func() time.Duration) Option {
	return func(c *Checker) {
		if maxAge != nil {
			c.maxAge = maxAge
		}
	}
}

func WithBatchConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithMaxBatchSize(n int) Option {
	return func(c *Checker) {
		c.maxBatch = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a checker. asn may be nil, in which case only IP ranges are matched.
func New(store Store, resolver Resolver, asn ASNLookup, opts ...Option) *Checker {
	c := &Checker{
		store:       store,
		resolver:    resolver,
		asn:         asn,
		maxAge:      func() time.Duration { return 0 },
		concurrency: 8,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.memory == nil {
		c.memory = newMemoryCache(0, 0)
	}
	return c
}

// Check runs the tiered lookup for one domain: memory, the green domain table,
// then a full lookup.
func (c *Checker) Check(ctx context.Context, rawURL string) (Result, error) {
	host, err := NormalizeDomain(rawURL)
	if err != nil {
		return Result{}, err
	}

	if result, ok := c.memory.get(host); ok {
		metrics.GreencheckLookups.WithLabelValues(metrics.TierMemory).Inc()
		result.Cached = true
		return result, nil
	}

	value, err, _ := c.group.Do("tiered:"+host, func() (any, error) {
		return c.tieredLookup(ctx, host)
	})
	if err != nil {
		return Result{}, err
	}
	return value.(Result), nil
}

func (c *Checker) tieredLookup(ctx context.Context, host string) (Result, error) {
	row, err := c.store.GreenDomain(ctx, host, c.maxAge())
	if err != nil {
		return Result{}, fmt.Errorf("green domain lookup %s: %w", host, err)
	}
	if row != nil && row.Green {
		metrics.GreencheckLookups.WithLabelValues(metrics.TierTable).Inc()
		result := resultFromGreenDomain(*row)
		c.memory.set(host, result)
		return result, nil
	}

	return c.PerformFullLookup(ctx, host)
}

// PerformFullLookup resolves the domain and matches its addresses against green
// IP ranges first, then green ASNs. The green domain table is refreshed and a
// check log entry is written.
func (c *Checker) PerformFullLookup(ctx context.Context, rawURL string) (Result, error) {
	host, err := NormalizeDomain(rawURL)
	if err != nil {
		return Result{}, err
	}

	metrics.GreencheckLookups.WithLabelValues(metrics.TierFull).Inc()

	result := GreyResult(host)
	result.Modified = c.now()

	addrs, err := c.resolver.LookupAddrs(ctx, host)
	if err != nil {
		log.Debug("Could not resolve domain", "domain", host, "error", err)
	}
	if len(addrs) > 0 {
		result.IP = addrs[0].String()
	}

	match, matchedAddr, err := c.matchAddrs(ctx, addrs)
	if err != nil {
		return Result{}, err
	}
	if match != nil {
		result.Green = true
		result.IP = matchedAddr.String()
		result.MatchType = match.Type
		result.MatchID = match.ID
		result.HostedByID = match.Provider.ID
		result.HostedBy = match.Provider.Name
		result.HostedByWebsite = match.Provider.Website
		result.Partner = match.Provider.Partner
	}

	c.persist(ctx, result)
	c.memory.set(host, result)
	metrics.GreencheckVerdicts.WithLabelValues(metrics.Verdict(result.Green), result.MatchType).Inc()

	return result, nil
}

// matchAddrs prefers an IP range match on any address over an ASN match.
func (c *Checker) matchAddrs(ctx context.Context, addrs []netip.Addr) (*Match, netip.Addr, error) {
	for _, addr := range addrs {
		match, err := c.store.MatchIP(ctx, addr)
		if err != nil {
			return nil, netip.Addr{}, fmt.Errorf("match ip %s: %w", addr, err)
		}
		if ok, err := usableMatch(match); err != nil {
			return nil, netip.Addr{}, err
		} else if ok {
			return match, addr, nil
		}
	}

	if c.asn == nil {
		return nil, netip.Addr{}, nil
	}

	for _, addr := range addrs {
		number, err := c.asn.LookupASN(addr)
		if err != nil {
			log.Debug("ASN lookup failed", "ip", addr, "error", err)
			continue
		}
		if number == 0 {
			continue
		}
		match, err := c.store.MatchASN(ctx, number)
		if err != nil {
			return nil, netip.Addr{}, fmt.Errorf("match AS%d: %w", number, err)
		}
		if ok, err := usableMatch(match); err != nil {
			return nil, netip.Addr{}, err
		} else if ok {
			return match, addr, nil
		}
	}

	return nil, netip.Addr{}, nil
}

func usableMatch(match *Match) (bool, error) {
	if match == nil {
		return false, nil
	}
	if match.Provider == nil {
		return false, fmt.Errorf("%w: %s match %d points at provider %d", ErrMissingProvider, match.Type, match.ID, match.ProviderID)
	}
	return !match.Provider.Archived, nil
}

// persist keeps only green domains in the table and logs every full lookup.
// Failures are logged; the caller still gets its answer.
func (c *Checker) persist(ctx context.Context, result Result) {
	if result.Green {
		if err := c.store.SaveGreenDomain(ctx, result.GreenDomain()); err != nil {
			log.Warn("Failed to store green domain", "domain", result.URL, "error", err)
		}
	} else if err := c.store.DeleteGreenDomain(ctx, result.URL); err != nil {
		log.Warn("Failed to drop stale green domain", "domain", result.URL, "error", err)
	}

	check := domain.Greencheck{
		URL:        result.URL,
		IP:         result.IP,
		Green:      result.Green,
		ProviderID: result.HostedByID,
		MatchType:  result.MatchType,
		CheckedAt:  result.Modified,
	}
	if err := c.store.LogCheck(ctx, check); err != nil {
		log.Warn("Failed to log greencheck", "domain", result.URL, "error", err)
	}
}

// Forget drops a domain from the in-process tier.
func (c *Checker) Forget(rawURL string) {
	if host, err := NormalizeDomain(rawURL); err == nil {
		c.memory.remove(host)
	}
}

// Reset empties the in-process tier, e.g. after an import changed the ranges.
func (c *Checker) Reset() {
	c.memory.purge()
}
