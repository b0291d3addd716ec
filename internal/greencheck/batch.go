package greencheck

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"greenweb/internal/metrics"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

var ErrBatchTooLarge = errors.New("too many urls in one batch")

// CheckBatch checks many urls at once. Results are returned in input order; input
// that is not a usable domain comes back grey under its original string.
func (c *Checker) CheckBatch(ctx context.Context, urls []string) ([]Result, error) {
	if c.maxBatch > 0 && len(urls) > c.maxBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(urls), c.maxBatch)
	}

	results := make([]Result, len(urls))
	hosts := make([]string, len(urls))
	var unique []string
	seen := make(map[string]struct{}, len(urls))

	for i, raw := range urls {
		host, err := NormalizeDomain(raw)
		if err != nil {
			results[i] = GreyResult(raw)
			continue
		}
		hosts[i] = host
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		unique = append(unique, host)
	}

	resolved := make(map[string]Result, len(unique))
	var pending []string
	for _, host := range unique {
		if result, ok := c.memory.get(host); ok {
			metrics.GreencheckLookups.WithLabelValues(metrics.TierMemory).Inc()
			result.Cached = true
			resolved[host] = result
			continue
		}
		pending = append(pending, host)
	}

	var missing []string
	if len(pending) > 0 {
		rows, err := c.store.GreenDomains(ctx, pending, c.maxAge())
		if err != nil {
			return nil, fmt.Errorf("green domain batch lookup: %w", err)
		}
		for _, host := range pending {
			row, ok := rows[host]
			if !ok || !row.Green {
				missing = append(missing, host)
				continue
			}
			metrics.GreencheckLookups.WithLabelValues(metrics.TierTable).Inc()
			result := resultFromGreenDomain(row)
			c.memory.set(host, result)
			resolved[host] = result
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, host := range missing {
		g.Go(func() error {
			value, err, _ := c.group.Do("full:"+host, func() (any, error) {
				return c.PerformFullLookup(gctx, host)
			})
			result := GreyResult(host)
			switch {
			case errors.Is(err, ErrMissingProvider):
				return err
			case err != nil:
				log.Warn("Full lookup failed, reporting grey", "domain", host, "error", err)
			default:
				result = value.(Result)
			}

			mu.Lock()
			resolved[host] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, host := range hosts {
		if host == "" {
			continue
		}
		results[i] = resolved[host]
	}
	return results, nil
}

// GreyURLsOnly returns the urls that have no entry among the green matches.
func GreyURLsOnly(urls []string, greenMatches []Result) []string {
	green := make(map[string]struct{}, len(greenMatches))
	for _, match := range greenMatches {
		green[match.URL] = struct{}{}
	}

	var grey []string
	for _, raw := range urls {
		key := raw
		if host, err := NormalizeDomain(raw); err == nil {
			key = host
		}
		if _, ok := green[key]; ok {
			continue
		}
		grey = append(grey, raw)
	}
	return grey
}

// BuildGreenGreylist joins green matches with grey placeholders for the remaining urls.
func BuildGreenGreylist(greyURLs []string, greenMatches []Result) []Result {
	out := make([]Result, 0, len(greenMatches)+len(greyURLs))
	out = append(out, greenMatches...)
	for _, raw := range greyURLs {
		out = append(out, GreyResult(raw))
	}
	return out
}
