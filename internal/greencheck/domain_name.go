package greencheck

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var ErrInvalidDomain = errors.New("invalid domain")

// NormalizeDomain reduces user input such as "https://Example.COM:443/path"
// to the hostname used as cache key: lowercase, ASCII (punycode), no trailing dot.
// IP literals are returned in canonical form.
func NormalizeDomain(raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidDomain)
	}

	if addr, err := netip.ParseAddr(strings.Trim(input, "[]")); err == nil {
		return addr.Unmap().String(), nil
	}

	input = repairSchemeSlashes(input)

	host := input
	if strings.Contains(input, "://") || strings.ContainsAny(input, "/?#") || strings.Contains(input, ":") {
		candidate := input
		if !strings.Contains(candidate, "://") {
			candidate = "//" + candidate
		}
		parsed, err := url.Parse(candidate)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidDomain, raw, err)
		}
		host = parsed.Hostname()
	}

	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidDomain, raw)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String(), nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidDomain, raw, err)
	}
	return strings.ToLower(ascii), nil
}

// repairSchemeSlashes restores "https:/host" to "https://host". Path cleaning
// in the HTTP router collapses the double slash of URLs passed in the path.
func repairSchemeSlashes(input string) string {
	scheme, rest, ok := strings.Cut(input, ":/")
	if !ok || strings.HasPrefix(rest, "/") {
		return input
	}
	if !strings.EqualFold(scheme, "http") && !strings.EqualFold(scheme, "https") {
		return input
	}
	return scheme + "://" + rest
}
