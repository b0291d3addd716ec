package greencheck

import (
	"errors"
	"testing"
)

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "example.com", want: "example.com"},
		{name: "uppercase", in: "WWW.Example.COM", want: "www.example.com"},
		{name: "scheme and path", in: "https://www.example.com/some/page?q=1", want: "www.example.com"},
		{name: "port", in: "example.com:8080", want: "example.com"},
		{name: "trailing dot", in: "example.com.", want: "example.com"},
		{name: "surrounding space", in: "  example.org  ", want: "example.org"},
		{name: "idn", in: "bücher.example", want: "xn--bcher-kva.example"},
		{name: "ipv4 literal", in: "192.0.2.10", want: "192.0.2.10"},
		{name: "ipv6 literal", in: "[2001:db8::1]", want: "2001:db8::1"},
		{name: "ipv6 url", in: "http://[2001:db8::1]:80/", want: "2001:db8::1"},
		{name: "collapsed scheme", in: "https:/www.example.com/page", want: "www.example.com"},
		{name: "collapsed scheme upper", in: "HTTP:/Example.org", want: "example.org"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeDomain(tc.in)
			if err != nil {
				t.Fatalf("NormalizeDomain(%q) returned error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeDomain(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeDomainRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "https://", "not a domain"} {
		if _, err := NormalizeDomain(in); !errors.Is(err, ErrInvalidDomain) {
			t.Fatalf("NormalizeDomain(%q) error = %v, want ErrInvalidDomain", in, err)
		}
	}
}
