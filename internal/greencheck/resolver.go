package greencheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/charmbracelet/log"
	"github.com/miekg/dns"
)

// Resolver turns a hostname into the addresses it is served from.
type Resolver interface {
	LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error)
}

// ASNLookup maps an address to the autonomous system announcing it.
// It returns 0 when the address is unknown.
type ASNLookup interface {
	LookupASN(addr netip.Addr) (uint32, error)
}

const (
	defaultDNSTimeout = 5 * time.Second
	maxCNAMEDepth     = 8
)

var defaultNameservers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// DNSResolver queries A and AAAA records against a fixed list of recursive servers.
type DNSResolver struct {
	client  *dns.Client
	servers []string
}

func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}

	normalized := make([]string, 0, len(servers))
	for _, server := range servers {
		if server == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		normalized = append(normalized, server)
	}
	if len(normalized) == 0 {
		normalized = append(normalized, defaultNameservers...)
	}

	return &DNSResolver{
		client:  &dns.Client{Timeout: timeout},
		servers: normalized,
	}
}

// LookupAddrs returns IPv4 addresses first, then IPv6. A name without records
// yields an empty slice and no error.
func (r *DNSResolver) LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}

	var (
		addrs []netip.Addr
		errs  []error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := r.query(ctx, dns.Fqdn(host), qtype)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		addrs = append(addrs, found...)
	}

	if len(addrs) == 0 && len(errs) == 2 {
		return nil, errors.Join(errs...)
	}
	return addrs, nil
}

func (r *DNSResolver) query(ctx context.Context, name string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(name, qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = fmt.Errorf("query %s %s via %s: %w", dns.TypeToString[qtype], name, server, err)
			log.Debug("DNS query failed", "server", server, "name", name, "error", err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
			return addrsFromAnswer(resp.Answer, name), nil
		default:
			lastErr = fmt.Errorf("query %s %s via %s: %s", dns.TypeToString[qtype], name, server, dns.RcodeToString[resp.Rcode])
		}
	}
	return nil, lastErr
}

// addrsFromAnswer follows the CNAME chain starting at name and collects its A/AAAA records.
func addrsFromAnswer(answer []dns.RR, name string) []netip.Addr {
	target := dns.CanonicalName(name)
	for depth := 0; depth < maxCNAMEDepth; depth++ {
		next := ""
		for _, rr := range answer {
			if cname, ok := rr.(*dns.CNAME); ok && dns.CanonicalName(cname.Hdr.Name) == target {
				next = dns.CanonicalName(cname.Target)
				break
			}
		}
		if next == "" {
			break
		}
		target = next
	}

	var addrs []netip.Addr
	for _, rr := range answer {
		if dns.CanonicalName(rr.Header().Name) != target {
			continue
		}
		switch record := rr.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(record.A.To4()); ok {
				addrs = append(addrs, addr)
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(record.AAAA.To16()); ok {
				addrs = append(addrs, addr.Unmap())
			}
		}
	}
	return addrs
}
