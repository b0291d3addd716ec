package importer

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Networks is a parsed dataset split by kind.
type Networks struct {
	V4   []netip.Prefix
	V6   []netip.Prefix
	ASNs []uint32
}

func (n Networks) Empty() bool {
	return len(n.V4) == 0 && len(n.V6) == 0 && len(n.ASNs) == 0
}

func (n Networks) Len() int {
	return len(n.V4) + len(n.V6) + len(n.ASNs)
}

// ParseNetworks classifies raw dataset entries. "AS<n>" entries become ASNs,
// CIDR prefixes and bare addresses become networks (a bare address is a /32
// or /128). Duplicates are dropped and anything unparsable is logged and skipped.
func ParseNetworks(entries []string) Networks {
	var out Networks
	seenPrefixes := make(map[netip.Prefix]struct{}, len(entries))
	seenASNs := make(map[uint32]struct{})

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		if asn, ok := parseASN(entry); ok {
			if _, dup := seenASNs[asn]; !dup {
				seenASNs[asn] = struct{}{}
				out.ASNs = append(out.ASNs, asn)
			}
			continue
		}

		prefix, err := parsePrefix(entry)
		if err != nil {
			log.Warn("Skipping invalid network", "entry", entry, "error", err)
			continue
		}
		if _, dup := seenPrefixes[prefix]; dup {
			continue
		}
		seenPrefixes[prefix] = struct{}{}

		if prefix.Addr().Is4() {
			out.V4 = append(out.V4, prefix)
		} else {
			out.V6 = append(out.V6, prefix)
		}
	}

	return out
}

func parseASN(entry string) (uint32, bool) {
	if len(entry) < 3 || !strings.EqualFold(entry[:2], "AS") {
		return 0, false
	}
	n, err := strconv.ParseUint(entry[2:], 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint32(n), true
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		if prefix.Addr().Is4In6() {
			if prefix.Bits() < 96 {
				return netip.Prefix{}, fmt.Errorf("mapped IPv4 prefix %s is shorter than /96", entry)
			}
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()-96)
		}
		prefix = prefix.Masked()
		if !prefix.IsValid() {
			return netip.Prefix{}, fmt.Errorf("invalid prefix %s", entry)
		}
		return prefix, nil
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap().WithZone("")
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
