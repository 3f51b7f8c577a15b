package catalog

import (
	"fmt"
	"net"
	"strings"

	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// IncludeReverseLookupRecords scans every A/AAAA record currently in the
// catalog and inserts a matching PTR under in-addr.arpa (IPv4) or
// ip6.arpa (IPv6), so address-to-name lookups resolve the same way
// name-to-address ones do.
func (c *Catalog) IncludeReverseLookupRecords() {
	c.mu.RLock()
	names := make([]string, 0, len(c.nodes))
	for name := range c.nodes {
		names = append(names, name)
	}
	c.mu.RUnlock()

	for _, name := range names {
		for _, set := range c.Lookup(name) {
			for _, rr := range set.Records {
				switch d := rr.Data.(type) {
				case wire.A:
					c.Add(wire.RR{
						Name:       reverseNameIPv4(d.Address),
						Type:       protocol.TypePTR,
						Class:      protocol.ClassIN,
						TTL:        rr.TTL,
						CacheFlush: false,
						Data:       wire.PTR{Target: rr.Name},
					}, set.Authoritative)
				case wire.AAAA:
					c.Add(wire.RR{
						Name:       reverseNameIPv6(d.Address),
						Type:       protocol.TypePTR,
						Class:      protocol.ClassIN,
						TTL:        rr.TTL,
						CacheFlush: false,
						Data:       wire.PTR{Target: rr.Name},
					}, set.Authoritative)
				}
			}
		}
	}
}

// reverseNameIPv4 returns the in-addr.arpa owner name for an IPv4
// address per RFC 1035 §3.5.
func reverseNameIPv4(ip net.IP) string {
	v4 := ip.To4()
	return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", v4[3], v4[2], v4[1], v4[0])
}

// reverseNameIPv6 returns the ip6.arpa owner name for an IPv6 address
// per RFC 3596 §2.5: each nibble, reversed, dot-separated.
func reverseNameIPv6(ip net.IP) string {
	v6 := ip.To16()
	var b strings.Builder
	for i := len(v6) - 1; i >= 0; i-- {
		b.WriteString(fmt.Sprintf("%x.%x.", v6[i]&0x0f, v6[i]>>4))
	}
	b.WriteString("ip6.arpa")
	return b.String()
}
