// Package ipcheck decides whether an IPv4 address belongs to a configured
// set of approved ranges.
package ipcheck

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is either an exact address or an address/prefix pair.
type Range struct {
	raw    string
	cidr   bool
	base   uint32
	prefix int
}

func (r Range) String() string {
	return r.raw
}

// ParseRange validates a range entry. Entries are checked once at
// configuration load so IsInRange never has to deal with bad input.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	addr, prefix, isCIDR := strings.Cut(s, "/")
	base, ok := toUint32(addr)
	if !ok {
		return Range{}, fmt.Errorf("invalid IPv4 address in range %q", s)
	}
	if !isCIDR {
		return Range{raw: s, base: base}, nil
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 || n > 32 {
		return Range{}, fmt.Errorf("invalid prefix length in range %q", s)
	}
	return Range{raw: s, cidr: true, base: base, prefix: n}, nil
}

func ParseRanges(entries []string) ([]Range, error) {
	ranges := make([]Range, 0, len(entries))
	for _, e := range entries {
		r, err := ParseRange(e)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// contains reports whether address falls in r. The address is given both
// as text (for exact entries) and as its integer form.
func (r Range) contains(address string, ip uint32) bool {
	if !r.cidr {
		return address == r.raw
	}
	mask := maskOf(r.prefix)
	return ip&mask == r.base&mask
}

// IsInRange reports whether address matches any of ranges. Anything that
// is not an IPv4 dotted quad is never in range.
func IsInRange(address string, ranges []Range) bool {
	ip, ok := toUint32(address)
	if !ok {
		return false
	}
	for _, r := range ranges {
		if r.contains(address, ip) {
			return true
		}
	}
	return false
}

func maskOf(prefix int) uint32 {
	if prefix <= 0 {
		return 0
	}
	return ^uint32(0) << (32 - prefix)
}

// toUint32 packs a dotted quad into an integer, byte 0 most significant.
// Octets are read as decimal, so zero padded quads such as 010.000.000.001
// are accepted.
func toUint32(address string) (uint32, bool) {
	parts := strings.Split(address, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var ip uint32
	for _, part := range parts {
		if len(part) == 0 || len(part) > 3 {
			return 0, false
		}
		n, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, false
		}
		ip = ip<<8 | uint32(n)
	}
	return ip, true
}
