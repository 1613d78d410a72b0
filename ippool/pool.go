package ippool

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// Range is one "start-end" piece of a pool definition.
type Range struct {
	Start, End uint32
}

func parseIP(s string) (uint32, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return 0, fmt.Errorf("invalid IP address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return binary.BigEndian.Uint32(v4), nil
}

func formatIP(v uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return net.IP(b[:]).String()
}

// ParseRanges parses a pool definition like
// "10.5.50.10-10.5.50.250,10.5.51.1-10.5.51.100". A single address is a
// one-element range.
func ParseRanges(s string) ([]Range, error) {
	var ranges []Range
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		start, err := parseIP(bounds[0])
		if err != nil {
			return nil, err
		}
		end := start
		if len(bounds) == 2 {
			end, err = parseIP(bounds[1])
			if err != nil {
				return nil, err
			}
		}
		if end < start {
			return nil, fmt.Errorf("range %q ends before it starts", part)
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("empty pool definition %q", s)
	}
	return ranges, nil
}

// Allocator answers "which addresses in this pool are free" given the set
// of addresses currently leased on the router.
type Allocator struct {
	ranges []Range
	used   *AddressSet
}

func NewAllocator(ranges []Range) *Allocator {
	return &Allocator{ranges: ranges, used: NewAddressSet()}
}

// MarkUsed records a leased address. Addresses outside the pool's ranges
// are recorded too; they simply never show up as free.
func (a *Allocator) MarkUsed(addr string) error {
	v, err := parseIP(addr)
	if err != nil {
		return err
	}
	a.used.Add(v)
	return nil
}

func (a *Allocator) Release(addr string) error {
	v, err := parseIP(addr)
	if err != nil {
		return err
	}
	a.used.Remove(v)
	return nil
}

// NextFree returns the first free address of the pool.
func (a *Allocator) NextFree() (string, bool) {
	for _, r := range a.ranges {
		v := a.used.NextFree(r.Start)
		if v <= r.End {
			return formatIP(v), true
		}
	}
	return "", false
}

// FreeAddrs lists free addresses across all ranges, up to limit
// (limit <= 0 means no cap).
func (a *Allocator) FreeAddrs(limit int) []string {
	var free []string
	for _, r := range a.ranges {
		v := r.Start
		for v <= r.End {
			v = a.used.NextFree(v)
			if v > r.End {
				break
			}
			free = append(free, formatIP(v))
			if limit > 0 && len(free) >= limit {
				return free
			}
			if v == ^uint32(0) {
				break
			}
			v++
		}
	}
	return free
}
