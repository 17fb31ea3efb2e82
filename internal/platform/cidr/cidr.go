// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package cidr parses network ranges and tests address containment for the
// administrative IP allow-list.
//
// # Address Families
//
// IPv4 ranges hold 4 bytes and IPv6 ranges hold 16. An address is compared
// only against ranges of its own family, so a mixed comparison never matches.
// IPv4-mapped IPv6 addresses (::ffff:a.b.c.d) are treated as IPv4.
package cidr

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidNotation is returned by [Parse] for anything that is not an
// address or an address/prefix pair.
var ErrInvalidNotation = errors.New("cidr: invalid notation")

// Range is an immutable network range.
type Range struct {
	network []byte
	mask    []byte
	prefix  int
}

// Parse accepts "address" or "address/prefixLength". A bare address becomes a
// single-host range (/32 for IPv4, /128 for IPv6).
func Parse(notation string) (Range, error) {
	notation = strings.TrimSpace(notation)
	address, prefixText, hasPrefix := strings.Cut(notation, "/")

	ip := normalize(net.ParseIP(address))
	if ip == nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
	}

	bits := len(ip) * 8
	prefix := bits
	if hasPrefix {
		parsed, err := strconv.Atoi(prefixText)
		if err != nil || parsed < 0 || parsed > bits {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidNotation, notation)
		}
		prefix = parsed
	}

	mask := []byte(net.CIDRMask(prefix, bits))
	network := make([]byte, len(ip))
	for i := range ip {
		network[i] = ip[i] & mask[i]
	}

	return Range{network: network, mask: mask, prefix: prefix}, nil
}

// MustParse is like [Parse] but panics on invalid input. Intended for tests and literals.
func MustParse(notation string) Range {
	r, err := Parse(notation)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether address falls inside the range.
// Unparseable addresses and addresses of the other family return false.
func (r Range) Contains(address string) bool {
	return r.containsIP(normalize(net.ParseIP(strings.TrimSpace(address))))
}

func (r Range) containsIP(ip net.IP) bool {
	if ip == nil || len(ip) != len(r.network) {
		return false
	}
	for i := range ip {
		if ip[i]&r.mask[i] != r.network[i] {
			return false
		}
	}
	return true
}

// String renders the range in canonical address/prefix form.
func (r Range) String() string {
	return fmt.Sprintf("%s/%d", net.IP(r.network).String(), r.prefix)
}

// IsIPv4 reports whether the range belongs to the IPv4 family.
func (r Range) IsIPv4() bool {
	return len(r.network) == net.IPv4len
}

// normalize collapses the 16-byte form of IPv4 addresses to 4 bytes.
func normalize(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// # Matcher

// Matcher checks an address against a set of ranges with OR semantics.
type Matcher struct {
	ranges []Range
}

// NewMatcher parses every entry. Invalid entries are logged and skipped
// so one typo never disables the whole allow-list.
func NewMatcher(entries []string, logger *slog.Logger) *Matcher {
	ranges := make([]Range, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}

		parsed, err := Parse(entry)
		if err != nil {
			logger.Warn("cidr_entry_skipped",
				slog.String("entry", entry),
				slog.Any("error", err),
			)
			continue
		}
		ranges = append(ranges, parsed)
	}
	return &Matcher{ranges: ranges}
}

// Allows reports whether address is inside any configured range.
// A matcher without valid ranges allows nothing.
func (matcher *Matcher) Allows(address string) bool {
	ip := normalize(net.ParseIP(strings.TrimSpace(address)))
	if ip == nil {
		return false
	}
	for _, r := range matcher.ranges {
		if r.containsIP(ip) {
			return true
		}
	}
	return false
}

// Len returns the number of valid ranges.
func (matcher *Matcher) Len() int {
	return len(matcher.ranges)
}
