/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package scan expands CIDR blocks into enumerable host address ranges.
package scan

import (
	"encoding/binary"
	"fmt"
	"net"
)

// DefaultMaxHosts is the default ceiling on usable hosts per range,
// effectively a /16.
const DefaultMaxHosts = 65534

// Range is a validated IPv4 CIDR block with a fixed usable host count.
// Addresses are enumerated lazily in ascending numeric order, skipping the
// network and broadcast addresses for prefixes of /30 and shorter. For /31
// and /32 every address is usable (RFC 3021 point-to-point semantics).
type Range struct {
	cidr   string
	first  uint32 // first usable address
	count  int
	prefix int
}

// ParseRange validates cidr and returns its usable range. maxHosts <= 0
// applies DefaultMaxHosts.
func ParseRange(cidr string, maxHosts int) (*Range, error) {
	if maxHosts <= 0 {
		maxHosts = DefaultMaxHosts
	}

	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, cidr)
	}

	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotIPv4, cidr)
	}

	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("%w: %q", ErrNotIPv4, cidr)
	}

	network := binary.BigEndian.Uint32(ip4)

	var first uint32

	var count int

	switch {
	case ones >= 31:
		// Point-to-point and host routes: no network/broadcast exclusion.
		first = network
		count = 1 << (32 - ones)
	default:
		first = network + 1
		count = (1 << (32 - ones)) - 2
	}

	if count > maxHosts {
		return nil, fmt.Errorf("%w: %q has %d usable hosts (max %d)",
			ErrRangeTooLarge, cidr, count, maxHosts)
	}

	return &Range{cidr: cidr, first: first, count: count, prefix: ones}, nil
}

// HostCount computes the usable host count for cidr without materializing the
// range, applying the same ceiling as ParseRange.
func HostCount(cidr string, maxHosts int) (int, error) {
	r, err := ParseRange(cidr, maxHosts)
	if err != nil {
		return 0, err
	}

	return r.count, nil
}

// CIDR returns the original CIDR string.
func (r *Range) CIDR() string { return r.cidr }

// Count returns the fixed usable host count.
func (r *Range) Count() int { return r.count }

// Prefix returns the prefix length.
func (r *Range) Prefix() int { return r.prefix }

// Addr returns the usable address at offset (0-based) in ascending order.
// Offsets outside [0, Count) return the empty string.
func (r *Range) Addr(offset int) string {
	if offset < 0 || offset >= r.count {
		return ""
	}

	var buf [4]byte

	binary.BigEndian.PutUint32(buf[:], r.first+uint32(offset))

	return net.IP(buf[:]).String()
}

// Addresses returns a lazy sequence of usable addresses starting at offset.
// The offset makes enumeration restartable: a runner resuming after a crash
// passes the number of addresses already processed and continues without
// re-deriving state.
func (r *Range) Addresses(offset int) func() (string, bool) {
	next := offset

	return func() (string, bool) {
		if next < 0 || next >= r.count {
			return "", false
		}

		addr := r.Addr(next)
		next++

		return addr, true
	}
}
