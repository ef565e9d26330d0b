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

package scan

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeHostCounts(t *testing.T) {
	tests := []struct {
		cidr  string
		count int
	}{
		{"192.168.1.0/30", 2},
		{"192.168.1.0/29", 6},
		{"192.168.1.0/24", 254},
		{"10.0.0.0/16", 65534},
		{"10.0.0.0/31", 2},
		{"10.0.0.5/32", 1},
	}

	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			r, err := ParseRange(tt.cidr, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.count, r.Count())
		})
	}
}

func TestParseRangeInvalid(t *testing.T) {
	tests := []string{
		"not-a-cidr",
		"10.0.0.0",
		"10.0.0.0/33",
		"300.0.0.0/24",
		"fe80::/64",
	}

	for _, cidr := range tests {
		t.Run(cidr, func(t *testing.T) {
			_, err := ParseRange(cidr, 0)
			require.Error(t, err)
		})
	}
}

func TestParseRangeTooLarge(t *testing.T) {
	_, err := ParseRange("10.0.0.0/8", 0)
	require.ErrorIs(t, err, ErrRangeTooLarge)

	_, err = ParseRange("10.0.0.0/15", 0)
	require.ErrorIs(t, err, ErrRangeTooLarge)

	// A /16 is exactly at the default ceiling.
	_, err = ParseRange("10.0.0.0/16", 0)
	require.NoError(t, err)

	// Custom ceiling.
	_, err = ParseRange("192.168.0.0/24", 100)
	require.ErrorIs(t, err, ErrRangeTooLarge)
}

func TestAddressesAscendingWithinBlock(t *testing.T) {
	r, err := ParseRange("192.168.1.0/28", 0)
	require.NoError(t, err)
	require.Equal(t, 14, r.Count())

	_, ipnet, err := net.ParseCIDR("192.168.1.0/28")
	require.NoError(t, err)

	next := r.Addresses(0)
	seen := make(map[string]bool)

	var prev net.IP

	for {
		addr, ok := next()
		if !ok {
			break
		}

		ip := net.ParseIP(addr)
		require.NotNil(t, ip)
		assert.True(t, ipnet.Contains(ip), "address %s outside block", addr)
		assert.False(t, seen[addr], "duplicate address %s", addr)
		seen[addr] = true

		// Network and broadcast are excluded.
		assert.NotEqual(t, "192.168.1.0", addr)
		assert.NotEqual(t, "192.168.1.15", addr)

		if prev != nil {
			assert.Equal(t, -1, compareIPs(prev, ip), "addresses out of order")
		}

		prev = ip
	}

	assert.Len(t, seen, 14)
}

func TestAddressesRestartable(t *testing.T) {
	r, err := ParseRange("10.1.2.0/29", 0)
	require.NoError(t, err)

	var all []string

	next := r.Addresses(0)

	for {
		addr, ok := next()
		if !ok {
			break
		}

		all = append(all, addr)
	}

	require.Len(t, all, 6)

	// Resuming at an offset yields the suffix of the same sequence.
	resumed := r.Addresses(4)

	addr, ok := resumed()
	require.True(t, ok)
	assert.Equal(t, all[4], addr)

	addr, ok = resumed()
	require.True(t, ok)
	assert.Equal(t, all[5], addr)

	_, ok = resumed()
	assert.False(t, ok)
}

func TestSlash31And32AllUsable(t *testing.T) {
	r, err := ParseRange("10.0.0.0/31", 0)
	require.NoError(t, err)

	next := r.Addresses(0)

	a, ok := next()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0", a)

	b, ok := next()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", b)

	_, ok = next()
	assert.False(t, ok)

	r, err = ParseRange("172.16.0.9/32", 0)
	require.NoError(t, err)
	assert.Equal(t, "172.16.0.9", r.Addr(0))
	assert.Equal(t, "", r.Addr(1))
}

func compareIPs(a, b net.IP) int {
	a4, b4 := a.To4(), b.To4()

	for i := range a4 {
		if a4[i] < b4[i] {
			return -1
		}

		if a4[i] > b4[i] {
			return 1
		}
	}

	return 0
}
