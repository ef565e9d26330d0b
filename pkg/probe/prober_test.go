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

package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

type fakePinger struct {
	result *models.ICMPResult
	err    error
	calls  int
}

func (f *fakePinger) Ping(_ context.Context, _ string) (*models.ICMPResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeQuerier struct {
	result *models.SNMPResult
	err    error
	calls  int
}

func (f *fakeQuerier) Query(_ context.Context, _ string, _ *models.SNMPv3Credential) (*models.SNMPResult, error) {
	f.calls++
	return f.result, f.err
}

type fakePortScanner struct {
	open  []int
	err   error
	calls int
}

func (f *fakePortScanner) ScanPorts(_ context.Context, _ string) ([]int, error) {
	f.calls++
	return f.open, f.err
}

func testCredential() *models.SNMPv3Credential {
	return &models.SNMPv3Credential{
		Username:        "monitor",
		AuthProtocol:    "SHA256",
		AuthPassword:    "authpass",
		PrivacyProtocol: "AES256",
		PrivacyPassword: "privpass",
	}
}

func TestProbeICMPOnly(t *testing.T) {
	pinger := &fakePinger{result: &models.ICMPResult{Reachable: true, RTT: 3 * time.Millisecond, TTL: 64}}
	querier := &fakeQuerier{result: &models.SNMPResult{Reachable: true}}
	prober := NewNetworkProber(pinger, querier, nil, logger.NewTestLogger())

	result, err := prober.Probe(context.Background(), "192.0.2.10", models.MethodICMP, nil)
	require.NoError(t, err)

	require.NotNil(t, result.ICMP)
	assert.True(t, result.ICMP.Reachable)
	assert.Nil(t, result.SNMP)
	assert.Equal(t, 0, querier.calls, "icmp method must not touch SNMP")
	assert.True(t, result.Reachable())
}

func TestProbeSNMPRequiresCredential(t *testing.T) {
	prober := NewNetworkProber(&fakePinger{}, &fakeQuerier{}, nil, logger.NewTestLogger())

	_, err := prober.Probe(context.Background(), "192.0.2.10", models.MethodSNMPv3, nil)
	require.ErrorIs(t, err, ErrMissingCredential)

	_, err = prober.Probe(context.Background(), "192.0.2.10", models.MethodBoth, nil)
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestProbeInvalidInputs(t *testing.T) {
	prober := NewNetworkProber(&fakePinger{}, &fakeQuerier{}, nil, logger.NewTestLogger())

	_, err := prober.Probe(context.Background(), "not-an-ip", models.MethodICMP, nil)
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = prober.Probe(context.Background(), "2001:db8::1", models.MethodICMP, nil)
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = prober.Probe(context.Background(), "192.0.2.1", models.DiscoveryMethod("arp"), nil)
	require.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestProbeBothMergesFacets(t *testing.T) {
	pinger := &fakePinger{result: &models.ICMPResult{Reachable: true, TTL: 255}}
	querier := &fakeQuerier{result: &models.SNMPResult{
		Reachable: true,
		SysName:   "core-sw1",
		SysDescr:  "Cisco NX-OS n9000",
	}}
	ports := &fakePortScanner{open: []int{22}}
	prober := NewNetworkProber(pinger, querier, ports, logger.NewTestLogger())

	result, err := prober.Probe(context.Background(), "10.0.0.1", models.MethodBoth, testCredential())
	require.NoError(t, err)

	require.NotNil(t, result.ICMP)
	require.NotNil(t, result.SNMP)
	assert.Equal(t, "core-sw1", result.SNMP.SysName)
	assert.Equal(t, "Cisco", result.Vendor)
	assert.Equal(t, confidenceICMP+confidenceSNMP, result.Confidence)

	// Both facets answered, so the fingerprint sweep is skipped.
	assert.Equal(t, 0, ports.calls)
}

func TestProbeBothFallsBackToPorts(t *testing.T) {
	pinger := &fakePinger{err: errors.New("sendto: operation not permitted")}
	querier := &fakeQuerier{result: &models.SNMPResult{Reachable: false}}
	ports := &fakePortScanner{open: []int{135, 445, 3389}}
	prober := NewNetworkProber(pinger, querier, ports, logger.NewTestLogger())

	result, err := prober.Probe(context.Background(), "10.0.0.9", models.MethodBoth, testCredential())
	require.NoError(t, err)

	// Leg errors become unreachable facets, not probe failures.
	require.NotNil(t, result.ICMP)
	assert.False(t, result.ICMP.Reachable)
	require.NotNil(t, result.SNMP)
	assert.False(t, result.SNMP.Reachable)

	assert.Equal(t, 1, ports.calls)
	assert.Equal(t, []int{135, 445, 3389}, result.OpenPorts)
	assert.True(t, result.Reachable(), "open ports indicate presence")
	assert.Equal(t, 15, result.Confidence)
	assert.Equal(t, "windows", result.OSFamily)
}

func TestProbeUnreachableIsDataNotError(t *testing.T) {
	pinger := &fakePinger{result: &models.ICMPResult{Reachable: false}}
	prober := NewNetworkProber(pinger, nil, nil, logger.NewTestLogger())

	result, err := prober.Probe(context.Background(), "192.0.2.77", models.MethodICMP, nil)
	require.NoError(t, err)

	assert.False(t, result.Reachable())
	assert.Equal(t, 0, result.Confidence)
}

func TestStaticCredentialsResolve(t *testing.T) {
	creds := StaticCredentials{"lab": testCredential()}

	got, err := creds.Resolve(context.Background(), "lab")
	require.NoError(t, err)
	assert.Equal(t, "monitor", got.Username)

	_, err = creds.Resolve(context.Background(), "missing")
	require.ErrorIs(t, err, ErrCredentialNotFound)
}
