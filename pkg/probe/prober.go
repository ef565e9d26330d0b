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

// Package probe performs single-host reachability checks over ICMP and
// SNMPv3, with TCP port fingerprinting as a fallback presence signal.
package probe

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

const reverseLookupTimeout = 500 * time.Millisecond

// NetworkProber merges the ICMP, SNMPv3, and port-fingerprint legs into one
// ProbeResult. Legs are injected so tests can fake the network transports.
type NetworkProber struct {
	pinger  Pinger
	querier SNMPQuerier
	ports   PortScanner
	logger  logger.Logger
}

var _ Prober = (*NetworkProber)(nil)

// NewNetworkProber builds a prober from the given legs. Any leg may be nil,
// in which case the corresponding facet is skipped.
func NewNetworkProber(pinger Pinger, querier SNMPQuerier, ports PortScanner, log logger.Logger) *NetworkProber {
	return &NetworkProber{
		pinger:  pinger,
		querier: querier,
		ports:   ports,
		logger:  log,
	}
}

// Probe checks one address with the given method. The two protocol facets run
// independently; a facet that times out or fails authentication is recorded
// as unreachable without failing the probe. For method "both", the TCP
// fingerprint sweep runs only when neither protocol facet responded, as a
// last presence signal.
func (p *NetworkProber) Probe(
	ctx context.Context, ip string, method models.DiscoveryMethod, cred *models.SNMPv3Credential,
) (*models.ProbeResult, error) {
	if parsed := net.ParseIP(ip); parsed == nil || parsed.To4() == nil {
		return nil, ErrInvalidAddress
	}

	if !method.Valid() {
		return nil, ErrUnsupportedMethod
	}

	if method.RequiresCredential() && cred == nil {
		return nil, ErrMissingCredential
	}

	result := &models.ProbeResult{IP: ip}

	var wg sync.WaitGroup

	if (method == models.MethodICMP || method == models.MethodBoth) && p.pinger != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result.ICMP = p.pingFacet(ctx, ip)
		}()
	}

	if (method == models.MethodSNMPv3 || method == models.MethodBoth) && p.querier != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result.SNMP = p.snmpFacet(ctx, ip, cred)
		}()
	}

	wg.Wait()

	if method == models.MethodBoth && !result.Reachable() && p.ports != nil {
		open, err := p.ports.ScanPorts(ctx, ip)
		if err != nil {
			p.logger.Debug().Err(err).Str("ip", ip).Msg("Port fingerprint sweep failed")
		} else {
			result.OpenPorts = open
		}
	}

	Fingerprint(result)

	if result.Reachable() {
		result.Hostname = reverseLookup(ctx, ip)
	}

	return result, nil
}

func (p *NetworkProber) pingFacet(ctx context.Context, ip string) *models.ICMPResult {
	res, err := p.pinger.Ping(ctx, ip)
	if err != nil {
		p.logger.Debug().Err(err).Str("ip", ip).Msg("ICMP probe failed")
		return &models.ICMPResult{Reachable: false}
	}

	return res
}

func (p *NetworkProber) snmpFacet(ctx context.Context, ip string, cred *models.SNMPv3Credential) *models.SNMPResult {
	res, err := p.querier.Query(ctx, ip, cred)
	if err != nil {
		p.logger.Debug().Err(err).Str("ip", ip).Msg("SNMP probe failed")
		return &models.SNMPResult{Reachable: false}
	}

	return res
}

func reverseLookup(ctx context.Context, ip string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, reverseLookupTimeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(lookupCtx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}

	return strings.TrimSuffix(names[0], ".")
}
