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

//go:generate mockgen -destination=mock_probe.go -package=probe github.com/stratalink/netdiscover/pkg/probe Prober,CredentialResolver

package probe

import (
	"context"

	"github.com/stratalink/netdiscover/pkg/models"
)

// Prober performs one reachability check against a single address. Probe
// failures at the protocol level (timeouts, auth failures) are data in the
// result, not errors; the error return is reserved for programming or
// configuration faults.
type Prober interface {
	Probe(ctx context.Context, ip string, method models.DiscoveryMethod,
		cred *models.SNMPv3Credential) (*models.ProbeResult, error)
}

// CredentialResolver looks up SNMPv3 secrets by opaque reference. The
// concrete secret store is owned by the credential-management subsystem and
// injected here so the core carries no dependency on it.
type CredentialResolver interface {
	Resolve(ctx context.Context, credentialID string) (*models.SNMPv3Credential, error)
}

// Pinger is the ICMP leg of a probe.
type Pinger interface {
	Ping(ctx context.Context, ip string) (*models.ICMPResult, error)
}

// SNMPQuerier is the SNMPv3 leg of a probe.
type SNMPQuerier interface {
	Query(ctx context.Context, ip string, cred *models.SNMPv3Credential) (*models.SNMPResult, error)
}

// PortScanner probes a fixed TCP port set for device-presence signals.
type PortScanner interface {
	ScanPorts(ctx context.Context, ip string) ([]int, error)
}
