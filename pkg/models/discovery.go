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

// Package models provides data models for the discovery service.
package models

import "time"

// DiscoveryMethod selects how a job probes each address.
type DiscoveryMethod string

const (
	MethodICMP   DiscoveryMethod = "icmp"
	MethodSNMPv3 DiscoveryMethod = "snmpv3"
	MethodBoth   DiscoveryMethod = "both"
)

// Valid reports whether m is a known discovery method.
func (m DiscoveryMethod) Valid() bool {
	switch m {
	case MethodICMP, MethodSNMPv3, MethodBoth:
		return true
	default:
		return false
	}
}

// RequiresCredential reports whether the method needs an SNMPv3 credential.
func (m DiscoveryMethod) RequiresCredential() bool {
	return m == MethodSNMPv3 || m == MethodBoth
}

// JobStatus describes the lifecycle state of a discovery job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status accepts no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// jobTransitions is the allowed status transition table. A job is claimed by
// moving pending->running; every job ends in exactly one terminal state.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobRunning, JobCancelled},
	JobRunning: {JobCompleted, JobFailed, JobCancelled},
}

// ValidTransition reports whether from->to is allowed by the transition table.
func ValidTransition(from, to JobStatus) bool {
	for _, allowed := range jobTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// DiscoveryJob represents one scan of a CIDR range.
type DiscoveryJob struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CIDR            string          `json:"cidr"`
	Method          DiscoveryMethod `json:"method"`
	CredentialID    *string         `json:"credential_id,omitempty"`
	Site            *string         `json:"site,omitempty"`
	Status          JobStatus       `json:"status"`
	Progress        int             `json:"progress"`
	TotalHosts      int             `json:"total_hosts"`
	DiscoveredHosts int             `json:"discovered_hosts"`
	Error           *string         `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// ICMPResult is the ICMP facet of a probe. Unreachable is a valid result, not
// an error.
type ICMPResult struct {
	Reachable bool          `json:"reachable"`
	RTT       time.Duration `json:"rtt"`
	TTL       int           `json:"ttl"`
}

// SNMPResult is the SNMPv3 facet of a probe.
type SNMPResult struct {
	Reachable      bool   `json:"reachable"`
	EngineID       string `json:"engine_id,omitempty"`
	SysName        string `json:"sys_name,omitempty"`
	SysDescr       string `json:"sys_descr,omitempty"`
	SysContact     string `json:"sys_contact,omitempty"`
	SysLocation    string `json:"sys_location,omitempty"`
	InterfaceCount int    `json:"interface_count,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds,omitempty"`
}

// ProbeResult is the merged outcome of probing one address.
type ProbeResult struct {
	IP         string      `json:"ip"`
	Hostname   string      `json:"hostname,omitempty"`
	MAC        string      `json:"mac,omitempty"`
	ICMP       *ICMPResult `json:"icmp,omitempty"`
	SNMP       *SNMPResult `json:"snmp,omitempty"`
	OpenPorts  []int       `json:"open_ports,omitempty"`
	OSFamily   string      `json:"os_family,omitempty"`
	Vendor     string      `json:"vendor,omitempty"`
	Model      string      `json:"model,omitempty"`
	DeviceType string      `json:"device_type,omitempty"`
	Confidence int         `json:"confidence"`
}

// Reachable reports whether any probe facet saw the host respond.
func (r *ProbeResult) Reachable() bool {
	if r.ICMP != nil && r.ICMP.Reachable {
		return true
	}

	if r.SNMP != nil && r.SNMP.Reachable {
		return true
	}

	return len(r.OpenPorts) > 0
}

// DiscoveredHost is one address result persisted under a job. Rows are
// immutable once written except for Site and the promotion fields, which are
// set exactly once.
type DiscoveredHost struct {
	ID                string      `json:"id"`
	JobID             string      `json:"job_id"`
	IP                string      `json:"ip"`
	Hostname          string      `json:"hostname,omitempty"`
	MAC               string      `json:"mac,omitempty"`
	Vendor            string      `json:"vendor,omitempty"`
	Model             string      `json:"model,omitempty"`
	DeviceType        string      `json:"device_type,omitempty"`
	Site              *string     `json:"site,omitempty"`
	ICMP              *ICMPResult `json:"icmp,omitempty"`
	SNMP              *SNMPResult `json:"snmp,omitempty"`
	OpenPorts         []int       `json:"open_ports,omitempty"`
	OSFamily          string      `json:"os_family,omitempty"`
	Confidence        int         `json:"confidence"`
	AddedToMonitoring bool        `json:"is_added_to_monitoring"`
	DeviceID          *string     `json:"device_id,omitempty"`
	DiscoveredAt      time.Time   `json:"discovered_at"`
}

// Reachable reports whether any facet of the stored host responded.
func (h *DiscoveredHost) Reachable() bool {
	if h.ICMP != nil && h.ICMP.Reachable {
		return true
	}

	if h.SNMP != nil && h.SNMP.Reachable {
		return true
	}

	return len(h.OpenPorts) > 0
}

// MonitoredDevice is a continuously polled device, created or updated at
// promotion time and owned afterwards by the polling scheduler.
type MonitoredDevice struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	IP           string        `json:"ip"`
	DeviceType   string        `json:"device_type,omitempty"`
	Vendor       string        `json:"vendor,omitempty"`
	Model        string        `json:"model,omitempty"`
	PollICMP     bool          `json:"poll_icmp"`
	PollSNMP     bool          `json:"poll_snmp"`
	CredentialID *string       `json:"credential_id,omitempty"`
	PollInterval time.Duration `json:"poll_interval"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// HostFilter defines criteria for listing discovered hosts.
type HostFilter struct {
	Reachable     *bool
	ReachableICMP *bool
	ReachableSNMP *bool
	Promoted      *bool
	Site          *string
	Limit         int
	Offset        int
}

// PollingConfig is the polling strategy requested when promoting hosts.
type PollingConfig struct {
	PollICMP     bool          `json:"poll_icmp"`
	PollSNMP     bool          `json:"poll_snmp"`
	CredentialID *string       `json:"credential_id,omitempty"`
	PollInterval time.Duration `json:"poll_interval,omitempty"`
}

// PromotionResult is returned by PromoteHosts.
type PromotionResult struct {
	AddedCount int                `json:"added_count"`
	Devices    []*MonitoredDevice `json:"devices"`
}

// JobSpec is the client request to create a discovery job.
type JobSpec struct {
	Name         string          `json:"name"`
	CIDR         string          `json:"cidr"`
	Method       DiscoveryMethod `json:"method"`
	CredentialID *string         `json:"credential_id,omitempty"`
	Site         *string         `json:"site,omitempty"`
}

// SNMPv3Credential contains the secrets needed to authenticate with SNMPv3
// devices, returned by the credential-lookup capability.
type SNMPv3Credential struct {
	Username        string `json:"username"`
	AuthProtocol    string `json:"auth_protocol"`
	AuthPassword    string `json:"auth_password"`
	PrivacyProtocol string `json:"privacy_protocol"`
	PrivacyPassword string `json:"privacy_password"`
}
