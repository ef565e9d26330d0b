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

package models

import (
	"encoding/json"
	"time"
)

// Duration unmarshals from JSON duration strings like "2s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string

	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	if s == "" {
		*d = Duration(0)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(dur)

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// DiscoveryConfig defines runner and prober tunables. Zero values fall back
// to the documented defaults at construction time.
type DiscoveryConfig struct {
	// MaxRangeHosts caps the usable host count of a job's CIDR.
	// Default 65534 (a /16).
	MaxRangeHosts int `json:"max_range_hosts"`

	// JobConcurrency is the number of worker slots, each running at most one
	// claimed job. Default 2.
	JobConcurrency int `json:"job_concurrency"`

	// ProbeConcurrency bounds the fan-out width inside one job. Default 64.
	ProbeConcurrency int `json:"probe_concurrency"`

	// ProbeTimeout bounds each ICMP and SNMP leg. Default 2s.
	ProbeTimeout Duration `json:"probe_timeout"`

	// CancelPollInterval is how often a running job re-reads its status to
	// observe external cancellation. Default 2s.
	CancelPollInterval Duration `json:"cancel_poll_interval"`

	// ClaimPollInterval is how often idle worker slots look for pending jobs.
	// Default 3s.
	ClaimPollInterval Duration `json:"claim_poll_interval"`

	SNMPPort    uint16 `json:"snmp_port"`    // default 161
	SNMPRetries int    `json:"snmp_retries"` // default 1

	// FingerprintPorts is the TCP port set probed for presence signals when
	// both protocol facets fail. Defaults to a small well-known set.
	FingerprintPorts []int `json:"fingerprint_ports,omitempty"`
}

// Database holds Postgres connection settings for the job store.
type Database struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	Database        string   `json:"database"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	SSLMode         string   `json:"ssl_mode,omitempty"`
	ApplicationName string   `json:"application_name,omitempty"`
	MaxConnections  int32    `json:"max_connections,omitempty"`
	MinConnections  int32    `json:"min_connections,omitempty"`
	MaxConnLifetime Duration `json:"max_conn_lifetime,omitempty"`
}

// NATS holds connection settings for the optional job event publisher.
type NATS struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
}
