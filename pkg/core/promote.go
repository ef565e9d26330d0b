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

package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratalink/netdiscover/pkg/models"
	"github.com/stratalink/netdiscover/pkg/store"
)

const defaultPollInterval = time.Minute

// PromoteHosts moves discovered hosts into continuous monitoring. Each host
// is promoted in its own transaction: device upsert (keyed by IP) and host
// link commit together or not at all. Hosts already promoted are skipped, so
// repeating a promotion request is safe.
func (s *Service) PromoteHosts(ctx context.Context, jobID string, hostIDs []string, cfg *models.PollingConfig) (*models.PromotionResult, error) {
	if cfg == nil || (!cfg.PollICMP && !cfg.PollSNMP) {
		return nil, fmt.Errorf("%w: at least one polling method is required", ErrInvalidConfig)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	credentialID, err := s.promotionCredential(ctx, job, cfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	result := &models.PromotionResult{}

	for _, hostID := range hostIDs {
		host, err := s.store.GetHost(ctx, jobID, hostID)
		if err != nil {
			return nil, err
		}

		if host.AddedToMonitoring {
			continue
		}

		device := deviceFromHost(host, cfg, credentialID, interval)

		promoted, err := s.store.PromoteHost(ctx, jobID, hostID, device)
		if errors.Is(err, store.ErrHostPromoted) {
			continue
		}

		if err != nil {
			return nil, err
		}

		result.AddedCount++
		result.Devices = append(result.Devices, promoted)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Int("requested", len(hostIDs)).
		Int("added", result.AddedCount).
		Msg("Hosts promoted to monitoring")

	return result, nil
}

// promotionCredential resolves the credential for SNMP polling, falling back
// to the job's discovery credential when the config names none.
func (s *Service) promotionCredential(ctx context.Context, job *models.DiscoveryJob, cfg *models.PollingConfig) (*string, error) {
	if !cfg.PollSNMP {
		return nil, nil
	}

	credentialID := cfg.CredentialID
	if credentialID == nil || *credentialID == "" {
		credentialID = job.CredentialID
	}

	if credentialID == nil || *credentialID == "" {
		return nil, fmt.Errorf("%w: SNMP polling requires a credential", ErrInvalidConfig)
	}

	if _, err := s.creds.Resolve(ctx, *credentialID); err != nil {
		return nil, fmt.Errorf("%w: credential %q: %v", ErrInvalidConfig, *credentialID, err)
	}

	return credentialID, nil
}

// deviceFromHost seeds a monitored device from the host's fingerprint. The
// name prefers the SNMP system name, then the reverse-DNS hostname, then the
// address itself.
func deviceFromHost(host *models.DiscoveredHost, cfg *models.PollingConfig, credentialID *string, interval time.Duration) *models.MonitoredDevice {
	name := host.IP

	switch {
	case host.SNMP != nil && host.SNMP.SysName != "":
		name = host.SNMP.SysName
	case host.Hostname != "":
		name = host.Hostname
	}

	return &models.MonitoredDevice{
		ID:           uuid.NewString(),
		Name:         name,
		IP:           host.IP,
		DeviceType:   host.DeviceType,
		Vendor:       host.Vendor,
		Model:        host.Model,
		PollICMP:     cfg.PollICMP,
		PollSNMP:     cfg.PollSNMP,
		CredentialID: credentialID,
		PollInterval: interval,
	}
}
