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

// Package core is the service facade over the discovery subsystem: job
// creation and lifecycle, host listing and the promotion of discovered hosts
// into monitored devices.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
	"github.com/stratalink/netdiscover/pkg/probe"
	"github.com/stratalink/netdiscover/pkg/scan"
	"github.com/stratalink/netdiscover/pkg/store"
)

// Service validates requests and delegates persistence to the store. Job
// execution is the runner's concern; the service never probes.
type Service struct {
	store         store.Store
	creds         probe.CredentialResolver
	maxRangeHosts int
	logger        logger.Logger
}

// NewService creates the discovery service facade.
func NewService(st store.Store, creds probe.CredentialResolver, cfg *models.DiscoveryConfig, log logger.Logger) *Service {
	maxHosts := cfg.MaxRangeHosts
	if maxHosts <= 0 {
		maxHosts = scan.DefaultMaxHosts
	}

	return &Service{
		store:         st,
		creds:         creds,
		maxRangeHosts: maxHosts,
		logger:        log,
	}
}

// CreateJob validates the spec and persists a pending job. The usable host
// count is fixed here, before any worker touches the job.
func (s *Service) CreateJob(ctx context.Context, spec *models.JobSpec) (*models.DiscoveryJob, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}

	if !spec.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, spec.Method)
	}

	if spec.Method.RequiresCredential() && (spec.CredentialID == nil || *spec.CredentialID == "") {
		return nil, fmt.Errorf("%w: method %q requires a credential", ErrInvalidConfig, spec.Method)
	}

	total, err := scan.HostCount(spec.CIDR, s.maxRangeHosts)
	if err != nil {
		return nil, err
	}

	job := &models.DiscoveryJob{
		ID:           uuid.NewString(),
		Name:         spec.Name,
		CIDR:         spec.CIDR,
		Method:       spec.Method,
		CredentialID: spec.CredentialID,
		Site:         spec.Site,
		Status:       models.JobPending,
		TotalHosts:   total,
		CreatedAt:    time.Now(),
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("cidr", job.CIDR).
		Str("method", string(job.Method)).
		Int("total_hosts", total).
		Msg("Discovery job created")

	return job, nil
}

// GetJob returns one job by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.DiscoveryJob, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Service) ListJobs(ctx context.Context, statuses []models.JobStatus, limit, offset int) ([]*models.DiscoveryJob, error) {
	return s.store.ListJobs(ctx, statuses, limit, offset)
}

// CancelJob requests cancellation. Pending jobs are cancelled immediately;
// running jobs are observed by their runner within the cancel poll interval.
// Cancelling an already cancelled job is a no-op.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	err := s.store.SetStatus(ctx, jobID, models.JobCancelled, nil)
	if errors.Is(err, store.ErrInvalidTransition) {
		return fmt.Errorf("%w: %s", ErrJobNotCancellable, jobID)
	}

	if err != nil {
		return err
	}

	s.logger.Info().Str("job_id", jobID).Msg("Discovery job cancelled")

	return nil
}

// DeleteJob removes a terminal job and its host results.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	return s.store.DeleteJob(ctx, jobID)
}

// ListHosts returns a job's discovered hosts, filtered and paginated.
func (s *Service) ListHosts(ctx context.Context, jobID string, filter *models.HostFilter) ([]*models.DiscoveredHost, error) {
	return s.store.ListHosts(ctx, jobID, filter)
}

// UpdateHostsSite bulk-labels hosts of a job with a site, or clears the label
// with nil. Returns the number of hosts updated.
func (s *Service) UpdateHostsSite(ctx context.Context, jobID string, hostIDs []string, site *string) (int, error) {
	return s.store.UpdateHostsSite(ctx, jobID, hostIDs, site)
}

// ListSites returns the distinct site labels known across jobs and hosts.
func (s *Service) ListSites(ctx context.Context) ([]string, error) {
	return s.store.ListSites(ctx)
}
