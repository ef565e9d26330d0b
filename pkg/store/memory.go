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

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stratalink/netdiscover/pkg/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and the
// embedded mode of the service; a single lock gives it the same atomicity the
// Postgres store gets from transactions.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.DiscoveryJob
	hosts   map[string][]*models.DiscoveredHost
	devices map[string]*models.MonitoredDevice
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*models.DiscoveryJob),
		hosts:   make(map[string][]*models.DiscoveredHost),
		devices: make(map[string]*models.MonitoredDevice),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *models.DiscoveryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = copyJob(job)

	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*models.DiscoveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	return copyJob(job), nil
}

func (s *MemoryStore) ListJobs(_ context.Context, statuses []models.JobStatus, limit, offset int) ([]*models.DiscoveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*models.DiscoveryJob

	for _, job := range s.jobs {
		if len(statuses) > 0 && !statusIn(job.Status, statuses) {
			continue
		}

		jobs = append(jobs, copyJob(job))
	}

	// Newest first, ID as tiebreaker for a stable order.
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}

		return jobs[i].ID < jobs[j].ID
	})

	return paginateJobs(jobs, limit, offset), nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if !job.Status.Terminal() {
		return ErrJobNotTerminal
	}

	delete(s.jobs, jobID)
	delete(s.hosts, jobID)

	return nil
}

func (s *MemoryStore) ClaimJob(_ context.Context) (*models.DiscoveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.DiscoveryJob

	for _, job := range s.jobs {
		if job.Status != models.JobPending {
			continue
		}

		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}

	if oldest == nil {
		return nil, nil
	}

	now := time.Now()
	oldest.Status = models.JobRunning
	oldest.StartedAt = &now

	return copyJob(oldest), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, jobID string, status models.JobStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if job.Status == status {
		return nil
	}

	if !models.ValidTransition(job.Status, status) {
		return ErrInvalidTransition
	}

	now := time.Now()
	job.Status = status

	switch {
	case status == models.JobRunning:
		job.StartedAt = &now
	case status.Terminal():
		job.CompletedAt = &now
		job.Error = errMsg

		if status == models.JobCompleted {
			job.Progress = 100
		}
	}

	return nil
}

func (s *MemoryStore) SetTotalHosts(_ context.Context, jobID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	job.TotalHosts = total

	return nil
}

func (s *MemoryStore) UpdateProgress(_ context.Context, jobID string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	if progress > job.Progress {
		job.Progress = progress
	}

	return nil
}

func (s *MemoryStore) AppendHost(_ context.Context, host *models.DiscoveredHost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[host.JobID]
	if !ok {
		return ErrJobNotFound
	}

	// Status check and insert under one lock: a cancel landing first makes
	// this a rejected late write, never a leaked row.
	if job.Status != models.JobRunning {
		return ErrJobNotRunning
	}

	s.hosts[host.JobID] = append(s.hosts[host.JobID], copyHost(host))
	job.DiscoveredHosts++

	return nil
}

func (s *MemoryStore) GetHost(_ context.Context, jobID, hostID string) (*models.DiscoveredHost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	host := s.findHost(jobID, hostID)
	if host == nil {
		return nil, ErrHostNotFound
	}

	return copyHost(host), nil
}

func (s *MemoryStore) ListHosts(_ context.Context, jobID string, filter *models.HostFilter) ([]*models.DiscoveredHost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return nil, ErrJobNotFound
	}

	var hosts []*models.DiscoveredHost

	for _, host := range s.hosts[jobID] {
		if !matchHost(host, filter) {
			continue
		}

		hosts = append(hosts, copyHost(host))
	}

	return paginateHosts(hosts, filter), nil
}

func (s *MemoryStore) UpdateHostsSite(_ context.Context, jobID string, hostIDs []string, site *string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return 0, ErrJobNotFound
	}

	wanted := make(map[string]struct{}, len(hostIDs))
	for _, id := range hostIDs {
		wanted[id] = struct{}{}
	}

	updated := 0

	for _, host := range s.hosts[jobID] {
		if _, ok := wanted[host.ID]; !ok {
			continue
		}

		host.Site = copyString(site)
		updated++
	}

	return updated, nil
}

func (s *MemoryStore) ListSites(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})

	for _, job := range s.jobs {
		if job.Site != nil && *job.Site != "" {
			seen[*job.Site] = struct{}{}
		}
	}

	for _, hosts := range s.hosts {
		for _, host := range hosts {
			if host.Site != nil && *host.Site != "" {
				seen[*host.Site] = struct{}{}
			}
		}
	}

	sites := make([]string, 0, len(seen))
	for site := range seen {
		sites = append(sites, site)
	}

	sort.Strings(sites)

	return sites, nil
}

func (s *MemoryStore) GetDeviceByIP(_ context.Context, ip string) (*models.MonitoredDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[ip]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	return copyDevice(device), nil
}

func (s *MemoryStore) PromoteHost(_ context.Context, jobID, hostID string, device *models.MonitoredDevice) (*models.MonitoredDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	host := s.findHost(jobID, hostID)
	if host == nil {
		return nil, ErrHostNotFound
	}

	if host.AddedToMonitoring {
		return nil, ErrHostPromoted
	}

	now := time.Now()

	existing, ok := s.devices[device.IP]
	if ok {
		existing.PollICMP = device.PollICMP
		existing.PollSNMP = device.PollSNMP
		existing.CredentialID = copyString(device.CredentialID)
		existing.PollInterval = device.PollInterval
		existing.Active = true
		existing.UpdatedAt = now
	} else {
		existing = copyDevice(device)
		existing.Active = true
		existing.CreatedAt = now
		existing.UpdatedAt = now
		s.devices[device.IP] = existing
	}

	host.AddedToMonitoring = true
	deviceID := existing.ID
	host.DeviceID = &deviceID

	return copyDevice(existing), nil
}

func (s *MemoryStore) Close() {}

func (s *MemoryStore) findHost(jobID, hostID string) *models.DiscoveredHost {
	for _, host := range s.hosts[jobID] {
		if host.ID == hostID {
			return host
		}
	}

	return nil
}

func matchHost(host *models.DiscoveredHost, filter *models.HostFilter) bool {
	if filter == nil {
		return true
	}

	if filter.Reachable != nil && host.Reachable() != *filter.Reachable {
		return false
	}

	if filter.ReachableICMP != nil {
		if (host.ICMP != nil && host.ICMP.Reachable) != *filter.ReachableICMP {
			return false
		}
	}

	if filter.ReachableSNMP != nil {
		if (host.SNMP != nil && host.SNMP.Reachable) != *filter.ReachableSNMP {
			return false
		}
	}

	if filter.Promoted != nil && host.AddedToMonitoring != *filter.Promoted {
		return false
	}

	if filter.Site != nil {
		if host.Site == nil || *host.Site != *filter.Site {
			return false
		}
	}

	return true
}

func paginateJobs(jobs []*models.DiscoveryJob, limit, offset int) []*models.DiscoveryJob {
	if offset >= len(jobs) {
		return nil
	}

	jobs = jobs[offset:]

	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}

	return jobs
}

func paginateHosts(hosts []*models.DiscoveredHost, filter *models.HostFilter) []*models.DiscoveredHost {
	if filter == nil {
		return hosts
	}

	if filter.Offset >= len(hosts) {
		return nil
	}

	hosts = hosts[filter.Offset:]

	if filter.Limit > 0 && filter.Limit < len(hosts) {
		hosts = hosts[:filter.Limit]
	}

	return hosts
}

func statusIn(status models.JobStatus, statuses []models.JobStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

func copyJob(job *models.DiscoveryJob) *models.DiscoveryJob {
	c := *job
	c.CredentialID = copyString(job.CredentialID)
	c.Site = copyString(job.Site)
	c.Error = copyString(job.Error)
	c.StartedAt = copyTime(job.StartedAt)
	c.CompletedAt = copyTime(job.CompletedAt)

	return &c
}

func copyHost(host *models.DiscoveredHost) *models.DiscoveredHost {
	c := *host
	c.Site = copyString(host.Site)
	c.DeviceID = copyString(host.DeviceID)

	if host.ICMP != nil {
		icmp := *host.ICMP
		c.ICMP = &icmp
	}

	if host.SNMP != nil {
		snmp := *host.SNMP
		c.SNMP = &snmp
	}

	if host.OpenPorts != nil {
		c.OpenPorts = append([]int(nil), host.OpenPorts...)
	}

	return &c
}

func copyDevice(device *models.MonitoredDevice) *models.MonitoredDevice {
	c := *device
	c.CredentialID = copyString(device.CredentialID)

	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}

	c := *s

	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}
