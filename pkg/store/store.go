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

// Package store persists discovery jobs, their host results and the monitored
// devices promoted from them. Two implementations exist: Postgres for the
// service and an in-memory store for tests and embedded use.
package store

import (
	"context"

	"github.com/stratalink/netdiscover/pkg/models"
)

// Store is the persistence contract for the discovery subsystem.
//
// Status changes go through the job transition table; writes against jobs in
// terminal states are rejected, and AppendHost checks the job status and
// inserts in one atomic step so a cancellation racing a probe result cannot
// leak a late row.
type Store interface {
	// CreateJob persists a new pending job. The caller fills ID, TotalHosts
	// and CreatedAt.
	CreateJob(ctx context.Context, job *models.DiscoveryJob) error

	// GetJob returns the job or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*models.DiscoveryJob, error)

	// ListJobs returns jobs newest first, optionally restricted to the given
	// statuses. limit <= 0 means no limit.
	ListJobs(ctx context.Context, statuses []models.JobStatus, limit, offset int) ([]*models.DiscoveryJob, error)

	// DeleteJob removes a terminal job and its hosts. Returns
	// ErrJobNotTerminal for pending or running jobs.
	DeleteJob(ctx context.Context, jobID string) error

	// ClaimJob atomically moves the oldest pending job to running and returns
	// it. Returns (nil, nil) when no job is pending. At most one caller can
	// claim any given job.
	ClaimJob(ctx context.Context) (*models.DiscoveryJob, error)

	// SetStatus applies a status transition. Setting the current status again
	// is a no-op. Terminal transitions stamp CompletedAt and record errMsg;
	// completion forces progress to 100.
	SetStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg *string) error

	// SetTotalHosts fixes the job's expected host count after expansion.
	SetTotalHosts(ctx context.Context, jobID string, total int) error

	// UpdateProgress raises the job's progress percentage. Progress is
	// monotonic: a lower value than the stored one is ignored.
	UpdateProgress(ctx context.Context, jobID string, progress int) error

	// AppendHost inserts a host result and increments the job's discovered
	// count, only while the job is running. Returns ErrJobNotRunning
	// otherwise.
	AppendHost(ctx context.Context, host *models.DiscoveredHost) error

	// GetHost returns one host of a job or ErrHostNotFound.
	GetHost(ctx context.Context, jobID, hostID string) (*models.DiscoveredHost, error)

	// ListHosts returns a job's hosts in discovery order, filtered and
	// paginated. A nil filter returns everything.
	ListHosts(ctx context.Context, jobID string, filter *models.HostFilter) ([]*models.DiscoveredHost, error)

	// UpdateHostsSite sets (or clears, with nil) the site label on the given
	// hosts of a job. Returns the number of hosts updated.
	UpdateHostsSite(ctx context.Context, jobID string, hostIDs []string, site *string) (int, error)

	// ListSites returns the distinct non-empty site labels across jobs and
	// hosts, sorted.
	ListSites(ctx context.Context) ([]string, error)

	// GetDeviceByIP returns the monitored device with the given management IP
	// or ErrDeviceNotFound.
	GetDeviceByIP(ctx context.Context, ip string) (*models.MonitoredDevice, error)

	// PromoteHost upserts the device keyed by device.IP and links the host to
	// it, in one transaction. An existing device gets the new polling config
	// and is reactivated; identity fields (name, vendor, model, type) are
	// kept. Returns ErrHostPromoted if the host is already linked.
	PromoteHost(ctx context.Context, jobID, hostID string, device *models.MonitoredDevice) (*models.MonitoredDevice, error)

	// Close releases the underlying resources.
	Close()
}
