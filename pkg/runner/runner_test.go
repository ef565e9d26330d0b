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

package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
	"github.com/stratalink/netdiscover/pkg/probe"
	"github.com/stratalink/netdiscover/pkg/store"
)

// scriptedProber records probed addresses and answers via fn, defaulting to
// an unreachable ICMP result.
type scriptedProber struct {
	mu     sync.Mutex
	probed []string
	fn     func(ip string) (*models.ProbeResult, error)
}

func (p *scriptedProber) Probe(_ context.Context, ip string, _ models.DiscoveryMethod, _ *models.SNMPv3Credential) (*models.ProbeResult, error) {
	p.mu.Lock()
	p.probed = append(p.probed, ip)
	p.mu.Unlock()

	if p.fn != nil {
		return p.fn(ip)
	}

	return &models.ProbeResult{IP: ip, ICMP: &models.ICMPResult{Reachable: false}}, nil
}

func (p *scriptedProber) probedIPs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.probed...)
}

type staticResolver struct {
	cred *models.SNMPv3Credential
	err  error
}

func (r *staticResolver) Resolve(context.Context, string) (*models.SNMPv3Credential, error) {
	return r.cred, r.err
}

func fastConfig() *models.DiscoveryConfig {
	return &models.DiscoveryConfig{
		JobConcurrency:     1,
		ProbeConcurrency:   1,
		CancelPollInterval: models.Duration(10 * time.Millisecond),
		ClaimPollInterval:  models.Duration(10 * time.Millisecond),
	}
}

func createRunningJob(t *testing.T, s store.Store, cidr string, method models.DiscoveryMethod) *models.DiscoveryJob {
	t.Helper()

	job := &models.DiscoveryJob{
		ID:        uuid.NewString(),
		Name:      "test scan",
		CIDR:      cidr,
		Method:    method,
		Status:    models.JobRunning,
		CreatedAt: time.Now(),
	}

	require.NoError(t, s.CreateJob(context.Background(), job))

	return job
}

func TestRunJobCompletesWithUnreachableHosts(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	prober := &scriptedProber{}
	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())

	job := createRunningJob(t, s, "192.0.2.0/30", models.MethodICMP)
	r.runJob(ctx, job)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 2, got.TotalHosts)
	assert.Equal(t, 2, got.DiscoveredHosts)
	assert.NotNil(t, got.CompletedAt)

	// Unreachable addresses still get rows; reachability is data.
	hosts, err := s.ListHosts(ctx, job.ID, nil)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, []string{"192.0.2.1", "192.0.2.2"}, prober.probedIPs())

	for _, h := range hosts {
		assert.False(t, h.Reachable())
	}
}

func TestRunJobInvalidCIDRFails(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	prober := &scriptedProber{}
	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())

	job := createRunningJob(t, s, "not-a-cidr", models.MethodICMP)
	r.runJob(ctx, job)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "invalid")
	assert.Empty(t, prober.probedIPs())
}

func TestRunJobRangeTooLargeFailsWithoutProbing(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	prober := &scriptedProber{}
	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())

	job := createRunningJob(t, s, "10.0.0.0/8", models.MethodICMP)
	r.runJob(ctx, job)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)

	hosts, err := s.ListHosts(ctx, job.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, hosts)
	assert.Empty(t, prober.probedIPs())
}

func TestRunJobCredentialResolutionFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	s := store.NewMemoryStore()
	prober := &scriptedProber{}

	resolver := probe.NewMockCredentialResolver(ctrl)
	resolver.EXPECT().Resolve(gomock.Any(), "cred-1").Return(nil, errors.New("vault unavailable"))

	r := NewRunner(s, prober, resolver, nil, fastConfig(), logger.NewTestLogger())

	job := createRunningJob(t, s, "192.0.2.0/30", models.MethodSNMPv3)
	credID := "cred-1"
	job.CredentialID = &credID

	r.runJob(ctx, job)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "credential resolution failed")
	assert.Empty(t, prober.probedIPs())
}

func TestCancellationStopsDispatchAndRejectsLateWrites(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	job := createRunningJob(t, s, "192.0.2.0/28", models.MethodICMP)

	// The fifth probe cancels the job externally; its own append is then a
	// rejected late write, and no further addresses are dispatched.
	prober := &scriptedProber{}
	prober.fn = func(ip string) (*models.ProbeResult, error) {
		if strings.HasSuffix(ip, ".5") {
			if err := s.SetStatus(ctx, job.ID, models.JobCancelled, nil); err != nil {
				return nil, err
			}
		}

		return &models.ProbeResult{IP: ip, ICMP: &models.ICMPResult{Reachable: true, TTL: 64}}, nil
	}

	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())
	r.runJob(ctx, job)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)

	hosts, err := s.ListHosts(ctx, job.ID, nil)
	require.NoError(t, err)
	assert.Len(t, hosts, 4, "only pre-cancel results are persisted")
	assert.Equal(t, got.DiscoveredHosts, len(hosts))
	assert.Less(t, len(prober.probedIPs()), 14, "dispatch stops after cancellation")
}

func TestRunJobResumesFromOffset(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	prober := &scriptedProber{}
	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())

	// Simulate a crash after two of six addresses: the resumed run picks up
	// at the third.
	job := createRunningJob(t, s, "192.0.2.0/29", models.MethodICMP)
	for _, ip := range []string{"192.0.2.1", "192.0.2.2"} {
		require.NoError(t, s.AppendHost(ctx, &models.DiscoveredHost{
			ID:           uuid.NewString(),
			JobID:        job.ID,
			IP:           ip,
			DiscoveredAt: time.Now(),
		}))
	}

	resumed, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)

	r.runJob(ctx, resumed)

	assert.Equal(t, []string{"192.0.2.3", "192.0.2.4", "192.0.2.5", "192.0.2.6"}, prober.probedIPs())

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 6, got.DiscoveredHosts)
}

func TestRunJobProbeErrorRecordsUnreachableHost(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	// One address fails hard instead of merely being unreachable. It must
	// still get a row, or DiscoveredHosts would fall behind the addresses
	// processed and a resumed run would re-probe and duplicate the tail.
	prober := &scriptedProber{}
	prober.fn = func(ip string) (*models.ProbeResult, error) {
		if ip == "192.0.2.2" {
			return nil, errors.New("sendto: no buffer space available")
		}

		return &models.ProbeResult{IP: ip, ICMP: &models.ICMPResult{Reachable: true, TTL: 64}}, nil
	}

	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())

	job := createRunningJob(t, s, "192.0.2.0/29", models.MethodICMP)
	r.runJob(ctx, job)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 6, got.TotalHosts)
	assert.Equal(t, 6, got.DiscoveredHosts)

	hosts, err := s.ListHosts(ctx, job.ID, nil)
	require.NoError(t, err)
	require.Len(t, hosts, 6)

	byIP := make(map[string]*models.DiscoveredHost, len(hosts))
	for _, h := range hosts {
		byIP[h.IP] = h
	}

	require.Contains(t, byIP, "192.0.2.2")
	assert.False(t, byIP["192.0.2.2"].Reachable())
	assert.True(t, byIP["192.0.2.1"].Reachable())
}

func TestStartClaimsPendingJobs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	prober := &scriptedProber{}
	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())

	job := &models.DiscoveryJob{
		ID:        uuid.NewString(),
		Name:      "queued scan",
		CIDR:      "192.0.2.0/30",
		Method:    models.MethodICMP,
		Status:    models.JobPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	require.Eventually(t, func() bool {
		got, err := s.GetJob(ctx, job.ID)
		return err == nil && got.Status == models.JobCompleted
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartResumesOrphanedRunningJobs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	prober := &scriptedProber{}
	r := NewRunner(s, prober, &staticResolver{}, nil, fastConfig(), logger.NewTestLogger())

	job := createRunningJob(t, s, "192.0.2.0/30", models.MethodICMP)

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	require.Eventually(t, func() bool {
		got, err := s.GetJob(ctx, job.ID)
		return err == nil && got.Status == models.JobCompleted
	}, 3*time.Second, 20*time.Millisecond)
}
