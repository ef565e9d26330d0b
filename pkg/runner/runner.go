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

// Package runner executes discovery jobs: worker slots claim pending jobs
// from the store, expand their CIDR ranges and fan probes out over a bounded
// pool, streaming results back as they arrive.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stratalink/netdiscover/pkg/events"
	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
	"github.com/stratalink/netdiscover/pkg/probe"
	"github.com/stratalink/netdiscover/pkg/scan"
	"github.com/stratalink/netdiscover/pkg/store"
)

const (
	defaultJobConcurrency     = 2
	defaultProbeConcurrency   = 64
	defaultCancelPollInterval = 2 * time.Second
	defaultClaimPollInterval  = 3 * time.Second
)

// Runner drives discovery jobs to a terminal state. Each of its worker slots
// runs at most one job at a time; within a job, probes fan out up to the
// configured probe concurrency.
type Runner struct {
	store     store.Store
	prober    probe.Prober
	creds     probe.CredentialResolver
	publisher events.Publisher
	logger    logger.Logger

	maxRangeHosts      int
	jobConcurrency     int
	probeConcurrency   int
	cancelPollInterval time.Duration
	claimPollInterval  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner wires a runner against the given store and prober. A nil
// publisher disables event publishing. Zero config values fall back to the
// documented defaults.
func NewRunner(
	st store.Store,
	prober probe.Prober,
	creds probe.CredentialResolver,
	publisher events.Publisher,
	cfg *models.DiscoveryConfig,
	log logger.Logger,
) *Runner {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	r := &Runner{
		store:              st,
		prober:             prober,
		creds:              creds,
		publisher:          publisher,
		logger:             log,
		maxRangeHosts:      cfg.MaxRangeHosts,
		jobConcurrency:     cfg.JobConcurrency,
		probeConcurrency:   cfg.ProbeConcurrency,
		cancelPollInterval: time.Duration(cfg.CancelPollInterval),
		claimPollInterval:  time.Duration(cfg.ClaimPollInterval),
	}

	if r.maxRangeHosts <= 0 {
		r.maxRangeHosts = scan.DefaultMaxHosts
	}

	if r.jobConcurrency <= 0 {
		r.jobConcurrency = defaultJobConcurrency
	}

	if r.probeConcurrency <= 0 {
		r.probeConcurrency = defaultProbeConcurrency
	}

	if r.cancelPollInterval <= 0 {
		r.cancelPollInterval = defaultCancelPollInterval
	}

	if r.claimPollInterval <= 0 {
		r.claimPollInterval = defaultClaimPollInterval
	}

	return r
}

// Start resumes jobs left running by a previous instance and launches the
// worker slots. It returns immediately; Stop shuts the slots down.
func (r *Runner) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	orphans, err := r.store.ListJobs(runCtx, []models.JobStatus{models.JobRunning}, 0, 0)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to list running jobs: %w", err)
	}

	for _, job := range orphans {
		r.logger.Info().
			Str("job_id", job.ID).
			Int("done", job.DiscoveredHosts).
			Msg("Resuming orphaned job")

		r.wg.Add(1)

		go func(job *models.DiscoveryJob) {
			defer r.wg.Done()
			r.runJob(runCtx, job)
		}(job)
	}

	for i := 0; i < r.jobConcurrency; i++ {
		r.wg.Add(1)

		go func(slot int) {
			defer r.wg.Done()
			r.workerLoop(runCtx, slot)
		}(i)
	}

	r.logger.Info().
		Int("job_concurrency", r.jobConcurrency).
		Int("probe_concurrency", r.probeConcurrency).
		Msg("Discovery runner started")

	return nil
}

// Stop cancels all slots and waits for in-flight work to drain.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}

	r.wg.Wait()
	r.logger.Info().Msg("Discovery runner stopped")
}

func (r *Runner) workerLoop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := r.store.ClaimJob(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error().Err(err).Int("slot", slot).Msg("Failed to claim job")
			}
		} else if job != nil {
			r.logger.Info().
				Str("job_id", job.ID).
				Str("cidr", job.CIDR).
				Str("method", string(job.Method)).
				Int("slot", slot).
				Msg("Claimed discovery job")

			r.runJob(ctx, job)

			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.claimPollInterval):
		}
	}
}

// runJob takes a job that is already in the running state to a terminal one.
func (r *Runner) runJob(ctx context.Context, job *models.DiscoveryJob) {
	r.publishEvent(ctx, job.ID)

	rng, err := scan.ParseRange(job.CIDR, r.maxRangeHosts)
	if err != nil {
		r.failJob(ctx, job.ID, err.Error())
		return
	}

	if job.TotalHosts != rng.Count() {
		if err := r.store.SetTotalHosts(ctx, job.ID, rng.Count()); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to set total hosts")
		}
	}

	cred, err := r.resolveCredential(ctx, job)
	if err != nil {
		r.failJob(ctx, job.ID, err.Error())
		return
	}

	r.probeRange(ctx, job, rng, cred)
}

func (r *Runner) resolveCredential(ctx context.Context, job *models.DiscoveryJob) (*models.SNMPv3Credential, error) {
	if !job.Method.RequiresCredential() {
		return nil, nil
	}

	if job.CredentialID == nil {
		return nil, ErrMissingCredentialID
	}

	cred, err := r.creds.Resolve(ctx, *job.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialResolution, err)
	}

	return cred, nil
}

func (r *Runner) probeRange(ctx context.Context, job *models.DiscoveryJob, rng *scan.Range, cred *models.SNMPv3Credential) {
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()

	watchDone := r.watchCancellation(jobCtx, job.ID, cancelJob)

	total := rng.Count()

	// DiscoveredHosts doubles as the resume offset: every probed address
	// gets a row, so the count equals the number of addresses processed.
	offset := job.DiscoveredHosts
	if offset > total {
		offset = total
	}

	var processed, lastPct atomic.Int64

	processed.Store(int64(offset))

	workCh := make(chan string)

	var wg sync.WaitGroup

	for i := 0; i < r.probeConcurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for ip := range workCh {
				r.probeOne(jobCtx, job, ip, cred, cancelJob)
				r.reportProgress(jobCtx, job.ID, processed.Add(1), int64(total), &lastPct)
			}
		}()
	}

	next := rng.Addresses(offset)

feed:
	for {
		ip, ok := next()
		if !ok {
			break
		}

		select {
		case <-jobCtx.Done():
			break feed
		case workCh <- ip:
		}
	}

	close(workCh)

	// Cancellation stops dispatch; probes already in flight are awaited so
	// their results are either persisted or cleanly rejected.
	wg.Wait()
	cancelJob()
	<-watchDone

	r.finalizeJob(ctx, job.ID)
}

// watchCancellation polls the job status so an external cancel stops the
// dispatch loop within one poll interval.
func (r *Runner) watchCancellation(ctx context.Context, jobID string, cancelJob context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(r.cancelPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := r.store.GetJob(ctx, jobID)
				if err != nil {
					if ctx.Err() == nil {
						r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Cancellation poll failed")
					}

					continue
				}

				if current.Status != models.JobRunning {
					cancelJob()
					return
				}
			}
		}
	}()

	return done
}

func (r *Runner) probeOne(ctx context.Context, job *models.DiscoveryJob, ip string, cred *models.SNMPv3Credential, cancelJob context.CancelFunc) {
	if ctx.Err() != nil {
		return
	}

	result, err := r.prober.Probe(ctx, ip, job.Method, cred)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		r.logger.Warn().Err(err).Str("job_id", job.ID).Str("ip", ip).Msg("Probe failed")

		// The address still gets a row: DiscoveredHosts doubles as the
		// resume offset, so a silently skipped address would be re-probed
		// after a crash and persisted twice. A hard probe error is recorded
		// as an unreachable host.
		result = &models.ProbeResult{IP: ip}
	}

	host := hostFromResult(job, result)

	if err := r.store.AppendHost(ctx, host); err != nil {
		switch {
		case errors.Is(err, store.ErrJobNotRunning):
			// The job reached a terminal state while this probe was in
			// flight; the store rejected the late write.
			cancelJob()
		case ctx.Err() == nil:
			r.logger.Error().Err(err).Str("job_id", job.ID).Str("ip", ip).Msg("Failed to persist host")
		}
	}
}

func (r *Runner) reportProgress(ctx context.Context, jobID string, done, total int64, lastPct *atomic.Int64) {
	if total <= 0 {
		return
	}

	pct := done * 100 / total

	for {
		prev := lastPct.Load()
		if pct <= prev {
			return
		}

		if lastPct.CompareAndSwap(prev, pct) {
			break
		}
	}

	if err := r.store.UpdateProgress(ctx, jobID, int(pct)); err != nil && ctx.Err() == nil {
		r.logger.Debug().Err(err).Str("job_id", jobID).Msg("Failed to update progress")
	}
}

// finalizeJob marks an exhausted job completed unless it was cancelled (or
// the service is shutting down, in which case the job stays running and is
// resumed on restart).
func (r *Runner) finalizeJob(ctx context.Context, jobID string) {
	if ctx.Err() != nil {
		r.logger.Info().Str("job_id", jobID).Msg("Shutdown mid-job, leaving job for resume")
		return
	}

	current, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to read job for finalization")
		return
	}

	if current.Status != models.JobRunning {
		r.logger.Info().
			Str("job_id", jobID).
			Str("status", string(current.Status)).
			Msg("Job ended externally")

		r.publishEvent(ctx, jobID)

		return
	}

	if err := r.store.SetStatus(ctx, jobID, models.JobCompleted, nil); err != nil {
		// A cancel can still land between the read above and this write;
		// the transition table catches it.
		if !errors.Is(err, store.ErrInvalidTransition) {
			r.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to complete job")
		}

		r.publishEvent(ctx, jobID)

		return
	}

	r.logger.Info().
		Str("job_id", jobID).
		Int("discovered", current.DiscoveredHosts).
		Msg("Discovery job completed")

	r.publishEvent(ctx, jobID)
}

func (r *Runner) failJob(ctx context.Context, jobID, msg string) {
	if err := r.store.SetStatus(ctx, jobID, models.JobFailed, &msg); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			r.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job failed")
		}
	} else {
		r.logger.Warn().Str("job_id", jobID).Str("reason", msg).Msg("Discovery job failed")
	}

	r.publishEvent(ctx, jobID)
}

func (r *Runner) publishEvent(ctx context.Context, jobID string) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}

	if err := r.publisher.PublishJobEvent(ctx, job); err != nil {
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to publish job event")
	}
}

// hostFromResult maps a probe result onto a host row under the job.
func hostFromResult(job *models.DiscoveryJob, result *models.ProbeResult) *models.DiscoveredHost {
	host := &models.DiscoveredHost{
		ID:           uuid.NewString(),
		JobID:        job.ID,
		IP:           result.IP,
		Hostname:     result.Hostname,
		MAC:          result.MAC,
		Vendor:       result.Vendor,
		Model:        result.Model,
		DeviceType:   result.DeviceType,
		ICMP:         result.ICMP,
		SNMP:         result.SNMP,
		OpenPorts:    result.OpenPorts,
		OSFamily:     result.OSFamily,
		Confidence:   result.Confidence,
		DiscoveredAt: time.Now(),
	}

	if job.Site != nil {
		site := *job.Site
		host.Site = &site
	}

	return host
}
