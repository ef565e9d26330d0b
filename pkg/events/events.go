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

// Package events publishes discovery job lifecycle events for downstream
// consumers. Publishing is best effort; a failed publish never fails the job.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

const (
	defaultSubjectPrefix = "discovery"
	connectTimeout       = 5 * time.Second
)

// Publisher emits a job event on every status change.
type Publisher interface {
	PublishJobEvent(ctx context.Context, job *models.DiscoveryJob) error
	Close()
}

// JobEvent is the wire payload published per status change.
type JobEvent struct {
	JobID           string           `json:"job_id"`
	Name            string           `json:"name"`
	CIDR            string           `json:"cidr"`
	Status          models.JobStatus `json:"status"`
	Progress        int              `json:"progress"`
	TotalHosts      int              `json:"total_hosts"`
	DiscoveredHosts int              `json:"discovered_hosts"`
	Error           *string          `json:"error,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// NATSPublisher publishes job events to subjects of the form
// <prefix>.jobs.<status>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger logger.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the NATS server in cfg.
func NewNATSPublisher(cfg *models.NATS, log logger.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.Name("netdiscover"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}

	log.Info().Str("url", cfg.URL).Str("prefix", prefix).Msg("Connected to NATS")

	return &NATSPublisher{conn: conn, prefix: prefix, logger: log}, nil
}

func (p *NATSPublisher) PublishJobEvent(_ context.Context, job *models.DiscoveryJob) error {
	event := JobEvent{
		JobID:           job.ID,
		Name:            job.Name,
		CIDR:            job.CIDR,
		Status:          job.Status,
		Progress:        job.Progress,
		TotalHosts:      job.TotalHosts,
		DiscoveredHosts: job.DiscoveredHosts,
		Error:           job.Error,
		Timestamp:       time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	subject := fmt.Sprintf("%s.jobs.%s", p.prefix, job.Status)

	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}

	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}

// NoopPublisher drops all events. Used when no event bus is configured.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (NoopPublisher) PublishJobEvent(context.Context, *models.DiscoveryJob) error { return nil }

func (NoopPublisher) Close() {}
