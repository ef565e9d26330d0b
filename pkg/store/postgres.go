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
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

const (
	defaultPostgresPort = 5432
	defaultMaxConns     = 10
)

const jobColumns = `id, name, cidr, method, credential_id, site, status, progress,
	total_hosts, discovered_hosts, error, created_at, started_at, completed_at`

const hostColumns = `id, job_id, ip, hostname, mac, vendor, model, device_type, site,
	icmp_reachable, icmp_rtt_ns, icmp_ttl,
	snmp_reachable, snmp_engine_id, sys_name, sys_descr, sys_contact, sys_location,
	interface_count, uptime_seconds,
	open_ports, os_family, confidence, is_added_to_monitoring, device_id, discovered_at`

const deviceColumns = `id, name, ip, device_type, vendor, model, poll_icmp, poll_snmp,
	credential_id, poll_interval_ns, active, created_at, updated_at`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// ConnString builds a postgres URL from the database config.
func ConnString(cfg *models.Database) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   cfg.Database,
	}

	q := u.Query()

	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}

	if cfg.ApplicationName != "" {
		q.Set("application_name", cfg.ApplicationName)
	}

	u.RawQuery = q.Encode()

	return u.String()
}

// NewPostgresStore connects a pool to the configured database and verifies it
// with a ping.
func NewPostgresStore(ctx context.Context, cfg *models.Database, log logger.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToConnect, err)
	}

	poolCfg.MaxConns = cfg.MaxConnections
	if poolCfg.MaxConns <= 0 {
		poolCfg.MaxConns = defaultMaxConns
	}

	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}

	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToConnect, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToConnect, err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("Connected to Postgres")

	return &PostgresStore{pool: pool, logger: log}, nil
}

func (p *PostgresStore) CreateJob(ctx context.Context, job *models.DiscoveryJob) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO discovery_jobs (id, name, cidr, method, credential_id, site, status,
			progress, total_hosts, discovered_hosts, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Name, job.CIDR, string(job.Method), job.CredentialID, job.Site,
		string(job.Status), job.Progress, job.TotalHosts, job.DiscoveredHosts,
		job.Error, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (p *PostgresStore) GetJob(ctx context.Context, jobID string) (*models.DiscoveryJob, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM discovery_jobs WHERE id = $1`, jobID)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

func (p *PostgresStore) ListJobs(ctx context.Context, statuses []models.JobStatus, limit, offset int) ([]*models.DiscoveryJob, error) {
	query := `SELECT ` + jobColumns + ` FROM discovery_jobs`
	args := []any{}

	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}

		args = append(args, values)
		query += fmt.Sprintf(" WHERE status = ANY($%d)", len(args))
	}

	query += " ORDER BY created_at DESC, id"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.DiscoveryJob

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (p *PostgresStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM discovery_jobs
		WHERE id = $1 AND status = ANY($2)`,
		jobID, []string{string(models.JobCompleted), string(models.JobFailed), string(models.JobCancelled)})
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := p.GetJob(ctx, jobID); err != nil {
			return err
		}

		return ErrJobNotTerminal
	}

	return nil
}

func (p *PostgresStore) ClaimJob(ctx context.Context) (*models.DiscoveryJob, error) {
	// SKIP LOCKED makes concurrent claimers pick distinct jobs instead of
	// queueing on the same row.
	row := p.pool.QueryRow(ctx, `
		UPDATE discovery_jobs
		SET status = 'running', started_at = now()
		WHERE id = (
			SELECT id FROM discovery_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	return job, nil
}

func (p *PostgresStore) SetStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg *string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string

	err = tx.QueryRow(ctx,
		`SELECT status FROM discovery_jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if models.JobStatus(current) == status {
		return tx.Commit(ctx)
	}

	if !models.ValidTransition(models.JobStatus(current), status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	_, err = tx.Exec(ctx, `
		UPDATE discovery_jobs
		SET status = $2,
			error = $3,
			started_at = CASE WHEN $2 = 'running' THEN now() ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END,
			progress = CASE WHEN $2 = 'completed' THEN 100 ELSE progress END
		WHERE id = $1`,
		jobID, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *PostgresStore) SetTotalHosts(ctx context.Context, jobID string, total int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE discovery_jobs SET total_hosts = $2 WHERE id = $1`, jobID, total)
	if err != nil {
		return fmt.Errorf("failed to set total hosts: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

func (p *PostgresStore) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE discovery_jobs SET progress = GREATEST(progress, $2) WHERE id = $1`,
		jobID, progress)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

func (p *PostgresStore) AppendHost(ctx context.Context, host *models.DiscoveredHost) error {
	var (
		icmpReachable *bool
		icmpRTT       *int64
		icmpTTL       *int
	)

	if host.ICMP != nil {
		rtt := host.ICMP.RTT.Nanoseconds()
		icmpReachable, icmpRTT, icmpTTL = &host.ICMP.Reachable, &rtt, &host.ICMP.TTL
	}

	var (
		snmpReachable                                 *bool
		engineID, sysName, sysDescr, contact, locn    string
		interfaceCount                                int
		uptimeSeconds                                 int64
	)

	if host.SNMP != nil {
		snmpReachable = &host.SNMP.Reachable
		engineID = host.SNMP.EngineID
		sysName = host.SNMP.SysName
		sysDescr = host.SNMP.SysDescr
		contact = host.SNMP.SysContact
		locn = host.SNMP.SysLocation
		interfaceCount = host.SNMP.InterfaceCount
		uptimeSeconds = host.SNMP.UptimeSeconds
	}

	// The row lock taken by the CTE serializes this against SetStatus, so a
	// cancellation committed first turns the insert into a no-op.
	tag, err := p.pool.Exec(ctx, `
		WITH running_job AS (
			SELECT id FROM discovery_jobs
			WHERE id = $2 AND status = 'running'
			FOR UPDATE
		), inserted AS (
			INSERT INTO discovered_hosts (id, job_id, ip, hostname, mac, vendor, model,
				device_type, site, icmp_reachable, icmp_rtt_ns, icmp_ttl,
				snmp_reachable, snmp_engine_id, sys_name, sys_descr, sys_contact,
				sys_location, interface_count, uptime_seconds, open_ports, os_family,
				confidence, discovered_at)
			SELECT $1, id, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				$16, $17, $18, $19, $20, $21, $22, $23, $24
			FROM running_job
			RETURNING 1
		)
		UPDATE discovery_jobs
		SET discovered_hosts = discovered_hosts + (SELECT count(*) FROM inserted)
		WHERE id IN (SELECT id FROM running_job)`,
		host.ID, host.JobID, host.IP, host.Hostname, host.MAC, host.Vendor, host.Model,
		host.DeviceType, host.Site, icmpReachable, icmpRTT, icmpTTL,
		snmpReachable, engineID, sysName, sysDescr, contact, locn,
		interfaceCount, uptimeSeconds, host.OpenPorts, host.OSFamily,
		host.Confidence, host.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("failed to append host: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := p.GetJob(ctx, host.JobID); err != nil {
			return err
		}

		return ErrJobNotRunning
	}

	return nil
}

func (p *PostgresStore) GetHost(ctx context.Context, jobID, hostID string) (*models.DiscoveredHost, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+hostColumns+` FROM discovered_hosts WHERE id = $1 AND job_id = $2`,
		hostID, jobID)

	host, err := scanHost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHostNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	return host, nil
}

func (p *PostgresStore) ListHosts(ctx context.Context, jobID string, filter *models.HostFilter) ([]*models.DiscoveredHost, error) {
	if _, err := p.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	query := `SELECT ` + hostColumns + ` FROM discovered_hosts`
	where := []string{"job_id = $1"}
	args := []any{jobID}

	if filter != nil {
		if filter.Reachable != nil {
			args = append(args, *filter.Reachable)
			where = append(where, fmt.Sprintf(
				"(COALESCE(icmp_reachable, false) OR COALESCE(snmp_reachable, false) OR COALESCE(array_length(open_ports, 1), 0) > 0) = $%d",
				len(args)))
		}

		if filter.ReachableICMP != nil {
			args = append(args, *filter.ReachableICMP)
			where = append(where, fmt.Sprintf("COALESCE(icmp_reachable, false) = $%d", len(args)))
		}

		if filter.ReachableSNMP != nil {
			args = append(args, *filter.ReachableSNMP)
			where = append(where, fmt.Sprintf("COALESCE(snmp_reachable, false) = $%d", len(args)))
		}

		if filter.Promoted != nil {
			args = append(args, *filter.Promoted)
			where = append(where, fmt.Sprintf("is_added_to_monitoring = $%d", len(args)))
		}

		if filter.Site != nil {
			args = append(args, *filter.Site)
			where = append(where, fmt.Sprintf("site = $%d", len(args)))
		}
	}

	query += " WHERE " + strings.Join(where, " AND ")
	query += " ORDER BY discovered_at, id"

	if filter != nil && filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if filter != nil && filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []*models.DiscoveredHost

	for rows.Next() {
		host, err := scanHost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}

		hosts = append(hosts, host)
	}

	return hosts, rows.Err()
}

func (p *PostgresStore) UpdateHostsSite(ctx context.Context, jobID string, hostIDs []string, site *string) (int, error) {
	if _, err := p.GetJob(ctx, jobID); err != nil {
		return 0, err
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE discovered_hosts SET site = $3 WHERE job_id = $1 AND id = ANY($2)`,
		jobID, hostIDs, site)
	if err != nil {
		return 0, fmt.Errorf("failed to update host sites: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (p *PostgresStore) ListSites(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT site FROM (
			SELECT site FROM discovery_jobs WHERE site IS NOT NULL AND site <> ''
			UNION ALL
			SELECT site FROM discovered_hosts WHERE site IS NOT NULL AND site <> ''
		) s
		ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string

	for rows.Next() {
		var site string

		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}

		sites = append(sites, site)
	}

	return sites, rows.Err()
}

func (p *PostgresStore) GetDeviceByIP(ctx context.Context, ip string) (*models.MonitoredDevice, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM monitored_devices WHERE ip = $1`, ip)

	device, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

func (p *PostgresStore) PromoteHost(ctx context.Context, jobID, hostID string, device *models.MonitoredDevice) (*models.MonitoredDevice, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var promoted bool

	err = tx.QueryRow(ctx, `
		SELECT is_added_to_monitoring FROM discovered_hosts
		WHERE id = $1 AND job_id = $2
		FOR UPDATE`,
		hostID, jobID).Scan(&promoted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHostNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to lock host: %w", err)
	}

	if promoted {
		return nil, ErrHostPromoted
	}

	// Identity fields stay as first discovered; only the polling config and
	// activation follow the latest promotion.
	row := tx.QueryRow(ctx, `
		INSERT INTO monitored_devices (id, name, ip, device_type, vendor, model,
			poll_icmp, poll_snmp, credential_id, poll_interval_ns, active,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, now(), now())
		ON CONFLICT (ip) DO UPDATE SET
			poll_icmp = EXCLUDED.poll_icmp,
			poll_snmp = EXCLUDED.poll_snmp,
			credential_id = EXCLUDED.credential_id,
			poll_interval_ns = EXCLUDED.poll_interval_ns,
			active = true,
			updated_at = now()
		RETURNING `+deviceColumns,
		device.ID, device.Name, device.IP, device.DeviceType, device.Vendor,
		device.Model, device.PollICMP, device.PollSNMP, device.CredentialID,
		device.PollInterval.Nanoseconds())

	upserted, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert device: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE discovered_hosts
		SET is_added_to_monitoring = true, device_id = $2
		WHERE id = $1`,
		hostID, upserted.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to link host to device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit promotion: %w", err)
	}

	return upserted, nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func scanJob(row pgx.Row) (*models.DiscoveryJob, error) {
	var (
		job            models.DiscoveryJob
		method, status string
	)

	err := row.Scan(&job.ID, &job.Name, &job.CIDR, &method, &job.CredentialID,
		&job.Site, &status, &job.Progress, &job.TotalHosts, &job.DiscoveredHosts,
		&job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}

	job.Method = models.DiscoveryMethod(method)
	job.Status = models.JobStatus(status)

	return &job, nil
}

func scanHost(row pgx.Row) (*models.DiscoveredHost, error) {
	var (
		host models.DiscoveredHost

		icmpReachable *bool
		icmpRTT       *int64
		icmpTTL       *int

		snmpReachable                              *bool
		engineID, sysName, sysDescr, contact, locn string
		interfaceCount                             int
		uptimeSeconds                              int64
	)

	err := row.Scan(&host.ID, &host.JobID, &host.IP, &host.Hostname, &host.MAC,
		&host.Vendor, &host.Model, &host.DeviceType, &host.Site,
		&icmpReachable, &icmpRTT, &icmpTTL,
		&snmpReachable, &engineID, &sysName, &sysDescr, &contact, &locn,
		&interfaceCount, &uptimeSeconds,
		&host.OpenPorts, &host.OSFamily, &host.Confidence,
		&host.AddedToMonitoring, &host.DeviceID, &host.DiscoveredAt)
	if err != nil {
		return nil, err
	}

	if icmpReachable != nil {
		host.ICMP = &models.ICMPResult{Reachable: *icmpReachable}

		if icmpRTT != nil {
			host.ICMP.RTT = time.Duration(*icmpRTT)
		}

		if icmpTTL != nil {
			host.ICMP.TTL = *icmpTTL
		}
	}

	if snmpReachable != nil {
		host.SNMP = &models.SNMPResult{
			Reachable:      *snmpReachable,
			EngineID:       engineID,
			SysName:        sysName,
			SysDescr:       sysDescr,
			SysContact:     contact,
			SysLocation:    locn,
			InterfaceCount: interfaceCount,
			UptimeSeconds:  uptimeSeconds,
		}
	}

	return &host, nil
}

func scanDevice(row pgx.Row) (*models.MonitoredDevice, error) {
	var (
		device     models.MonitoredDevice
		intervalNS int64
	)

	err := row.Scan(&device.ID, &device.Name, &device.IP, &device.DeviceType,
		&device.Vendor, &device.Model, &device.PollICMP, &device.PollSNMP,
		&device.CredentialID, &intervalNS, &device.Active,
		&device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		return nil, err
	}

	device.PollInterval = time.Duration(intervalNS)

	return &device, nil
}
