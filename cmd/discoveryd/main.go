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

// discoveryd runs the network discovery service: it claims queued discovery
// jobs, probes their CIDR ranges and persists the results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stratalink/netdiscover/pkg/config"
	"github.com/stratalink/netdiscover/pkg/events"
	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/probe"
	"github.com/stratalink/netdiscover/pkg/runner"
	"github.com/stratalink/netdiscover/pkg/store"
)

func main() {
	configPath := flag.String("config", "/etc/netdiscover/netdiscover.json", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "discoveryd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher, err := buildPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	r := runner.NewRunner(st, buildProber(cfg, log), probe.StaticCredentials(cfg.Credentials),
		publisher, &cfg.Discovery, log)

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runner: %w", err)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	r.Stop()

	return nil
}

func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		dsn := store.ConnString(&cfg.Database)

		if err := store.RunMigrations(dsn, log); err != nil {
			return nil, err
		}

		return store.NewPostgresStore(ctx, &cfg.Database, log)
	default:
		log.Warn().Msg("Using in-memory store, jobs will not survive restarts")
		return store.NewMemoryStore(), nil
	}
}

func buildPublisher(cfg *config.Config, log logger.Logger) (events.Publisher, error) {
	if cfg.NATS == nil || cfg.NATS.URL == "" {
		return events.NoopPublisher{}, nil
	}

	return events.NewNATSPublisher(cfg.NATS, log)
}

func buildProber(cfg *config.Config, log logger.Logger) probe.Prober {
	timeout := time.Duration(cfg.Discovery.ProbeTimeout)

	pinger := probe.NewICMPPinger(timeout, log)
	querier := probe.NewSNMPClient(cfg.Discovery.SNMPPort, timeout, cfg.Discovery.SNMPRetries, log)
	sweeper := probe.NewTCPPortSweeper(cfg.Discovery.FingerprintPorts, 0, log)

	return probe.NewNetworkProber(pinger, querier, sweeper, log)
}
