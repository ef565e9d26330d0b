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

// Package config loads the discovery service configuration from a JSON file.
// Durations are written as strings ("2s", "500ms").
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

const (
	// StoreMemory keeps all state in process. Jobs do not survive restarts.
	StoreMemory = "memory"

	// StorePostgres persists state in Postgres.
	StorePostgres = "postgres"
)

// EnvDBPassword overrides the database password from the environment so it
// can stay out of the config file.
const EnvDBPassword = "NETDISCOVER_DB_PASSWORD"

var (
	ErrConfigRead      = errors.New("failed to read config file")
	ErrConfigParse     = errors.New("failed to parse config file")
	ErrUnknownStore    = errors.New("unknown store backend")
	ErrMissingStore    = errors.New("store backend is required")
	ErrMissingDatabase = errors.New("postgres store requires database settings")
)

// Config is the full service configuration.
type Config struct {
	Store       string                              `json:"store"`
	Database    models.Database                     `json:"database"`
	NATS        *models.NATS                        `json:"nats,omitempty"`
	Discovery   models.DiscoveryConfig              `json:"discovery"`
	Credentials map[string]*models.SNMPv3Credential `json:"credentials,omitempty"`
	Logging     logger.Config                       `json:"logging"`
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
	}

	var cfg Config

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	if password := os.Getenv(EnvDBPassword); password != "" {
		cfg.Database.Password = password
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case "":
		return ErrMissingStore
	case StoreMemory:
		return nil
	case StorePostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			return ErrMissingDatabase
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store)
	}
}
