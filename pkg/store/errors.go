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

import "errors"

var (
	// ErrJobNotFound is returned when the referenced job does not exist.
	ErrJobNotFound = errors.New("discovery job not found")

	// ErrHostNotFound is returned when the referenced host does not exist
	// under the given job.
	ErrHostNotFound = errors.New("discovered host not found")

	// ErrDeviceNotFound is returned when no monitored device matches.
	ErrDeviceNotFound = errors.New("monitored device not found")

	// ErrInvalidTransition is returned when a status change is not allowed by
	// the job transition table.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrJobNotRunning is returned when a host result arrives for a job that
	// is no longer running.
	ErrJobNotRunning = errors.New("job is not running")

	// ErrJobNotTerminal is returned when deleting a job that has not finished.
	ErrJobNotTerminal = errors.New("job is not in a terminal state")

	// ErrHostPromoted is returned when promoting a host that already has a
	// monitored device linked.
	ErrHostPromoted = errors.New("host already added to monitoring")

	errFailedToConnect = errors.New("failed to connect to database")
	errMigration       = errors.New("failed to run migrations")
)
