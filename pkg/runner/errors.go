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

import "errors"

var (
	// ErrCredentialResolution marks a job failure caused by an unresolvable
	// SNMPv3 credential. The failure is fatal to the job; partial results
	// already persisted are kept.
	ErrCredentialResolution = errors.New("credential resolution failed")

	// ErrMissingCredentialID marks a snmpv3/both job without a credential
	// reference. Creation validates this; it can only surface on rows written
	// by older code.
	ErrMissingCredentialID = errors.New("job has no credential id")
)
