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

package scan

import "errors"

var (
	// ErrInvalidRange indicates the CIDR string did not parse as a.b.c.d/n.
	ErrInvalidRange = errors.New("invalid CIDR range")

	// ErrNotIPv4 indicates a CIDR that parsed but is not an IPv4 block.
	ErrNotIPv4 = errors.New("not an IPv4 range")

	// ErrRangeTooLarge indicates the usable host count exceeds the ceiling.
	ErrRangeTooLarge = errors.New("range exceeds maximum host count")
)
