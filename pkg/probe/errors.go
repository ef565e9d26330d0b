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

package probe

import "errors"

var (
	ErrInvalidAddress       = errors.New("invalid IPv4 address")
	ErrUnsupportedMethod    = errors.New("unsupported discovery method")
	ErrMissingCredential    = errors.New("snmpv3 probe requires a credential")
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrUnsupportedAuthProto = errors.New("unsupported SNMPv3 auth protocol")
	ErrUnsupportedPrivProto = errors.New("unsupported SNMPv3 privacy protocol")
)
