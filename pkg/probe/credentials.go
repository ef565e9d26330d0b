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

import (
	"context"
	"fmt"

	"github.com/stratalink/netdiscover/pkg/models"
)

// StaticCredentials resolves credential references from an in-memory map,
// for configuration-file deployments and tests. Production deployments
// inject a resolver backed by the credential-management subsystem instead.
type StaticCredentials map[string]*models.SNMPv3Credential

var _ CredentialResolver = (StaticCredentials)(nil)

func (s StaticCredentials) Resolve(_ context.Context, credentialID string) (*models.SNMPv3Credential, error) {
	cred, ok := s[credentialID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, credentialID)
	}

	return cred, nil
}
