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
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

func TestBuildClientAuthPriv(t *testing.T) {
	c := NewSNMPClient(0, 2*time.Second, 0, logger.NewTestLogger())

	client, err := c.buildClient("10.0.0.5", testCredential())
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", client.Target)
	assert.Equal(t, uint16(defaultSNMPPort), client.Port)
	assert.Equal(t, gosnmp.Version3, client.Version)
	assert.Equal(t, gosnmp.AuthPriv, client.MsgFlags)

	usm, ok := client.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	require.True(t, ok)
	assert.Equal(t, "monitor", usm.UserName)
	assert.Equal(t, gosnmp.SHA256, usm.AuthenticationProtocol)
	assert.Equal(t, gosnmp.AES256, usm.PrivacyProtocol)
}

func TestBuildClientAuthNoPriv(t *testing.T) {
	c := NewSNMPClient(1161, time.Second, 2, logger.NewTestLogger())

	cred := &models.SNMPv3Credential{
		Username:     "readonly",
		AuthProtocol: "sha",
		AuthPassword: "authpass",
	}

	client, err := c.buildClient("10.0.0.6", cred)
	require.NoError(t, err)

	assert.Equal(t, uint16(1161), client.Port)
	assert.Equal(t, gosnmp.AuthNoPriv, client.MsgFlags)

	usm := client.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	assert.Equal(t, gosnmp.SHA, usm.AuthenticationProtocol)
	assert.Equal(t, gosnmp.NoPriv, usm.PrivacyProtocol)
}

func TestBuildClientRejectsUnknownProtocols(t *testing.T) {
	c := NewSNMPClient(0, time.Second, 1, logger.NewTestLogger())

	_, err := c.buildClient("10.0.0.7", &models.SNMPv3Credential{
		Username:     "x",
		AuthProtocol: "ROT13",
	})
	require.ErrorIs(t, err, ErrUnsupportedAuthProto)

	_, err = c.buildClient("10.0.0.7", &models.SNMPv3Credential{
		Username:        "x",
		AuthProtocol:    "SHA",
		PrivacyProtocol: "XOR",
	})
	require.ErrorIs(t, err, ErrUnsupportedPrivProto)
}

func TestQueryRequiresCredential(t *testing.T) {
	c := NewSNMPClient(0, time.Second, 1, logger.NewTestLogger())

	_, err := c.Query(t.Context(), "10.0.0.8", nil)
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestApplyVariable(t *testing.T) {
	c := NewSNMPClient(0, time.Second, 1, logger.NewTestLogger())
	result := &models.SNMPResult{Reachable: true}

	vars := []gosnmp.SnmpPDU{
		{Name: oidSysDescr, Value: []byte("Linux edge01 6.1.0")},
		{Name: oidSysName, Value: []byte("edge01")},
		{Name: oidSysContact, Value: []byte("noc@example.net")},
		{Name: oidSysLocation, Value: []byte("rack 12")},
		{Name: oidSysUptime, Value: uint32(360000)}, // 3600s in TimeTicks
		{Name: oidIfNumber, Value: 48},
	}

	for i := range vars {
		c.applyVariable(result, &vars[i])
	}

	assert.Equal(t, "Linux edge01 6.1.0", result.SysDescr)
	assert.Equal(t, "edge01", result.SysName)
	assert.Equal(t, "noc@example.net", result.SysContact)
	assert.Equal(t, "rack 12", result.SysLocation)
	assert.Equal(t, int64(3600), result.UptimeSeconds)
	assert.Equal(t, 48, result.InterfaceCount)
}
