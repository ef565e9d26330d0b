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
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/stratalink/netdiscover/pkg/logger"
	"github.com/stratalink/netdiscover/pkg/models"
)

// System OIDs queried on every SNMP probe.
const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysUptime   = ".1.3.6.1.2.1.1.3.0"
	oidSysContact  = ".1.3.6.1.2.1.1.4.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"
	oidSysLocation = ".1.3.6.1.2.1.1.6.0"
	oidIfNumber    = ".1.3.6.1.2.1.2.1.0"
)

const (
	defaultSNMPPort    = 161
	defaultSNMPRetries = 1
	uptimeTicksPerSec  = 100
)

// SNMPClient issues read-only SNMPv3 queries against a single target per
// Query call.
type SNMPClient struct {
	port    uint16
	timeout time.Duration
	retries int
	logger  logger.Logger
}

var _ SNMPQuerier = (*SNMPClient)(nil)

// NewSNMPClient creates an SNMPv3 querier with the given per-probe timeout.
func NewSNMPClient(port uint16, timeout time.Duration, retries int, log logger.Logger) *SNMPClient {
	if port == 0 {
		port = defaultSNMPPort
	}

	if timeout == 0 {
		timeout = defaultICMPTimeout
	}

	if retries <= 0 {
		retries = defaultSNMPRetries
	}

	return &SNMPClient{
		port:    port,
		timeout: timeout,
		retries: retries,
		logger:  log,
	}
}

// Query reads the system group and interface count from the target. An
// authentication or timeout failure yields an unreachable result, not an
// error.
func (c *SNMPClient) Query(ctx context.Context, ip string, cred *models.SNMPv3Credential) (*models.SNMPResult, error) {
	if cred == nil {
		return nil, ErrMissingCredential
	}

	client, err := c.buildClient(ip, cred)
	if err != nil {
		return nil, err
	}

	client.Context = ctx

	if err := client.Connect(); err != nil {
		c.logger.Debug().Err(err).Str("ip", ip).Msg("SNMP connect failed")
		return &models.SNMPResult{Reachable: false}, nil
	}

	defer func() {
		if cerr := client.Conn.Close(); cerr != nil {
			c.logger.Debug().Err(cerr).Str("ip", ip).Msg("Failed to close SNMP connection")
		}
	}()

	oids := []string{oidSysDescr, oidSysUptime, oidSysContact, oidSysName, oidSysLocation, oidIfNumber}

	packet, err := client.Get(oids)
	if err != nil {
		// Timeouts and usmStatsWrongDigests land here; both are
		// unreachable-for-SNMP, not probe failures.
		c.logger.Debug().Err(err).Str("ip", ip).Msg("SNMP get failed")
		return &models.SNMPResult{Reachable: false}, nil
	}

	result := &models.SNMPResult{Reachable: true}

	for _, v := range packet.Variables {
		c.applyVariable(result, &v)
	}

	if usm, ok := client.SecurityParameters.(*gosnmp.UsmSecurityParameters); ok {
		result.EngineID = hex.EncodeToString([]byte(usm.AuthoritativeEngineID))
	}

	return result, nil
}

func (c *SNMPClient) applyVariable(result *models.SNMPResult, v *gosnmp.SnmpPDU) {
	switch v.Name {
	case oidSysDescr:
		result.SysDescr = pduString(v)
	case oidSysUptime:
		result.UptimeSeconds = gosnmp.ToBigInt(v.Value).Int64() / uptimeTicksPerSec
	case oidSysContact:
		result.SysContact = pduString(v)
	case oidSysName:
		result.SysName = pduString(v)
	case oidSysLocation:
		result.SysLocation = pduString(v)
	case oidIfNumber:
		result.InterfaceCount = int(gosnmp.ToBigInt(v.Value).Int64())
	}
}

func pduString(v *gosnmp.SnmpPDU) string {
	switch val := v.Value.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return ""
	}
}

// buildClient configures a gosnmp client for SNMPv3 USM with the credential's
// auth and privacy protocols.
func (c *SNMPClient) buildClient(ip string, cred *models.SNMPv3Credential) (*gosnmp.GoSNMP, error) {
	usm := &gosnmp.UsmSecurityParameters{
		UserName: cred.Username,
	}

	if err := configureAuthentication(usm, cred); err != nil {
		return nil, err
	}

	if err := configurePrivacy(usm, cred); err != nil {
		return nil, err
	}

	client := &gosnmp.GoSNMP{
		Target:             ip,
		Port:               c.port,
		Version:            gosnmp.Version3,
		SecurityModel:      gosnmp.UserSecurityModel,
		SecurityParameters: usm,
		MsgFlags:           messageFlags(cred),
		Timeout:            c.timeout,
		Retries:            c.retries,
		MaxOids:            gosnmp.MaxOids,
		ExponentialTimeout: true,
	}

	return client, nil
}

func messageFlags(cred *models.SNMPv3Credential) gosnmp.SnmpV3MsgFlags {
	switch {
	case cred.PrivacyProtocol != "":
		return gosnmp.AuthPriv
	case cred.AuthProtocol != "":
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func configureAuthentication(usm *gosnmp.UsmSecurityParameters, cred *models.SNMPv3Credential) error {
	switch strings.ToUpper(cred.AuthProtocol) {
	case "":
		usm.AuthenticationProtocol = gosnmp.NoAuth
	case "MD5":
		usm.AuthenticationProtocol = gosnmp.MD5
	case "SHA":
		usm.AuthenticationProtocol = gosnmp.SHA
	case "SHA224":
		usm.AuthenticationProtocol = gosnmp.SHA224
	case "SHA256":
		usm.AuthenticationProtocol = gosnmp.SHA256
	case "SHA384":
		usm.AuthenticationProtocol = gosnmp.SHA384
	case "SHA512":
		usm.AuthenticationProtocol = gosnmp.SHA512
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAuthProto, cred.AuthProtocol)
	}

	usm.AuthenticationPassphrase = cred.AuthPassword

	return nil
}

func configurePrivacy(usm *gosnmp.UsmSecurityParameters, cred *models.SNMPv3Credential) error {
	switch strings.ToUpper(cred.PrivacyProtocol) {
	case "":
		usm.PrivacyProtocol = gosnmp.NoPriv
	case "DES":
		usm.PrivacyProtocol = gosnmp.DES
	case "AES":
		usm.PrivacyProtocol = gosnmp.AES
	case "AES192":
		usm.PrivacyProtocol = gosnmp.AES192
	case "AES256":
		usm.PrivacyProtocol = gosnmp.AES256
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPrivProto, cred.PrivacyProtocol)
	}

	usm.PrivacyPassphrase = cred.PrivacyPassword

	return nil
}
