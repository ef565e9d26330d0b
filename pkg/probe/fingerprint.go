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
	"strings"

	"github.com/stratalink/netdiscover/pkg/models"
)

// Confidence weights. The score combines the available signals into 0-100;
// a full protocol response outweighs any number of open ports.
const (
	confidenceICMP    = 35 // echo reply received
	confidenceSNMP    = 45 // authenticated system group read
	confidencePerPort = 5  // each open TCP port
	confidencePortCap = 20 // open ports contribute at most this much
	confidenceMax     = 100
)

// TTL origin boundaries. Initial TTLs cluster at 64 (unix-like), 128
// (windows), and 255 (network gear); observed values sit at or below the
// origin minus hop count.
const (
	ttlBoundUnix    = 64
	ttlBoundWindows = 128
)

// Fingerprint fills the confidence score, OS family guess, and vendor/model/
// device-type hints of a merged probe result in place.
func Fingerprint(result *models.ProbeResult) {
	result.Confidence = confidenceScore(result)
	result.OSFamily = guessOSFamily(result)

	if result.SNMP != nil && result.SNMP.SysDescr != "" {
		vendor, model, deviceType := parseSysDescr(result.SNMP.SysDescr)

		result.Vendor = vendor
		result.Model = model
		result.DeviceType = deviceType
	}
}

func confidenceScore(result *models.ProbeResult) int {
	score := 0

	if result.ICMP != nil && result.ICMP.Reachable {
		score += confidenceICMP
	}

	if result.SNMP != nil && result.SNMP.Reachable {
		score += confidenceSNMP
	}

	portScore := len(result.OpenPorts) * confidencePerPort
	if portScore > confidencePortCap {
		portScore = confidencePortCap
	}

	score += portScore

	if score > confidenceMax {
		score = confidenceMax
	}

	return score
}

func guessOSFamily(result *models.ProbeResult) string {
	if result.SNMP != nil && result.SNMP.SysDescr != "" {
		descr := strings.ToLower(result.SNMP.SysDescr)

		switch {
		case strings.Contains(descr, "windows"):
			return "windows"
		case strings.Contains(descr, "linux"):
			return "linux"
		case strings.Contains(descr, "ios") || strings.Contains(descr, "junos") ||
			strings.Contains(descr, "routeros") || strings.Contains(descr, "nx-os"):
			return "network"
		}
	}

	if hasPort(result.OpenPorts, 3389) || hasPort(result.OpenPorts, 445) {
		return "windows"
	}

	if result.ICMP != nil && result.ICMP.Reachable && result.ICMP.TTL > 0 {
		switch {
		case result.ICMP.TTL <= ttlBoundUnix:
			return "unix"
		case result.ICMP.TTL <= ttlBoundWindows:
			return "windows"
		default:
			return "network"
		}
	}

	if hasPort(result.OpenPorts, 22) {
		return "unix"
	}

	return ""
}

// knownVendors maps sysDescr substrings to vendor names and device types.
var knownVendors = []struct {
	marker     string
	vendor     string
	deviceType string
}{
	{"cisco ios", "Cisco", "router"},
	{"cisco nx-os", "Cisco", "switch"},
	{"cisco", "Cisco", "network"},
	{"junos", "Juniper", "router"},
	{"juniper", "Juniper", "network"},
	{"arista", "Arista", "switch"},
	{"routeros", "MikroTik", "router"},
	{"fortigate", "Fortinet", "firewall"},
	{"palo alto", "Palo Alto Networks", "firewall"},
	{"procurve", "HPE", "switch"},
	{"aruba", "HPE Aruba", "switch"},
	{"ubiquiti", "Ubiquiti", "network"},
	{"windows", "Microsoft", "server"},
	{"linux", "", "server"},
}

func parseSysDescr(sysDescr string) (vendor, model, deviceType string) {
	descr := strings.ToLower(sysDescr)

	for _, v := range knownVendors {
		if strings.Contains(descr, v.marker) {
			return v.vendor, extractModel(sysDescr), v.deviceType
		}
	}

	return "", "", ""
}

// extractModel pulls the first token that looks like a hardware model number
// out of the description. Best effort only.
func extractModel(sysDescr string) string {
	for _, tok := range strings.Fields(sysDescr) {
		trimmed := strings.Trim(tok, ",()")
		if len(trimmed) < 3 || len(trimmed) > 16 {
			continue
		}

		hasDigit := strings.ContainsAny(trimmed, "0123456789")
		hasAlpha := strings.ContainsFunc(trimmed, func(r rune) bool {
			return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
		})

		if hasDigit && hasAlpha && strings.ToUpper(trimmed) == trimmed {
			return trimmed
		}
	}

	return ""
}

func hasPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}

	return false
}
