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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalink/netdiscover/pkg/logger"
)

func TestScanPortsFindsListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}

			_ = conn.Close()
		}
	}()

	openPort := ln.Addr().(*net.TCPAddr).Port

	// One listening port plus one that is almost certainly closed.
	closedPort := openPort + 1
	if closedPort > 65535 {
		closedPort = openPort - 1
	}

	sweeper := NewTCPPortSweeper([]int{closedPort, openPort}, 500*time.Millisecond, logger.NewTestLogger())

	open, err := sweeper.ScanPorts(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []int{openPort}, open)
}

func TestScanPortsInvalidAddress(t *testing.T) {
	sweeper := NewTCPPortSweeper(nil, 100*time.Millisecond, logger.NewTestLogger())

	_, err := sweeper.ScanPorts(context.Background(), "bogus")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestScanPortsDefaults(t *testing.T) {
	sweeper := NewTCPPortSweeper(nil, 0, logger.NewTestLogger())

	assert.Equal(t, DefaultFingerprintPorts, sweeper.ports)
	assert.Equal(t, defaultPortTimeout, sweeper.timeout)
}
