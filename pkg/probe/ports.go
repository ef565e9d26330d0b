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
	"net"
	"sort"
	"sync"
	"time"

	"github.com/stratalink/netdiscover/pkg/logger"
)

// DefaultFingerprintPorts is the well-known port set swept for presence
// signals when both protocol facets fail.
var DefaultFingerprintPorts = []int{22, 23, 80, 135, 139, 443, 445, 631, 3389, 8080}

const (
	defaultPortTimeout     = 1 * time.Second
	defaultPortConcurrency = 4
)

// TCPPortSweeper checks a fixed port set with TCP connect probes.
type TCPPortSweeper struct {
	ports       []int
	timeout     time.Duration
	concurrency int
	logger      logger.Logger
}

var _ PortScanner = (*TCPPortSweeper)(nil)

// NewTCPPortSweeper creates a sweeper over the given ports. A nil or empty
// port list uses DefaultFingerprintPorts.
func NewTCPPortSweeper(ports []int, timeout time.Duration, log logger.Logger) *TCPPortSweeper {
	if len(ports) == 0 {
		ports = DefaultFingerprintPorts
	}

	if timeout == 0 {
		timeout = defaultPortTimeout
	}

	return &TCPPortSweeper{
		ports:       ports,
		timeout:     timeout,
		concurrency: defaultPortConcurrency,
		logger:      log,
	}
}

// ScanPorts returns the subset of the configured ports accepting TCP
// connections, in ascending order. Closed and filtered ports are silently
// omitted.
func (s *TCPPortSweeper) ScanPorts(ctx context.Context, ip string) ([]int, error) {
	if parsed := net.ParseIP(ip); parsed == nil {
		return nil, ErrInvalidAddress
	}

	workCh := make(chan int, len(s.ports))
	openCh := make(chan int, len(s.ports))

	var wg sync.WaitGroup

	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for port := range workCh {
				if s.checkPort(ctx, ip, port) {
					openCh <- port
				}
			}
		}()
	}

feed:
	for _, port := range s.ports {
		select {
		case <-ctx.Done():
			break feed
		case workCh <- port:
		}
	}

	close(workCh)

	wg.Wait()
	close(openCh)

	var open []int

	for port := range openCh {
		open = append(open, port)
	}

	sort.Ints(open)

	return open, ctx.Err()
}

func (s *TCPPortSweeper) checkPort(ctx context.Context, ip string, port int) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return false
	}

	if cerr := conn.Close(); cerr != nil {
		s.logger.Debug().Err(cerr).Str("ip", ip).Int("port", port).Msg("Failed to close connection")
	}

	return true
}
